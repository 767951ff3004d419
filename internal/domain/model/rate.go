package model

// ExchangeRate is a reference rate expressed against USD.
type ExchangeRate struct {
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
}
