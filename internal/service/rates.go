package service

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/webitel/code-delivery-service/internal/adapter/cache"
	"github.com/webitel/code-delivery-service/internal/domain/model"
)

// RateSource reads reference exchange rates.
type RateSource interface {
	ListExchangeRates(ctx context.Context) ([]model.ExchangeRate, error)
}

// RatesWarmer copies exchange rates into the shared tier once at startup.
type RatesWarmer struct {
	source RateSource
	shared cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewRatesWarmer(source RateSource, shared cache.Store, ttl time.Duration, logger *slog.Logger) *RatesWarmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RatesWarmer{source: source, shared: shared, ttl: ttl, logger: logger}
}

// Warm returns the number of rates written. Every failure yields a log line and 0.
func (w *RatesWarmer) Warm(ctx context.Context) int {
	if err := w.shared.Ping(ctx); err != nil {
		w.logger.Warn("RATES_WARMUP_SKIPPED", slog.Any("err", err))
		return 0
	}

	rates, err := w.source.ListExchangeRates(ctx)
	if err != nil {
		w.logger.Error("RATES_WARMUP_STORE_FAILED", slog.Any("err", err))
		return 0
	}
	if len(rates) == 0 {
		w.logger.Warn("RATES_WARMUP_EMPTY")
		return 0
	}

	entries := make([]cache.Entry, 0, len(rates))
	for _, r := range rates {
		entries = append(entries, cache.Entry{
			Key:   cache.RateKey(r.Currency),
			Value: strconv.FormatFloat(r.Rate, 'f', -1, 64),
		})
	}

	n, err := w.shared.SetMany(ctx, entries, w.ttl)
	if err != nil {
		w.logger.Warn("RATES_WARMUP_PARTIAL", slog.Int("written", n), slog.Any("err", err))
	}
	w.logger.Info("RATES_WARMED", slog.Int("count", n))
	return n
}
