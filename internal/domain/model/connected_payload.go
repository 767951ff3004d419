package model

// ServerVersion is reported to clients in the connection handshake.
var ServerVersion = "0.0.0"

// ConnectedPayload represents the data sent to the client upon successful connection.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connection_id"`
	Username      string `json:"username"`
	Channel       string `json:"channel"`
	ServerVersion string `json:"server_version"`
}
