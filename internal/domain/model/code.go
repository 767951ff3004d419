package model

// CodePayload is the body delivered to clients for every ingested code.
type CodePayload struct {
	Username  string         `json:"username"`
	Code      string         `json:"code"`
	Source    string         `json:"source"`
	Type      string         `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// IngestRequest is a code submitted by an external source.
type IngestRequest struct {
	Username string         `json:"username"`
	Code     string         `json:"code"`
	Source   string         `json:"source,omitempty"`
	Type     string         `json:"type,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestResult is returned to the submitting source.
type IngestResult struct {
	Status    string `json:"status"`
	Delivered int    `json:"delivered"`
	UserID    int64  `json:"user_id"`
}
