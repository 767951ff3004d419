package model

import "time"

// RegistryStats is a point-in-time view of the connection registry.
type RegistryStats struct {
	TotalConnections  int `json:"total_connections"`
	StreamConnections int `json:"stream_connections"`
	PushConnections   int `json:"push_connections"`
	Users             int `json:"users"`
}

// SyncStats describes the last directory sync run.
type SyncStats struct {
	Running   bool      `json:"running"`
	LastCount int       `json:"last_count"`
	LastRunAt time.Time `json:"last_run_at"`
	TotalRuns uint64    `json:"total_runs"`
	Failed    uint64    `json:"failed_runs"`
}

// ServerStats is the payload of the /stats endpoint.
type ServerStats struct {
	Registry       RegistryStats `json:"registry"`
	PushGroups     int           `json:"push_groups"`
	CacheAvailable bool          `json:"cache_available"`
	Sync           SyncStats     `json:"sync"`
	Uptime         string        `json:"uptime"`
}
