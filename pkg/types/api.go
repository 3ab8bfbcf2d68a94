// Package types defines the JSON payloads served by the diagnostics HTTP
// API and streamed over the event websocket.
package types

import "encoding/json"

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: service not found
	Error string `json:"error" example:"service not found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ServiceInfo summarizes one managed service for /services and /status.
type ServiceInfo struct {
	// Service name, unique across the registry.
	// example: netmgr
	Name string `json:"name" example:"netmgr"`
	// Startup phase the service belongs to.
	// example: service
	Phase string `json:"phase" example:"service"`
	// Current lifecycle state (registered, starting, running, stopping, stopped, error).
	// example: running
	State string `json:"state" example:"running"`
	// Result of the last health probe.
	// example: true
	Healthy bool `json:"healthy" example:"true"`
	// Whether the service may be restarted via the API.
	Restartable bool `json:"restartable"`
	// Last start timestamp (unix seconds, 0 if never started).
	StartedAt int64 `json:"started_at_unix,omitempty"`
	// Duration of the last start in milliseconds.
	StartMS int64 `json:"start_ms,omitempty"`
}

// ServicesResponse wraps the list returned by GET /services.
type ServicesResponse struct {
	Services []ServiceInfo `json:"services"`
}

// BusStats mirrors the event bus counters for GET /events/stats.
type BusStats struct {
	// Events accepted onto the queue since start (or last reset).
	Posted uint64 `json:"posted"`
	// Handler invocations performed.
	Delivered uint64 `json:"delivered"`
	// Events rejected because the queue was full.
	Dropped uint64 `json:"dropped"`
	// Currently registered handlers.
	Handlers int `json:"handlers"`
	// Events queued right now.
	QueueDepth int `json:"queue_depth"`
	// Highest queue depth observed.
	QueueHighWater int `json:"queue_high_water"`
	// Slowest single-event dispatch in microseconds.
	MaxDeliveryUS int64 `json:"max_delivery_us"`
	// Mean dispatch time in microseconds.
	AvgDeliveryUS int64 `json:"avg_delivery_us"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall daemon state: "starting" until every phase completed, then "ready".
	// example: ready
	State string `json:"state" example:"ready"`
	// True once a full startup pass has finished.
	StartupComplete bool `json:"startup_complete"`
	// Duration of the last full startup pass in milliseconds.
	StartupMS int64 `json:"startup_ms"`
	// Per-phase startup durations in milliseconds, keyed by phase name.
	PhaseMS map[string]int64 `json:"phase_ms,omitempty"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Managed services.
	Services []ServiceInfo `json:"services"`
	// Event bus counters.
	Bus BusStats `json:"bus"`
}

// EventMessage is the websocket frame sent for each bus event. Payloads that
// are valid JSON are embedded as-is; anything else rides as a base64 string.
type EventMessage struct {
	Base      string          `json:"base"`
	ID        int32           `json:"id"`
	Priority  string          `json:"priority"`
	Timestamp int64           `json:"timestamp_unix_ns"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
