package schemas

import "time"

// EventType enumerates the lifecycle events forwarded to telemetry sinks.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventSessionPaused    EventType = "session_paused"
	EventSessionResumed   EventType = "session_resumed"
	EventSessionCancelled EventType = "session_cancelled"
	EventSessionCompleted EventType = "session_completed"
	EventSessionFailed    EventType = "session_failed"
	EventJobStarted       EventType = "job_started"
	EventJobRetrying      EventType = "job_retrying"
	EventJobFinished      EventType = "job_finished"
)

// Event is a session or job lifecycle notification. Delivery is best-effort;
// the engine never blocks on a sink.
type Event struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"session_id"`
	URL       string       `json:"url,omitempty"`
	Status    ResultStatus `json:"status,omitempty"`
	Attempt   int          `json:"attempt,omitempty"`
	Progress  *Progress    `json:"progress,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// SystemCapabilitySpec is the capability scanner's output: what the host
// looks like and how many browser instances it can comfortably run at once.
type SystemCapabilitySpec struct {
	LogicalCores       int     `json:"logical_cores"`
	TotalMemoryMB      uint64  `json:"total_memory_mb"`
	AvailableMemoryMB  uint64  `json:"available_memory_mb"`
	OptimalConcurrency int     `json:"optimal_concurrency"`
	Degraded           bool    `json:"degraded"`
	MemoryLoadPercent  float64 `json:"memory_load_percent"`
}
