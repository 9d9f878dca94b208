package schemas

import (
	"time"
)

// -- Profile Schemas --

// Profile is a named bundle of personal data used to fill forms. It is
// immutable for the duration of a session; the engine only ever reads it.
type Profile struct {
	Name      string            `json:"name" yaml:"name"`
	FirstName string            `json:"first_name" yaml:"first_name"`
	LastName  string            `json:"last_name" yaml:"last_name"`
	Email     string            `json:"email" yaml:"email"`
	Phone     string            `json:"phone" yaml:"phone"`
	Street    string            `json:"street" yaml:"street"`
	City      string            `json:"city" yaml:"city"`
	State     string            `json:"state" yaml:"state"`
	PostalID  string            `json:"postal_code" yaml:"postal_code"`
	Country   string            `json:"country" yaml:"country"`
	Company   string            `json:"company" yaml:"company"`
	BirthDate string            `json:"birth_date" yaml:"birth_date"` // ISO 8601 (2006-01-02)
	Custom    map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// FullName joins the first and last names, tolerating either being empty.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// -- Session Schemas --

// SessionStatus enumerates the states of the session state machine.
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// SessionConfig carries the per-session execution settings. Zero values are
// replaced with defaults derived from configuration and the capability scan.
type SessionConfig struct {
	MaxConcurrency   int           `json:"max_concurrency" yaml:"max_concurrency"`
	DefaultTimeout   time.Duration `json:"default_timeout" yaml:"default_timeout"`
	RetryAttempts    int           `json:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff     time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	DelayBetweenJobs time.Duration `json:"delay_between_jobs" yaml:"delay_between_jobs"`
	Headless         bool          `json:"headless" yaml:"headless"`
	SaveTemplates    bool          `json:"save_templates" yaml:"save_templates"`
	CaptureFailures  bool          `json:"capture_failures" yaml:"capture_failures"`
}

// Progress is a point-in-time snapshot of a session's advancement. It is a
// value copy; observers may retain it without holding any lock.
type Progress struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	InFlight   int     `json:"in_flight"`
	CurrentURL string  `json:"current_url,omitempty"`
	Percent    float64 `json:"percent"`
}

// Done reports whether every target has reached a terminal result.
func (p Progress) Done() bool {
	return p.Completed+p.Failed+p.Skipped >= p.Total
}

// ResultStatus classifies the outcome of a single URL attempt.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailure ResultStatus = "failure"
	ResultPartial ResultStatus = "partial"
	ResultSkipped ResultStatus = "skipped"
)

// ExecutionResult is the outcome of one URL attempt. Results are appended to
// the session in completion order and never edited afterwards.
type ExecutionResult struct {
	JobID        string        `json:"job_id"`
	URL          string        `json:"url"`
	Status       ResultStatus  `json:"status"`
	FilledFields int           `json:"filled_fields"`
	TotalFields  int           `json:"total_fields"`
	Attempts     int           `json:"attempts"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
	Screenshot   string        `json:"screenshot,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// SessionSummary is the read-only view of a finished or in-progress session
// handed to presentation layers.
type SessionSummary struct {
	ID          string            `json:"id"`
	ProfileName string            `json:"profile_name"`
	Status      SessionStatus     `json:"status"`
	Progress    Progress          `json:"progress"`
	Results     []ExecutionResult `json:"results"`
	Errors      []ExecutionError  `json:"errors"`
	SuccessRate float64           `json:"success_rate"`
	StartedAt   time.Time         `json:"started_at,omitempty"`
	EndedAt     time.Time         `json:"ended_at,omitempty"`
}
