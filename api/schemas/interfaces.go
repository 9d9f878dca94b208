package schemas

import (
	"context"
)

// -- Collaborator Interfaces --

// ProfileStore resolves named profiles. Profiles are read-only to the engine;
// how they are persisted (and whether they are encrypted at rest) is the
// store's concern.
type ProfileStore interface {
	// GetProfileByName returns the profile registered under name.
	GetProfileByName(ctx context.Context, name string) (Profile, error)
}

// TemplateStore supplies pre-learned form templates keyed by URL. A store
// returning ErrTemplateNotFound for a URL makes the job fall back to live
// detection.
type TemplateStore interface {
	// GetTemplate returns the newest template version recorded for url.
	GetTemplate(ctx context.Context, url string) (FormTemplate, error)
	// SaveTemplate records a learned template, bumping the version if one
	// already exists for the URL.
	SaveTemplate(ctx context.Context, tpl FormTemplate) error
}

// BrowserDriver is the narrow capability interface the engine needs to drive
// a browser. The engine depends only on this contract, never on a concrete
// driver implementation.
type BrowserDriver interface {
	// Navigate loads url and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error
	// FillField types value into the element matching selector.
	FillField(ctx context.Context, selector, value string) error
	// Click clicks the element matching selector.
	Click(ctx context.Context, selector string) error
	// Snapshot captures the current page state (URL, title, full HTML).
	Snapshot(ctx context.Context) (PageSnapshot, error)
	// Screenshot captures the viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
}

// CaptchaSolver is an optional external capability. When configured, jobs
// hitting a captcha-bearing form delegate to it instead of failing outright.
type CaptchaSolver interface {
	// Solve attempts to clear the captcha on the current page.
	Solve(ctx context.Context, driver BrowserDriver, form DetectedForm) error
}

// EventSink receives session and job lifecycle events. Publish must never
// block the caller; sinks that cannot keep up drop events.
type EventSink interface {
	Publish(event Event)
}

// -- Engine Component Interfaces --

// FormDetector analyzes a page snapshot and returns candidate forms ordered
// by descending confidence. Same snapshot in, same forms out.
type FormDetector interface {
	Analyze(snapshot PageSnapshot) []DetectedForm
}

// FieldMapper resolves profile values against detected fields. Mapping the
// same profile and field list twice yields identical output.
type FieldMapper interface {
	Map(profile Profile, fields []DetectedField) (map[string]FieldMapping, []string)
}

// SubmissionVerifier classifies the outcome of a submit attempt from the
// page states captured before and after it.
type SubmissionVerifier interface {
	Verify(before, after PageSnapshot) SubmissionOutcome
}

// SessionController is the surface the engine exposes to its callers. The
// closed set of operations replaces any string-keyed command dispatch.
type SessionController interface {
	// Start begins (or resumes, from Paused) dispatching the session's jobs.
	Start(ctx context.Context, sessionID string) error
	// Pause stops dispatching new jobs; in-flight jobs finish naturally.
	Pause(sessionID string) error
	// Cancel aborts the session; in-flight jobs are signalled to stop.
	Cancel(sessionID string) error
	// Snapshot returns the current progress. Safe for concurrent observers.
	Snapshot(sessionID string) (Progress, error)
}
