// File: internal/scheduler/session.go
// ExecutionSession is explicit per-session state owned by the scheduler and
// passed by handle. Nothing about a session lives in package-level tables
// beyond the scheduler's own registry, which removes the cross-session
// leakage class entirely.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/verifier"
)

// ExecutionSession is one scheduled run of a profile against a URL list.
// All mutable state is guarded by mu; workers report completions through
// completeJob, never by touching fields directly.
type ExecutionSession struct {
	ID      string
	Profile schemas.Profile
	URLs    []string
	Config  schemas.SessionConfig

	mu   sync.Mutex
	cond *sync.Cond

	status     schemas.SessionStatus
	nextIndex  int
	inFlight   int
	currentURL string

	results []schemas.ExecutionResult
	errors  []schemas.ExecutionError

	startedAt time.Time
	endedAt   time.Time

	// cancel aborts the session-scoped context shared by all jobs.
	cancel  context.CancelFunc
	jobs    sync.WaitGroup
	running bool // a dispatch loop goroutine exists
}

func newSession(id string, profile schemas.Profile, urls []string, cfg schemas.SessionConfig) *ExecutionSession {
	s := &ExecutionSession{
		ID:      id,
		Profile: profile,
		URLs:    urls,
		Config:  cfg,
		status:  schemas.StatusPending,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// transitionLocked enforces the state machine edges. Callers hold mu.
func (s *ExecutionSession) transitionLocked(to schemas.SessionStatus) error {
	allowed := false
	switch s.status {
	case schemas.StatusPending:
		allowed = to == schemas.StatusRunning || to == schemas.StatusCancelled
	case schemas.StatusRunning:
		allowed = to == schemas.StatusPaused || to == schemas.StatusCompleted ||
			to == schemas.StatusFailed || to == schemas.StatusCancelled
	case schemas.StatusPaused:
		allowed = to == schemas.StatusRunning || to == schemas.StatusCancelled
	}
	if !allowed {
		return fmt.Errorf("invalid session transition %s -> %s", s.status, to)
	}
	s.status = to
	if to.Terminal() {
		s.endedAt = time.Now().UTC()
	}
	// Wake the dispatch loop; it re-examines status after every signal.
	s.cond.Broadcast()
	return nil
}

// Status returns the current state.
func (s *ExecutionSession) Status() schemas.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// progressLocked builds a Progress snapshot. Callers hold mu.
func (s *ExecutionSession) progressLocked() schemas.Progress {
	p := schemas.Progress{
		Total:      len(s.URLs),
		InFlight:   s.inFlight,
		CurrentURL: s.currentURL,
	}
	for _, r := range s.results {
		switch r.Status {
		case schemas.ResultSuccess, schemas.ResultPartial:
			p.Completed++
		case schemas.ResultFailure:
			p.Failed++
		case schemas.ResultSkipped:
			p.Skipped++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed+p.Failed+p.Skipped) / float64(p.Total) * 100
	}
	return p
}

// Progress returns a point-in-time snapshot; safe for concurrent observers.
func (s *ExecutionSession) Progress() schemas.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

// Summary renders the caller-facing view of the session.
func (s *ExecutionSession) Summary() schemas.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]schemas.ExecutionResult, len(s.results))
	copy(results, s.results)
	errs := make([]schemas.ExecutionError, len(s.errors))
	copy(errs, s.errors)

	return schemas.SessionSummary{
		ID:          s.ID,
		ProfileName: s.Profile.Name,
		Status:      s.status,
		Progress:    s.progressLocked(),
		Results:     results,
		Errors:      errs,
		SuccessRate: verifier.SuccessRate(results),
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
	}
}

// completeJob is the single critical section for a job-completion event:
// result append, error append, and progress bookkeeping happen atomically
// so concurrent completions never lose updates.
func (s *ExecutionSession) completeJob(result schemas.ExecutionResult, execErr *schemas.ExecutionError) schemas.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, result)
	if execErr != nil {
		s.errors = append(s.errors, *execErr)
	}
	s.inFlight--
	if s.currentURL == result.URL {
		s.currentURL = ""
	}
	// A slot freed up; the dispatch loop may be waiting on the concurrency cap.
	s.cond.Broadcast()
	return s.progressLocked()
}

// Wait blocks until the session has reached a terminal state and its
// dispatch loop has fully wound down.
func (s *ExecutionSession) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.running || !s.status.Terminal() {
		s.cond.Wait()
	}
}

// recordError appends a session-level error outside the job path.
func (s *ExecutionSession) recordError(e schemas.ExecutionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, e)
}
