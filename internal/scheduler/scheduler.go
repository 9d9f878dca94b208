// File: internal/scheduler/scheduler.go
// The execution scheduler owns the session registry and the dispatch loop:
// bounded-concurrency job fan-out with pause/resume/cancel, retry policy,
// and atomic progress accounting.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// ErrSessionNotFound is returned for operations on unknown session IDs.
var ErrSessionNotFound = errors.New("session not found")

// PoolHandle is the scheduler's view of an acquired browser slot.
type PoolHandle interface {
	ID() string
}

// ResourcePool is the slice of the browser pool the scheduler depends on.
type ResourcePool interface {
	Acquire(ctx context.Context) (PoolHandle, error)
	Release(h PoolHandle)
	Size() int
}

// DriverFactory builds a BrowserDriver bound to an acquired handle.
type DriverFactory func(h PoolHandle) schemas.BrowserDriver

// Options bundles the scheduler's collaborators. Templates, Solver, and
// Sink are optional; the rest are required.
type Options struct {
	Pool      ResourcePool
	Drivers   DriverFactory
	Detector  schemas.FormDetector
	Mapper    schemas.FieldMapper
	Verifier  schemas.SubmissionVerifier
	Profiles  schemas.ProfileStore
	Templates schemas.TemplateStore
	Solver    schemas.CaptchaSolver
	Sink      schemas.EventSink
}

// Scheduler implements schemas.SessionController.
type Scheduler struct {
	cfg    config.SchedulerConfig
	logger *zap.Logger
	opts   Options

	mu       sync.RWMutex
	sessions map[string]*ExecutionSession
}

var _ schemas.SessionController = (*Scheduler)(nil)

// New creates a Scheduler.
func New(cfg config.SchedulerConfig, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if opts.Pool == nil || opts.Drivers == nil || opts.Detector == nil ||
		opts.Mapper == nil || opts.Verifier == nil || opts.Profiles == nil {
		return nil, fmt.Errorf("cannot initialize scheduler with nil dependencies")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		logger:   logger.Named("scheduler"),
		opts:     opts,
		sessions: make(map[string]*ExecutionSession),
	}, nil
}

// NewSession resolves the named profile and registers a new session over the
// given URLs. Zero-valued config fields inherit the scheduler defaults.
func (sch *Scheduler) NewSession(ctx context.Context, profileName string, urls []string, cfg schemas.SessionConfig) (*ExecutionSession, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one target URL must be provided")
	}

	profile, err := sch.opts.Profiles.GetProfileByName(ctx, profileName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile %q: %w", profileName, err)
	}

	sch.applyDefaults(&cfg)

	session := newSession(uuid.NewString(), profile, urls, cfg)
	sch.mu.Lock()
	sch.sessions[session.ID] = session
	sch.mu.Unlock()

	sch.logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("profile", profileName),
		zap.Int("targets", len(urls)),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
	)
	return session, nil
}

// applyDefaults fills zero-valued session settings from scheduler config.
// The effective concurrency is additionally capped by the pool size.
func (sch *Scheduler) applyDefaults(cfg *schemas.SessionConfig) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = sch.cfg.MaxConcurrency
	}
	if cfg.MaxConcurrency <= 0 || cfg.MaxConcurrency > sch.opts.Pool.Size() {
		cfg.MaxConcurrency = sch.opts.Pool.Size()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = sch.cfg.DefaultTimeout
	}
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = sch.cfg.RetryAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = sch.cfg.RetryBackoff
	}
	if cfg.DelayBetweenJobs < 0 {
		cfg.DelayBetweenJobs = 0
	}
}

// Get returns the session registered under id.
func (sch *Scheduler) Get(id string) (*ExecutionSession, error) {
	sch.mu.RLock()
	s := sch.sessions[id]
	sch.mu.RUnlock()
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Start begins dispatching a pending session, or resumes a paused one from
// the next undispatched URL.
func (sch *Scheduler) Start(ctx context.Context, sessionID string) error {
	s, err := sch.Get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch s.status {
	case schemas.StatusPending:
		if err := s.transitionLocked(schemas.StatusRunning); err != nil {
			s.mu.Unlock()
			return err
		}
		s.startedAt = time.Now().UTC()
		s.running = true
		jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel
		s.mu.Unlock()

		sch.emit(schemas.Event{Type: schemas.EventSessionStarted, SessionID: s.ID})
		go sch.run(jobCtx, s)
		return nil

	case schemas.StatusPaused:
		err := s.transitionLocked(schemas.StatusRunning)
		s.mu.Unlock()
		if err == nil {
			sch.emit(schemas.Event{Type: schemas.EventSessionResumed, SessionID: s.ID})
		}
		return err

	default:
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("cannot start session in state %s", status)
	}
}

// Pause stops dispatching new jobs. In-flight jobs finish naturally.
func (sch *Scheduler) Pause(sessionID string) error {
	s, err := sch.Get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	err = s.transitionLocked(schemas.StatusPaused)
	s.mu.Unlock()
	if err == nil {
		sch.emit(schemas.Event{Type: schemas.EventSessionPaused, SessionID: s.ID})
	}
	return err
}

// Cancel aborts the session. In-flight jobs are signalled through the
// session context; undispatched URLs are recorded as skipped when the
// dispatch loop winds down.
func (sch *Scheduler) Cancel(sessionID string) error {
	s, err := sch.Get(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	wasRunning := s.running
	if err := s.transitionLocked(schemas.StatusCancelled); err != nil {
		s.mu.Unlock()
		return err
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sch.emit(schemas.Event{Type: schemas.EventSessionCancelled, SessionID: s.ID})
	if !wasRunning {
		// Cancelled before Start: no dispatch loop exists to wind down, so
		// settle the skipped results here.
		sch.finalize(s)
	}
	return nil
}

// Snapshot returns the session's progress. Safe to call concurrently from
// any observer goroutine.
func (sch *Scheduler) Snapshot(sessionID string) (schemas.Progress, error) {
	s, err := sch.Get(sessionID)
	if err != nil {
		return schemas.Progress{}, err
	}
	return s.Progress(), nil
}

// Summary returns the caller-facing view of a session.
func (sch *Scheduler) Summary(sessionID string) (schemas.SessionSummary, error) {
	s, err := sch.Get(sessionID)
	if err != nil {
		return schemas.SessionSummary{}, err
	}
	return s.Summary(), nil
}

// run is the dispatch loop: it claims URLs in input order, acquires pool
// slots bounded by the effective concurrency, and fans jobs out without
// blocking on their completion.
func (sch *Scheduler) run(ctx context.Context, s *ExecutionSession) {
	log := sch.logger.With(zap.String("session_id", s.ID))
	log.Info("Dispatch loop started", zap.Int("targets", len(s.URLs)))

	limit := s.Config.MaxConcurrency
	var limiter *rate.Limiter
	if s.Config.DelayBetweenJobs > 0 {
		limiter = rate.NewLimiter(rate.Every(s.Config.DelayBetweenJobs), 1)
	}

dispatch:
	for {
		s.mu.Lock()
		// Hold back while paused or while the concurrency cap is reached.
		for s.status == schemas.StatusPaused ||
			(s.status == schemas.StatusRunning && s.inFlight >= limit) {
			s.cond.Wait()
		}
		if s.status != schemas.StatusRunning || s.nextIndex >= len(s.URLs) {
			s.mu.Unlock()
			break dispatch
		}
		s.mu.Unlock()

		// Honor the inter-job delay before dispatching each new job.
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break dispatch
			}
		}

		handle, err := sch.acquire(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				break dispatch
			}
			// Pool exhaustion past the hard ceiling is a systemic failure.
			sch.failSession(s, err)
			break dispatch
		}

		s.mu.Lock()
		// Re-check after blocking in Acquire; a pause or cancel may have
		// landed in the meantime.
		if s.status != schemas.StatusRunning || s.nextIndex >= len(s.URLs) {
			s.mu.Unlock()
			sch.opts.Pool.Release(handle)
			continue
		}
		// Claim the URL and advance immediately so two slots can never pick
		// up the same target.
		url := s.URLs[s.nextIndex]
		s.nextIndex++
		s.inFlight++
		s.currentURL = url
		s.mu.Unlock()

		s.jobs.Add(1)
		go func() {
			defer s.jobs.Done()
			defer sch.opts.Pool.Release(handle)
			sch.runJob(ctx, s, handle, url)
		}()
	}

	s.jobs.Wait()
	sch.finalize(s)
	log.Info("Dispatch loop finished", zap.String("status", string(s.Status())))
}

// acquire obtains a pool slot, bounded by the configured hard ceiling.
func (sch *Scheduler) acquire(ctx context.Context, s *ExecutionSession) (PoolHandle, error) {
	acquireCtx := ctx
	if sch.cfg.AcquireCeiling > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, sch.cfg.AcquireCeiling)
		defer cancel()
	}
	h, err := sch.opts.Pool.Acquire(acquireCtx)
	if err != nil && ctx.Err() == nil {
		return nil, schemas.Kindf(schemas.ErrSystemResource, "pool slot unavailable: %w", err)
	}
	return h, err
}

// failSession flips a session to Failed on a systemic error.
func (sch *Scheduler) failSession(s *ExecutionSession, err error) {
	s.mu.Lock()
	transitionErr := s.transitionLocked(schemas.StatusFailed)
	s.mu.Unlock()
	if transitionErr != nil {
		return
	}

	s.recordError(schemas.ExecutionError{
		Timestamp: time.Now().UTC(),
		Kind:      schemas.ErrSystemResource,
		Severity:  schemas.SeverityCritical,
		Message:   err.Error(),
	})
	sch.logger.Error("Session failed systemically", zap.String("session_id", s.ID), zap.Error(err))
	sch.emit(schemas.Event{Type: schemas.EventSessionFailed, SessionID: s.ID})
}

// finalize records skipped entries for undispatched URLs and settles the
// terminal state once every in-flight job has reported.
func (sch *Scheduler) finalize(s *ExecutionSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Undispatched URLs become skipped results so the progress conservation
	// invariant closes out: completed + failed + skipped == total.
	if s.status.Terminal() || s.status == schemas.StatusRunning {
		for ; s.nextIndex < len(s.URLs); s.nextIndex++ {
			s.results = append(s.results, schemas.ExecutionResult{
				JobID:      uuid.NewString(),
				URL:        s.URLs[s.nextIndex],
				Status:     schemas.ResultSkipped,
				Error:      "session ended before dispatch",
				FinishedAt: time.Now().UTC(),
			})
		}
	}

	if s.status == schemas.StatusRunning {
		// Individual URL failures do not fail the session; Failed is
		// reserved for systemic errors handled elsewhere.
		if err := s.transitionLocked(schemas.StatusCompleted); err == nil {
			sch.emit(schemas.Event{Type: schemas.EventSessionCompleted, SessionID: s.ID})
		}
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cond.Broadcast()
}

// emit forwards a lifecycle event without ever blocking on the sink.
func (sch *Scheduler) emit(evt schemas.Event) {
	if sch.opts.Sink == nil {
		return
	}
	evt.Timestamp = time.Now().UTC()
	sch.opts.Sink.Publish(evt)
}
