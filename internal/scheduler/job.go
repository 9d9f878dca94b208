// File: internal/scheduler/job.go
// The per-URL job pipeline: navigate, detect (or replay a learned
// template), map, fill, submit, verify. Retries are driven by the error
// taxonomy, never by string matching on messages.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/detector"
	"github.com/xkilldash9x/formpilot/internal/mapper"
	"github.com/xkilldash9x/formpilot/internal/verifier"
)

// jobOutcome carries the per-attempt measurements needed to build the final
// ExecutionResult.
type jobOutcome struct {
	outcome  schemas.SubmissionOutcome
	filled   int
	total    int
	warnings []string
}

// runJob executes all attempts for a single URL and reports the result back
// to the session through its single critical section.
func (sch *Scheduler) runJob(ctx context.Context, s *ExecutionSession, handle PoolHandle, url string) {
	jobID := uuid.NewString()
	log := sch.logger.With(
		zap.String("session_id", s.ID),
		zap.String("job_id", jobID),
		zap.String("url", url),
		zap.String("handle", handle.ID()),
	)

	driver := sch.opts.Drivers(handle)
	started := time.Now()
	maxAttempts := s.Config.RetryAttempts + 1

	sch.emit(schemas.Event{Type: schemas.EventJobStarted, SessionID: s.ID, URL: url})

	var (
		out     jobOutcome
		lastErr error
	)
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		out, lastErr = sch.attempt(ctx, s, driver, url, log)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			// The session was cancelled; do not burn further attempts.
			break
		}

		kind := schemas.ClassifyError(lastErr)
		if !kind.Retryable() || attempts >= maxAttempts {
			log.Warn("Job attempt failed terminally",
				zap.Int("attempt", attempts),
				zap.String("kind", string(kind)),
				zap.Error(lastErr),
			)
			break
		}

		backoff := sch.backoff(s.Config, kind, attempts)
		log.Info("Retrying job attempt",
			zap.Int("attempt", attempts),
			zap.String("kind", string(kind)),
			zap.Duration("backoff", backoff),
		)
		sch.emit(schemas.Event{Type: schemas.EventJobRetrying, SessionID: s.ID, URL: url, Attempt: attempts})

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		if ctx.Err() != nil {
			break
		}
	}

	result := sch.buildResult(ctx, s, driver, jobID, url, out, lastErr, attempts, time.Since(started), log)
	var execErr *schemas.ExecutionError
	if lastErr != nil {
		kind := schemas.ClassifyError(lastErr)
		execErr = &schemas.ExecutionError{
			Timestamp: time.Now().UTC(),
			URL:       url,
			Kind:      kind,
			Severity:  kind.DefaultSeverity(),
			Message:   lastErr.Error(),
		}
	}

	progress := s.completeJob(result, execErr)
	log.Info("Job finished",
		zap.String("status", string(result.Status)),
		zap.Int("attempts", attempts),
		zap.Int("filled", result.FilledFields),
		zap.Float64("session_percent", progress.Percent),
	)
	sch.emit(schemas.Event{
		Type:      schemas.EventJobFinished,
		SessionID: s.ID,
		URL:       url,
		Status:    result.Status,
		Attempt:   attempts,
		Progress:  &progress,
	})
}

// attempt runs the pipeline once under the per-attempt timeout.
func (sch *Scheduler) attempt(ctx context.Context, s *ExecutionSession, driver schemas.BrowserDriver, url string, log *zap.Logger) (jobOutcome, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.Config.DefaultTimeout)
	defer cancel()

	var out jobOutcome

	if err := driver.Navigate(attemptCtx, url); err != nil {
		return out, fmt.Errorf("navigation failed: %w", err)
	}
	before, err := driver.Snapshot(attemptCtx)
	if err != nil {
		return out, fmt.Errorf("failed to snapshot page: %w", err)
	}

	form, fromTemplate, err := sch.resolveForm(attemptCtx, before, url, log)
	if err != nil {
		return out, err
	}
	out.total = len(form.Fields)

	if form.HasCaptcha {
		if sch.opts.Solver == nil {
			return out, schemas.Kindf(schemas.ErrCaptcha, "captcha present on %s and no solver configured", url)
		}
		if err := sch.opts.Solver.Solve(attemptCtx, driver, form); err != nil {
			return out, schemas.NewKindError(schemas.ErrCaptcha, err)
		}
	}

	mapping, unmapped := sch.opts.Mapper.Map(s.Profile, form.Fields)
	if len(mapping) == 0 {
		return out, schemas.Kindf(schemas.ErrValidation, "no profile values matched any of the %d detected fields", len(form.Fields))
	}
	out.warnings = mapper.Validate(form.Fields, mapping)
	if len(unmapped) > 0 {
		log.Debug("Fields left unmapped", zap.Strings("fields", unmapped))
	}

	// Fill in a stable order so behavior is reproducible across runs.
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m := mapping[k]
		if err := driver.FillField(attemptCtx, m.Selector, m.Value); err != nil {
			out.warnings = append(out.warnings, fmt.Sprintf("could not fill %q: %v", m.FieldName, err))
			continue
		}
		out.filled++
	}
	if out.filled == 0 {
		return out, schemas.Kindf(schemas.ErrFieldNotFound, "none of the %d mapped fields could be filled", len(mapping))
	}

	if form.SubmitSelector != "" {
		if err := driver.Click(attemptCtx, form.SubmitSelector); err != nil {
			return out, fmt.Errorf("submit click failed: %w", err)
		}
	} else {
		out.warnings = append(out.warnings, "no submit control detected; form filled but not submitted")
	}

	after, err := driver.Snapshot(attemptCtx)
	if err != nil {
		return out, fmt.Errorf("failed to snapshot page after submit: %w", err)
	}
	out.outcome = sch.opts.Verifier.Verify(before, after)

	if s.Config.SaveTemplates && !fromTemplate && sch.opts.Templates != nil &&
		out.outcome.Status == schemas.ResultSuccess {
		tpl := detector.ToTemplate(form, url)
		if err := sch.opts.Templates.SaveTemplate(attemptCtx, tpl); err != nil {
			log.Warn("Failed to persist learned template", zap.Error(err))
		}
	}
	return out, nil
}

// resolveForm prefers a learned template over live detection. fromTemplate
// reports which path produced the form.
func (sch *Scheduler) resolveForm(ctx context.Context, snapshot schemas.PageSnapshot, url string, log *zap.Logger) (schemas.DetectedForm, bool, error) {
	if sch.opts.Templates != nil {
		tpl, err := sch.opts.Templates.GetTemplate(ctx, url)
		switch {
		case err == nil:
			log.Debug("Replaying learned template", zap.Int("version", tpl.Version))
			return detector.FromTemplate(tpl), true, nil
		case errors.Is(err, schemas.ErrTemplateNotFound):
			// Fall through to live detection.
		default:
			log.Warn("Template lookup failed, falling back to detection", zap.Error(err))
		}
	}

	forms := sch.opts.Detector.Analyze(snapshot)
	if len(forms) == 0 {
		return schemas.DetectedForm{}, false, schemas.Kindf(schemas.ErrFormNotFound, "no fillable form detected at %s", url)
	}
	// Forms arrive ordered by descending confidence; take the best one.
	return forms[0], false, nil
}

// backoff computes the delay before the next attempt. Rate-limit errors use
// their own, longer backoff instead of the exponential schedule.
func (sch *Scheduler) backoff(cfg schemas.SessionConfig, kind schemas.ErrorKind, attempt int) time.Duration {
	if kind == schemas.ErrRateLimit && sch.cfg.RateLimitBackoff > 0 {
		return sch.cfg.RateLimitBackoff
	}
	d := cfg.RetryBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// buildResult assembles the final ExecutionResult, capturing a failure
// screenshot when configured.
func (sch *Scheduler) buildResult(ctx context.Context, s *ExecutionSession, driver schemas.BrowserDriver, jobID, url string, out jobOutcome, runErr error, attempts int, duration time.Duration, log *zap.Logger) schemas.ExecutionResult {
	if runErr == nil {
		return verifier.BuildResult(jobID, url, out.outcome, out.filled, out.total, attempts, duration, out.warnings)
	}

	result := schemas.ExecutionResult{
		JobID:        jobID,
		URL:          url,
		Status:       schemas.ResultFailure,
		FilledFields: out.filled,
		TotalFields:  out.total,
		Attempts:     attempts,
		Duration:     duration,
		Error:        runErr.Error(),
		Warnings:     out.warnings,
		FinishedAt:   time.Now().UTC(),
	}
	if ctx.Err() != nil {
		result.Status = schemas.ResultSkipped
		result.Error = "session cancelled"
		return result
	}
	if s.Config.CaptureFailures {
		if path, err := sch.captureFailure(driver, s.ID, jobID); err != nil {
			log.Debug("Failure screenshot not captured", zap.Error(err))
		} else {
			result.Screenshot = path
		}
	}
	return result
}

// captureFailure writes a PNG of the current page under the configured
// screenshot directory and returns its path.
func (sch *Scheduler) captureFailure(driver schemas.BrowserDriver, sessionID, jobID string) (string, error) {
	dir := sch.cfg.ScreenshotDir
	if dir == "" {
		dir = "screenshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	// Use a short independent deadline; the job context may already be dead.
	shotCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	png, err := driver.Screenshot(shotCtx)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", sessionID, jobID))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
