// File: internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Test Doubles --

type fakeHandle struct {
	id string
}

func (h *fakeHandle) ID() string { return h.id }

// fakePool is a channel-backed pool that tracks the peak number of
// simultaneously held slots.
type fakePool struct {
	slots chan *fakeHandle
	size  int

	mu     sync.Mutex
	active int
	peak   int

	acquireErr error
}

func newFakePool(size int) *fakePool {
	p := &fakePool{slots: make(chan *fakeHandle, size), size: size}
	for i := 0; i < size; i++ {
		p.slots <- &fakeHandle{id: fmt.Sprintf("tab-%d", i)}
	}
	return p
}

func (p *fakePool) Acquire(ctx context.Context) (PoolHandle, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case h := <-p.slots:
		p.mu.Lock()
		p.active++
		if p.active > p.peak {
			p.peak = p.active
		}
		p.mu.Unlock()
		return h, nil
	}
}

func (p *fakePool) Release(h PoolHandle) {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.slots <- h.(*fakeHandle)
}

func (p *fakePool) Size() int { return p.size }

func (p *fakePool) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// Active reports the slots currently held; zero means the pool is drained.
func (p *fakePool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// fakeDriver scripts browser behavior per test. Nil hooks succeed.
type fakeDriver struct {
	navigate func(ctx context.Context, url string) error
	fill     func(ctx context.Context, selector, value string) error
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	if d.navigate != nil {
		return d.navigate(ctx, url)
	}
	return nil
}

func (d *fakeDriver) FillField(ctx context.Context, selector, value string) error {
	if d.fill != nil {
		return d.fill(ctx, selector, value)
	}
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, selector string) error { return nil }

func (d *fakeDriver) Snapshot(ctx context.Context) (schemas.PageSnapshot, error) {
	return schemas.PageSnapshot{URL: "https://example.com", HTML: "<html></html>", TakenAt: time.Now()}, nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }

type stubDetector struct {
	forms []schemas.DetectedForm
	calls atomic.Int32
}

func (d *stubDetector) Analyze(snapshot schemas.PageSnapshot) []schemas.DetectedForm {
	d.calls.Add(1)
	return d.forms
}

type stubMapper struct{}

func (stubMapper) Map(profile schemas.Profile, fields []schemas.DetectedField) (map[string]schemas.FieldMapping, []string) {
	out := make(map[string]schemas.FieldMapping, len(fields))
	for _, f := range fields {
		out[f.Name] = schemas.FieldMapping{
			FieldName:  f.Name,
			Selector:   f.Selector,
			Value:      "test-value",
			Confidence: 90,
		}
	}
	return out, nil
}

type stubVerifier struct {
	status schemas.ResultStatus
}

func (v stubVerifier) Verify(before, after schemas.PageSnapshot) schemas.SubmissionOutcome {
	return schemas.SubmissionOutcome{Status: v.status, Navigated: true}
}

type stubProfiles struct{}

func (stubProfiles) GetProfileByName(ctx context.Context, name string) (schemas.Profile, error) {
	if name != "tester" {
		return schemas.Profile{}, fmt.Errorf("profile %q not found", name)
	}
	return schemas.Profile{Name: "tester", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, nil
}

func testForm() schemas.DetectedForm {
	return schemas.DetectedForm{
		Selector: "#signup",
		Type:     schemas.FormRegistration,
		Fields: []schemas.DetectedField{
			{Name: "email", Type: schemas.FieldEmail, Selector: "#email"},
			{Name: "first_name", Type: schemas.FieldText, Selector: "#first_name"},
		},
		SubmitSelector: "#submit",
		Confidence:     80,
	}
}

type harness struct {
	sched    *Scheduler
	pool     *fakePool
	detector *stubDetector
	driver   *fakeDriver
	sink     *mocks.RecordingSink
}

func newHarness(t *testing.T, poolSize int, mods ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		pool:     newFakePool(poolSize),
		detector: &stubDetector{forms: []schemas.DetectedForm{testForm()}},
		driver:   &fakeDriver{},
		sink:     &mocks.RecordingSink{},
	}
	cfg := config.SchedulerConfig{
		MaxConcurrency: poolSize,
		DefaultTimeout: 5 * time.Second,
		RetryAttempts:  0,
		RetryBackoff:   time.Millisecond,
		AcquireCeiling: 2 * time.Second,
	}
	opts := Options{
		Pool:     h.pool,
		Drivers:  func(PoolHandle) schemas.BrowserDriver { return h.driver },
		Detector: h.detector,
		Mapper:   stubMapper{},
		Verifier: stubVerifier{status: schemas.ResultSuccess},
		Profiles: stubProfiles{},
		Sink:     h.sink,
	}
	for _, mod := range mods {
		mod(&opts)
	}
	sched, err := New(cfg, opts, zap.NewNop())
	require.NoError(t, err)
	h.sched = sched
	return h
}

func urls(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://example.com/form/%d", i)
	}
	return out
}

// -- Tests --

func TestSessionHappyPath(t *testing.T) {
	h := newHarness(t, 2)

	session, err := h.sched.NewSession(context.Background(), "tester", urls(5), schemas.SessionConfig{})
	require.NoError(t, err)
	require.Equal(t, schemas.StatusPending, session.Status())

	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	summary := session.Summary()
	assert.Equal(t, schemas.StatusCompleted, summary.Status)
	assert.Len(t, summary.Results, 5)
	for _, r := range summary.Results {
		assert.Equal(t, schemas.ResultSuccess, r.Status)
		assert.Equal(t, 2, r.FilledFields)
	}
	assert.Equal(t, 100.0, summary.SuccessRate)

	p := summary.Progress
	assert.Equal(t, p.Total, p.Completed+p.Failed+p.Skipped)
	assert.Equal(t, 0, p.InFlight)

	assert.Equal(t, 1, h.sink.CountByType(schemas.EventSessionStarted))
	assert.Equal(t, 5, h.sink.CountByType(schemas.EventJobStarted))
	assert.Equal(t, 5, h.sink.CountByType(schemas.EventJobFinished))
	assert.Equal(t, 1, h.sink.CountByType(schemas.EventSessionCompleted))
}

func TestConcurrencyNeverExceedsPoolSize(t *testing.T) {
	h := newHarness(t, 2)
	h.driver.navigate = func(ctx context.Context, url string) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	session, err := h.sched.NewSession(context.Background(), "tester", urls(8), schemas.SessionConfig{
		MaxConcurrency: 8, // asks for more than the pool can give
	})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	assert.Equal(t, schemas.StatusCompleted, session.Status())
	assert.LessOrEqual(t, h.pool.Peak(), 2, "peak held slots must respect the pool size")
}

func TestUnknownProfileFailsSessionCreation(t *testing.T) {
	h := newHarness(t, 1)
	_, err := h.sched.NewSession(context.Background(), "nobody", urls(1), schemas.SessionConfig{})
	require.Error(t, err)
}

func TestPauseStopsDispatch(t *testing.T) {
	h := newHarness(t, 1)

	release := make(chan struct{})
	started := make(chan string, 16)
	h.driver.navigate = func(ctx context.Context, url string) error {
		started <- url
		<-release
		return nil
	}

	session, err := h.sched.NewSession(context.Background(), "tester", urls(4), schemas.SessionConfig{})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))

	// Wait for the first job to begin, then pause and let it finish.
	<-started
	require.NoError(t, h.sched.Pause(session.ID))
	release <- struct{}{}

	// With the session paused no further job may start.
	select {
	case url := <-started:
		t.Fatalf("job for %s dispatched while paused", url)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, schemas.StatusPaused, session.Status())

	// Resume picks up from the next undispatched URL.
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	for i := 0; i < 3; i++ {
		<-started
		release <- struct{}{}
	}
	session.Wait()

	summary := session.Summary()
	assert.Equal(t, schemas.StatusCompleted, summary.Status)
	assert.Len(t, summary.Results, 4)
	assert.Equal(t, 1, h.sink.CountByType(schemas.EventSessionPaused))
	assert.Equal(t, 1, h.sink.CountByType(schemas.EventSessionResumed))
}

func TestCancelRecordsSkippedResults(t *testing.T) {
	h := newHarness(t, 1)

	started := make(chan struct{}, 1)
	h.driver.navigate = func(ctx context.Context, url string) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}

	session, err := h.sched.NewSession(context.Background(), "tester", urls(5), schemas.SessionConfig{})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))

	<-started
	require.NoError(t, h.sched.Cancel(session.ID))
	session.Wait()

	summary := session.Summary()
	assert.Equal(t, schemas.StatusCancelled, summary.Status)
	assert.Len(t, summary.Results, 5, "every URL must have a terminal result")

	p := summary.Progress
	assert.Equal(t, p.Total, p.Completed+p.Failed+p.Skipped)
	assert.GreaterOrEqual(t, p.Skipped, 4, "undispatched URLs become skipped")
	assert.Equal(t, 0, h.pool.Active(), "cancellation must drain every held pool slot")
}

func TestCancelBeforeStartSettlesAllURLs(t *testing.T) {
	h := newHarness(t, 1)

	session, err := h.sched.NewSession(context.Background(), "tester", urls(3), schemas.SessionConfig{})
	require.NoError(t, err)
	require.NoError(t, h.sched.Cancel(session.ID))
	session.Wait()

	summary := session.Summary()
	assert.Equal(t, schemas.StatusCancelled, summary.Status)
	require.Len(t, summary.Results, 3, "every URL must have a terminal result")
	for _, r := range summary.Results {
		assert.Equal(t, schemas.ResultSkipped, r.Status)
	}

	p := summary.Progress
	assert.Equal(t, p.Total, p.Completed+p.Failed+p.Skipped)
	assert.Equal(t, 3, p.Skipped)
	assert.Equal(t, 0, h.pool.Active())
}

func TestRetryBudgetIsBounded(t *testing.T) {
	h := newHarness(t, 1)

	var attempts atomic.Int32
	h.driver.navigate = func(ctx context.Context, url string) error {
		attempts.Add(1)
		return schemas.Kindf(schemas.ErrNetwork, "connection refused")
	}

	session, err := h.sched.NewSession(context.Background(), "tester", urls(1), schemas.SessionConfig{
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	assert.Equal(t, int32(3), attempts.Load(), "RetryAttempts=2 allows exactly 3 attempts")

	summary := session.Summary()
	assert.Equal(t, schemas.StatusCompleted, summary.Status, "a URL failure does not fail the session")
	require.Len(t, summary.Results, 1)
	assert.Equal(t, schemas.ResultFailure, summary.Results[0].Status)
	assert.Equal(t, 3, summary.Results[0].Attempts)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, schemas.ErrNetwork, summary.Errors[0].Kind)
}

func TestNonRetryableErrorFailsFast(t *testing.T) {
	h := newHarness(t, 1)
	h.detector.forms = nil // no form on the page

	session, err := h.sched.NewSession(context.Background(), "tester", urls(1), schemas.SessionConfig{
		RetryAttempts: 3,
		RetryBackoff:  time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	assert.Equal(t, int32(1), h.detector.calls.Load(), "form_not_found must not be retried")
	summary := session.Summary()
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, schemas.ErrFormNotFound, summary.Errors[0].Kind)
}

func TestPoolExhaustionFailsSessionSystemically(t *testing.T) {
	h := newHarness(t, 1)
	h.pool.acquireErr = errors.New("browser allocator is gone")

	session, err := h.sched.NewSession(context.Background(), "tester", urls(3), schemas.SessionConfig{})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	summary := session.Summary()
	assert.Equal(t, schemas.StatusFailed, summary.Status)
	require.NotEmpty(t, summary.Errors)
	assert.Equal(t, schemas.ErrSystemResource, summary.Errors[0].Kind)
	assert.Len(t, summary.Results, 3, "undispatched URLs are still accounted for")
}

func TestInvalidLifecycleOperations(t *testing.T) {
	h := newHarness(t, 1)

	session, err := h.sched.NewSession(context.Background(), "tester", urls(1), schemas.SessionConfig{})
	require.NoError(t, err)

	// Pending sessions cannot be paused.
	assert.Error(t, h.sched.Pause(session.ID))

	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	// Terminal sessions reject every lifecycle operation.
	assert.Error(t, h.sched.Start(context.Background(), session.ID))
	assert.Error(t, h.sched.Pause(session.ID))
	assert.Error(t, h.sched.Cancel(session.ID))

	// Unknown IDs surface ErrSessionNotFound.
	err = h.sched.Pause("no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTemplateReplayBypassesDetection(t *testing.T) {
	target := urls(1)[0]
	tpl := schemas.FormTemplate{
		URL:            target,
		FormType:       schemas.FormRegistration,
		Version:        3,
		SubmitSelector: "#submit",
		Fields: []schemas.TemplateField{
			{Name: "email", Type: schemas.FieldEmail, Selector: "#email"},
			{Name: "first_name", Type: schemas.FieldText, Selector: "#first_name"},
		},
		LearnedAt: time.Now().UTC(),
	}

	templates := new(mocks.MockTemplateStore)
	templates.On("GetTemplate", mock.Anything, target).Return(tpl, nil)

	h := newHarness(t, 1, func(o *Options) { o.Templates = templates })

	session, err := h.sched.NewSession(context.Background(), "tester", []string{target}, schemas.SessionConfig{
		SaveTemplates: true,
	})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	summary := session.Summary()
	require.Len(t, summary.Results, 1)
	assert.Equal(t, schemas.ResultSuccess, summary.Results[0].Status)
	assert.Equal(t, int32(0), h.detector.calls.Load(), "a template hit must skip live detection")

	templates.AssertExpectations(t)
	// Replayed templates are not re-learned.
	templates.AssertNotCalled(t, "SaveTemplate", mock.Anything, mock.Anything)
}

func TestTemplateMissFallsBackToDetectionAndLearns(t *testing.T) {
	target := urls(1)[0]
	templates := new(mocks.MockTemplateStore)
	templates.On("GetTemplate", mock.Anything, target).Return(schemas.FormTemplate{}, schemas.ErrTemplateNotFound)
	templates.On("SaveTemplate", mock.Anything, mock.Anything).Return(nil)

	h := newHarness(t, 1, func(o *Options) { o.Templates = templates })

	session, err := h.sched.NewSession(context.Background(), "tester", []string{target}, schemas.SessionConfig{
		SaveTemplates: true,
	})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	assert.Equal(t, int32(1), h.detector.calls.Load())
	templates.AssertExpectations(t)
}

func TestCaptchaWithoutSolverFailsJob(t *testing.T) {
	h := newHarness(t, 1)
	form := testForm()
	form.HasCaptcha = true
	h.detector.forms = []schemas.DetectedForm{form}

	session, err := h.sched.NewSession(context.Background(), "tester", urls(1), schemas.SessionConfig{
		RetryAttempts: 2,
		RetryBackoff:  time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	summary := session.Summary()
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, schemas.ErrCaptcha, summary.Errors[0].Kind)
	assert.Equal(t, int32(1), h.detector.calls.Load(), "captcha failures must not be retried")
}

func TestCaptchaSolverUnblocksSubmission(t *testing.T) {
	solver := new(mocks.MockCaptchaSolver)
	solver.On("Solve", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	h := newHarness(t, 1, func(o *Options) { o.Solver = solver })
	form := testForm()
	form.HasCaptcha = true
	h.detector.forms = []schemas.DetectedForm{form}

	session, err := h.sched.NewSession(context.Background(), "tester", urls(1), schemas.SessionConfig{})
	require.NoError(t, err)
	require.NoError(t, h.sched.Start(context.Background(), session.ID))
	session.Wait()

	summary := session.Summary()
	require.Len(t, summary.Results, 1)
	assert.Equal(t, schemas.ResultSuccess, summary.Results[0].Status)
	solver.AssertExpectations(t)
}
