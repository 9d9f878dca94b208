// File: internal/browser/pool.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// Handle is the right to exclusively use one browser tab for the duration of
// a job. Handles are created lazily and recycled between jobs.
type Handle struct {
	id        string
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Context returns the chromedp tab context owned by this handle.
func (h *Handle) Context() context.Context { return h.tabCtx }

// newTabFunc creates a browser tab context under the given parent. It is a
// field on the pool so tests can substitute a stub without a browser binary.
type newTabFunc func(parent context.Context) (context.Context, context.CancelFunc, error)

// Pool owns a bounded set of browser tab handles backed by one shared
// headless browser process. Acquire blocks until a slot frees up or the
// caller's context ends; Release returns the slot. Outstanding handles never
// exceed the pool size.
type Pool struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	size int
	sem  *semaphore.Weighted

	allocCtx    context.Context
	allocCancel context.CancelFunc

	newTab newTabFunc

	mu          sync.Mutex
	idle        []*Handle
	outstanding int
	closed      bool
}

// NewPool launches the shared browser process and prepares a pool of the
// given size. The process is verified responsive before the pool is handed
// out, so a broken browser install fails fast instead of failing per job.
func NewPool(ctx context.Context, size int, cfg config.BrowserConfig, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		logger: logger.Named("browser_pool"),
		cfg:    cfg,
		size:   size,
		sem:    semaphore.NewWeighted(int64(size)),
	}
	p.newTab = p.newChromeTab

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, buildAllocatorOptions(cfg)...)
	p.allocCtx = allocCtx
	p.allocCancel = cancel

	// Confirm the browser starts and responds before accepting work.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	testCtx, cancelTab := chromedp.NewContext(testCtx)
	defer cancelTab()
	defer cancelTest()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		p.allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	p.logger.Info("Browser pool ready", zap.Int("size", size), zap.Bool("headless", cfg.Headless))
	return p, nil
}

// newPoolForTest builds a pool without launching a browser. Used by tests.
func newPoolForTest(size int, newTab newTabFunc, logger *zap.Logger) *Pool {
	allocCtx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		logger:      logger.Named("browser_pool"),
		size:        size,
		sem:         semaphore.NewWeighted(int64(size)),
		allocCtx:    allocCtx,
		allocCancel: cancel,
		newTab:      newTab,
	}
}

// buildAllocatorOptions assembles the browser process flags, filtering the
// automation banner flag the same way the stock options would reveal it.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	// A bool flag set to false is omitted from the command line, which hides
	// the automation banner flag the same way dropping it would.
	opts = append(opts, chromedp.Flag("enable-automation", false))

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Flags required when running inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	return opts
}

// newChromeTab opens a fresh tab under the shared browser process.
func (p *Pool) newChromeTab(parent context.Context) (context.Context, context.CancelFunc, error) {
	tabCtx, cancel := chromedp.NewContext(parent)
	// Force target creation now so a dead browser surfaces here, not mid-job.
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, nil, err
	}
	return tabCtx, cancel, nil
}

// Acquire blocks until a slot is free or ctx is done. The returned handle
// must be passed to Release exactly once.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		// Context cancellation or deadline; the caller decides retryability.
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, schemas.Kindf(schemas.ErrSystemResource, "browser pool is closed")
	}
	var h *Handle
	if n := len(p.idle); n > 0 {
		h = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.outstanding++
	p.mu.Unlock()

	if h != nil {
		return h, nil
	}

	tabCtx, cancel, err := p.newTab(p.allocCtx)
	if err != nil {
		p.mu.Lock()
		p.outstanding--
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, schemas.Kindf(schemas.ErrSystemResource, "failed to open browser tab: %w", err)
	}

	h = &Handle{id: uuid.NewString(), tabCtx: tabCtx, tabCancel: cancel}
	p.logger.Debug("Opened new browser tab", zap.String("handle", h.id[:8]))
	return h, nil
}

// Release returns the handle's slot to the pool. Healthy tabs are recycled;
// tabs whose context has died are discarded so the next Acquire opens a
// fresh one.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	p.mu.Lock()
	p.outstanding--
	recycle := !p.closed && h.tabCtx.Err() == nil
	if recycle {
		p.idle = append(p.idle, h)
	}
	p.mu.Unlock()

	if !recycle {
		h.tabCancel()
	}
	p.sem.Release(1)
}

// Outstanding reports the number of currently acquired handles.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Size returns the fixed pool capacity.
func (p *Pool) Size() int { return p.size }

// Close marks the pool closed, tears down idle tabs, and terminates the
// shared browser process. Outstanding handles keep working until released;
// their tabs die with the browser process shutdown below, so callers should
// drain jobs before closing.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, h := range idle {
		h.tabCancel()
	}
	p.allocCancel()
	p.logger.Info("Browser pool closed")
}
