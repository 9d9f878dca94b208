// File: internal/browser/driver.go
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// Driver implements schemas.BrowserDriver on top of a pool handle's tab
// context. One driver serves one job; it holds no state beyond the handle.
type Driver struct {
	handle *Handle
	cfg    config.BrowserConfig
	logger *zap.Logger
}

var _ schemas.BrowserDriver = (*Driver)(nil)

// NewDriver wraps a pool handle in the BrowserDriver capability interface.
func NewDriver(h *Handle, cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{handle: h, cfg: cfg, logger: logger.Named("driver").With(zap.String("handle", h.ID()[:8]))}
}

// run executes chromedp actions on the tab while honoring the job context.
// The tab context carries the chromedp target; the job context carries the
// deadline. Cancelling the bridge context aborts the run without killing
// the tab itself.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.handle.Context())
	defer cancel()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	err := chromedp.Run(runCtx, actions...)
	close(done)

	if err != nil && ctx.Err() != nil {
		// Prefer the job context's verdict so timeouts classify correctly.
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the document body, then lets async work
// settle for the configured post-load window.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating", zap.String("url", url))

	navCtx := ctx
	if d.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, d.cfg.NavigationTimeout)
		defer cancel()
	}

	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if d.cfg.DisableCache {
				return network.SetCacheDisabled(true).Do(ctx)
			}
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if d.cfg.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(d.cfg.PostLoadWait))
	}

	if err := d.run(navCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return schemas.Kindf(schemas.ErrNetwork, "navigation to %s failed: %w", url, err)
	}
	return nil
}

// FillField clears the element matching selector and types value into it.
func (d *Driver) FillField(ctx context.Context, selector, value string) error {
	err := d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return schemas.Kindf(schemas.ErrFieldNotFound, "fill %q failed: %w", selector, err)
	}
	return nil
}

// Click clicks the element matching selector.
func (d *Driver) Click(ctx context.Context, selector string) error {
	err := d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return schemas.Kindf(schemas.ErrFieldNotFound, "click %q failed: %w", selector, err)
	}
	return nil
}

// Snapshot captures the current page URL, title, and serialized DOM.
func (d *Driver) Snapshot(ctx context.Context) (schemas.PageSnapshot, error) {
	var snap schemas.PageSnapshot
	err := d.run(ctx,
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return snap, err
		}
		return snap, schemas.Kindf(schemas.ErrNetwork, "page snapshot failed: %w", err)
	}
	snap.TakenAt = time.Now()
	return snap, nil
}

// Screenshot captures the viewport as PNG bytes.
func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, schemas.Kindf(schemas.ErrNetwork, "screenshot failed: %w", err)
	}
	return buf, nil
}
