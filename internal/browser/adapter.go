// File: internal/browser/adapter.go
package browser

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/scheduler"
)

// PoolAdapter exposes a Pool through the scheduler's narrow ResourcePool
// contract so the scheduler never depends on this package directly.
type PoolAdapter struct {
	pool *Pool
}

var _ scheduler.ResourcePool = (*PoolAdapter)(nil)

// NewPoolAdapter wraps a Pool for the scheduler.
func NewPoolAdapter(pool *Pool) *PoolAdapter {
	return &PoolAdapter{pool: pool}
}

func (a *PoolAdapter) Acquire(ctx context.Context) (scheduler.PoolHandle, error) {
	h, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (a *PoolAdapter) Release(h scheduler.PoolHandle) {
	if handle, ok := h.(*Handle); ok {
		a.pool.Release(handle)
	}
}

func (a *PoolAdapter) Size() int { return a.pool.Size() }

// DriverFactory builds the scheduler's driver factory over real browser
// handles.
func DriverFactory(cfg config.BrowserConfig, logger *zap.Logger) scheduler.DriverFactory {
	return func(h scheduler.PoolHandle) schemas.BrowserDriver {
		handle, ok := h.(*Handle)
		if !ok {
			return nil
		}
		return NewDriver(handle, cfg, logger)
	}
}
