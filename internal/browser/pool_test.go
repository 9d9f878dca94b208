// File: internal/browser/pool_test.go
package browser

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubTab counts tab creations and hands out independently cancellable
// contexts, standing in for real chromedp targets.
func stubTab(created *atomic.Int32) newTabFunc {
	return func(parent context.Context) (context.Context, context.CancelFunc, error) {
		created.Add(1)
		ctx, cancel := context.WithCancel(parent)
		return ctx, cancel, nil
	}
}

func TestAcquireReleaseRecyclesTabs(t *testing.T) {
	var created atomic.Int32
	p := newPoolForTest(2, stubTab(&created), nil)
	defer p.Close()

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Outstanding())

	p.Release(h1)
	assert.Equal(t, 0, p.Outstanding())

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(h2)

	assert.Equal(t, h1.ID(), h2.ID(), "a healthy tab is recycled, not reopened")
	assert.Equal(t, int32(1), created.Load())
}

func TestDeadTabIsDiscardedOnRelease(t *testing.T) {
	var created atomic.Int32
	p := newPoolForTest(1, stubTab(&created), nil)
	defer p.Close()

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	h1.tabCancel() // simulate a crashed tab
	p.Release(h1)

	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(h2)

	assert.NotEqual(t, h1.ID(), h2.ID())
	assert.Equal(t, int32(2), created.Load(), "a dead tab forces a fresh one")
}

func TestAcquireBlocksAtCapacity(t *testing.T) {
	var created atomic.Int32
	p := newPoolForTest(1, stubTab(&created), nil)
	defer p.Close()

	h1, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.Error(t, err, "second acquire must block until timeout")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Release(h1)
	h2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(h2)
}

func TestTabCreationFailureReleasesSlot(t *testing.T) {
	fail := func(parent context.Context) (context.Context, context.CancelFunc, error) {
		return nil, nil, errors.New("browser is gone")
	}
	p := newPoolForTest(1, fail, nil)
	defer p.Close()

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, schemas.ErrSystemResource, schemas.ClassifyError(err))
	assert.Equal(t, 0, p.Outstanding())

	// The slot must not leak: a subsequent acquire still reaches newTab.
	_, err = p.Acquire(context.Background())
	require.Error(t, err)
}

func TestClosedPoolRejectsAcquire(t *testing.T) {
	var created atomic.Int32
	p := newPoolForTest(1, stubTab(&created), nil)
	p.Close()

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, schemas.ErrSystemResource, schemas.ClassifyError(err))
}
