// File: internal/telemetry/telemetry_test.go
package telemetry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func TestChannelSinkDelivers(t *testing.T) {
	sink := NewChannelSink(4, zap.NewNop())
	defer sink.Close()

	sink.Publish(schemas.Event{Type: schemas.EventSessionStarted, SessionID: "s1"})
	sink.Publish(schemas.Event{Type: schemas.EventJobFinished, SessionID: "s1"})

	require.Len(t, sink.Events(), 2)
	first := <-sink.Events()
	assert.Equal(t, schemas.EventSessionStarted, first.Type)
}

func TestChannelSinkDropsWhenFull(t *testing.T) {
	sink := NewChannelSink(2, zap.NewNop())
	defer sink.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Publishing far past the buffer must never block.
		for i := 0; i < 100; i++ {
			sink.Publish(schemas.Event{Type: schemas.EventJobStarted, SessionID: fmt.Sprintf("s%d", i)})
		}
	}()
	<-done

	assert.Len(t, sink.Events(), 2, "overflow is dropped, not queued")
}

func TestFanoutReachesAllSinks(t *testing.T) {
	a := NewChannelSink(4, zap.NewNop())
	b := NewChannelSink(4, zap.NewNop())
	defer a.Close()
	defer b.Close()

	Fanout{a, b}.Publish(schemas.Event{Type: schemas.EventSessionCompleted, SessionID: "s1"})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}
