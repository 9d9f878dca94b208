// File: internal/telemetry/telemetry.go
// Package telemetry provides event sinks for session and job lifecycle
// notifications. Sinks never block the engine; the channel sink drops
// events when its buffer is full.
package telemetry

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// LogSink writes lifecycle events to the structured log.
type LogSink struct {
	log *zap.Logger
}

var _ schemas.EventSink = (*LogSink)(nil)

// NewLogSink creates a sink over logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{log: logger.Named("events")}
}

func (s *LogSink) Publish(event schemas.Event) {
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("session_id", event.SessionID),
	}
	if event.URL != "" {
		fields = append(fields, zap.String("url", event.URL))
	}
	if event.Status != "" {
		fields = append(fields, zap.String("status", string(event.Status)))
	}
	if event.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", event.Attempt))
	}
	if event.Progress != nil {
		fields = append(fields, zap.Float64("percent", event.Progress.Percent))
	}
	s.log.Info("Lifecycle event", fields...)
}

// ChannelSink forwards events to a bounded channel for external consumers
// such as a progress UI. When the consumer falls behind, events are dropped
// rather than stalling the scheduler.
type ChannelSink struct {
	ch      chan schemas.Event
	log     *zap.Logger
	dropped atomic.Int64
}

var _ schemas.EventSink = (*ChannelSink)(nil)

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int, logger *zap.Logger) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{
		ch:  make(chan schemas.Event, buffer),
		log: logger.Named("events"),
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan schemas.Event { return s.ch }

func (s *ChannelSink) Publish(event schemas.Event) {
	select {
	case s.ch <- event:
	default:
		n := s.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			s.log.Warn("Event sink saturated, dropping events", zap.Int64("dropped", n))
		}
	}
}

// Close closes the channel. Publish must not be called after Close.
func (s *ChannelSink) Close() { close(s.ch) }

// Fanout publishes every event to all wrapped sinks.
type Fanout []schemas.EventSink

func (f Fanout) Publish(event schemas.Event) {
	for _, sink := range f {
		sink.Publish(event)
	}
}
