// Package events defines the outbound event-bus boundary. The risk core
// emits named events fire-and-forget; consumers live outside this
// service.
package events

import (
	"context"
	"log/slog"
)

// Sink receives named security events with arbitrary payloads.
// Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, event string, payload map[string]any) error
}

// LogSink writes events to the structured log. It is the default when no
// broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, event string, payload map[string]any) error {
	s.logger.Info("event emitted",
		slog.String("event", event),
		slog.Any("payload", payload),
	)
	return nil
}
