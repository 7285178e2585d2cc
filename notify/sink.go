package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Sink delivers notification events.
type Sink interface {
	Send(ctx context.Context, e *Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e *Event) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, e *Event) error { return f(ctx, e) }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

// Send delivers e to all sinks.
func (m Multi) Send(ctx context.Context, e *Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink. A nil logger means slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Send logs e. Error events log at warn level.
func (s *LogSink) Send(ctx context.Context, e *Event) error {
	level := slog.LevelInfo
	if e.Type == TypeError || e.Type == TypeThreshold {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "notification",
		slog.String("event_id", e.ID.String()),
		slog.String("type", string(e.Type)),
		slog.String("tag", string(e.Tag)),
		slog.String("job_id", e.JobID.String()),
		slog.Any("data", e.Data),
	)
	return nil
}
