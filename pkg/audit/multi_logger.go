package audit

import (
	"context"
	"errors"

	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// MultiLogger fans an event out to several loggers
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes to every logger, continuing past failures
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every logger
func (m *MultiLogger) Close() error {
	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogLogger writes events to the structured application log
type LogLogger struct{}

// Log emits the event at info level, or warn for denials
func (LogLogger) Log(ctx context.Context, event *Event) error {
	entry := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"audit_event":   string(event.EventType),
		"audit_status":  string(event.Status),
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
	})
	if event.Status == EventStatusDenied {
		entry.Warn(event.Message)
		return nil
	}
	entry.Info(event.Message)
	return nil
}

// Close is a no-op
func (LogLogger) Close() error { return nil }
