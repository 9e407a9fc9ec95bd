package audit

import (
	"context"
	"time"

	"github.com/jimf8th/my-skool-club-sub000/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close flushes any buffered events
	Close() error
}

// NewNoOpLogger returns a logger that discards events
func NewNoOpLogger() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *Event) error { return nil }
func (noOpLogger) Close() error                                { return nil }

// Recorder stamps events with time and request id and never fails the caller:
// sink errors are logged and swallowed so an audit outage cannot block a transition.
type Recorder struct {
	sink Logger
}

// NewRecorder wraps sink; a nil sink discards
func NewRecorder(sink Logger) *Recorder {
	if sink == nil {
		sink = NewNoOpLogger()
	}
	return &Recorder{sink: sink}
}

// Record writes event to the sink
func (r *Recorder) Record(ctx context.Context, event *Event) {
	if r == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = EventStatusSuccess
	}
	if event.RequestID == "" {
		event.RequestID = observability.GetRequestID(ctx)
	}

	if err := r.sink.Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to write audit event")
	}
}

// Denied records a guard denial
func (r *Recorder) Denied(ctx context.Context, actorID int64, resourceType ResourceType, resourceID string, reason string) {
	r.Record(ctx, &Event{
		EventType:    EventTypeAuthzAccessDenied,
		Status:       EventStatusDenied,
		ActorID:      &actorID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Message:      reason,
	})
}
