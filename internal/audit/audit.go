package audit

import (
	"context"
	"log/slog"
)

// Event types.
const (
	EventDispatched = "dispatched"
	EventDenied     = "denied"
	EventCompleted  = "completed"
	EventOrphaned   = "orphaned"
)

// Event represents an audit entry for capability dispatch.
type Event struct {
	// Type describes the event kind.
	Type string
	// Session is the conversation session.
	Session string
	// Capability is the capability name.
	Capability string
	// Arguments are the redacted arguments.
	Arguments map[string]any
	// Status is the outcome status, when known.
	Status string
	// Reason provides additional context.
	Reason string
}

// Logger records audit events.
type Logger interface {
	// Record stores an audit event.
	Record(ctx context.Context, event Event)
}

// StdLogger writes audit events to slog.
type StdLogger struct {
	logger *slog.Logger
}

// New returns a StdLogger.
func New(logger *slog.Logger) *StdLogger {
	return &StdLogger{logger: logger}
}

// Record logs an audit event.
func (l *StdLogger) Record(_ context.Context, event Event) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Info("audit",
		"type", event.Type,
		"session", event.Session,
		"capability", event.Capability,
		"arguments", event.Arguments,
		"status", event.Status,
		"reason", event.Reason,
	)
}
