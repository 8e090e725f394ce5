package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/codex-k8s/command-router/internal/protocol"
)

// DefaultHistoryLimit is used when History is called with a non-positive limit.
const DefaultHistoryLimit = 10

// degradedBit marks sequence ids issued while the store was unavailable.
const degradedBit = uint64(1) << 63

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("recorder store is closed")

// Store is durable, append-only interaction storage. Append must be safe for
// concurrent callers and return monotonically increasing ids.
type Store interface {
	Append(ctx context.Context, rec protocol.Record) (uint64, error)
	// History returns up to limit records, newest first.
	History(ctx context.Context, limit int) ([]protocol.Record, error)
	Close() error
}

// FailureObserver is notified of every failed append.
type FailureObserver interface {
	RecorderFailed()
}

// Recorder persists interaction records on a best-effort basis.
type Recorder struct {
	store    Store
	logger   *slog.Logger
	observer FailureObserver
	degraded atomic.Uint64
}

// New wraps store. observer may be nil.
func New(store Store, logger *slog.Logger, observer FailureObserver) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, observer: observer}
}

// Record appends rec and returns its sequence id. It never fails: when the
// store is unavailable the error is logged and a degraded id is returned.
func (r *Recorder) Record(ctx context.Context, rec protocol.Record) uint64 {
	seq, err := r.store.Append(ctx, rec)
	if err == nil {
		return seq
	}
	id := degradedBit | r.degraded.Add(1)
	r.logger.Error("Interaction record not persisted",
		"error", err,
		"session", rec.Session,
		"capability", rec.Capability,
		"status", rec.Status,
		"degraded_sequence", id,
	)
	if r.observer != nil {
		r.observer.RecorderFailed()
	}
	return id
}

// History returns up to limit records, newest first.
func (r *Recorder) History(ctx context.Context, limit int) ([]protocol.Record, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return r.store.History(ctx, limit)
}

// Close closes the underlying store.
func (r *Recorder) Close() error {
	return r.store.Close()
}

// IsDegraded reports whether seq was issued in degraded mode.
func IsDegraded(seq uint64) bool {
	return seq&degradedBit != 0
}
