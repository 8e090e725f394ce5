package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codex-k8s/command-router/internal/audit"
	"github.com/codex-k8s/command-router/internal/cache"
	"github.com/codex-k8s/command-router/internal/guard"
	"github.com/codex-k8s/command-router/internal/metrics"
	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/resolver"
	"github.com/codex-k8s/command-router/internal/security"
	"github.com/codex-k8s/command-router/internal/validate"
)

// DefaultTimeout bounds executions of capabilities without their own timeout.
const DefaultTimeout = 30 * time.Second

// Options configures a Dispatcher. Every field is optional.
type Options struct {
	Logger *slog.Logger
	Audit  audit.Logger
	// Guards run per capability after validation.
	Guards map[string]guard.Chain
	// Cache stores results of read-only capabilities with a cache TTL.
	Cache          *cache.Cache
	Metrics        *metrics.Collectors
	DefaultTimeout time.Duration
}

// Dispatcher validates, guards and executes resolved calls.
type Dispatcher struct {
	logger         *slog.Logger
	audit          audit.Logger
	guards         map[string]guard.Chain
	cache          *cache.Cache
	metrics        *metrics.Collectors
	defaultTimeout time.Duration
	now            func() time.Time
}

// New returns a Dispatcher.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		logger:         opts.Logger,
		audit:          opts.Audit,
		guards:         opts.Guards,
		cache:          opts.Cache,
		metrics:        opts.Metrics,
		defaultTimeout: opts.DefaultTimeout,
		now:            time.Now,
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.audit == nil {
		d.audit = audit.New(d.logger)
	}
	if d.defaultTimeout <= 0 {
		d.defaultTimeout = DefaultTimeout
	}
	return d
}

type execResult struct {
	payload any
	err     error
}

// Dispatch runs call to a terminal outcome. It returns the outcome and the
// arguments that were validated, or the raw call arguments when validation failed.
// Dispatch never blocks longer than the capability timeout, even when the
// executor ignores cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, session string, call resolver.Call) (protocol.Outcome, map[string]any) {
	desc := call.Capability
	out := protocol.Outcome{Capability: desc.Name, StartedAt: d.now()}

	args, err := validate.Validate(desc.Schema, call.Arguments)
	if err != nil {
		rej := validationRejection(err)
		return d.finish(ctx, session, out.WithRejection(rej, d.now()), nil), call.Arguments
	}
	redacted := security.RedactArguments(args)

	cacheKey := ""
	if desc.ReadOnly && desc.CacheTTL > 0 && d.cache != nil {
		if key, err := cache.Key(desc.Name, args); err == nil {
			cacheKey = key
			if payload, ok := d.cache.Get(key); ok {
				d.metrics.CacheHit(desc.Name)
				out.Status = protocol.StatusSuccess
				out.Result = payload
				out.FinishedAt = d.now()
				return d.finish(ctx, session, out, redacted), args
			}
		}
	}

	if chain := d.guards[desc.Name]; len(chain) > 0 {
		decision, err := chain.Check(ctx, guard.Request{Capability: desc.Name, Arguments: args, Session: session})
		if err != nil || !decision.Allowed {
			d.audit.Record(ctx, audit.Event{
				Type:       audit.EventDenied,
				Session:    session,
				Capability: desc.Name,
				Arguments:  redacted,
				Reason:     decision.Reason,
			})
			rej := &protocol.Rejection{Reason: protocol.ReasonRateLimited, Detail: decision.Reason}
			if err != nil {
				rej = &protocol.Rejection{Reason: protocol.ReasonGuardError, Detail: fmt.Sprintf("%s: %v", decision.Source, err)}
			}
			return d.finish(ctx, session, out.WithRejection(rej, d.now()), redacted), args
		}
	}

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = d.defaultTimeout
	}
	d.audit.Record(ctx, audit.Event{Type: audit.EventDispatched, Session: session, Capability: desc.Name, Arguments: redacted})

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan execResult, 1)
	started := d.now()
	go func() {
		finished := d.metrics.ExecutionStarted()
		defer finished()
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		payload, err := desc.Executor.Execute(execCtx, args)
		done <- execResult{payload: payload, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-execCtx.Done():
		select {
		case res = <-done:
		default:
			d.metrics.ObserveDuration(desc.Name, d.now().Sub(started))
			out.FinishedAt = d.now()
			if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				d.logger.Warn("Capability timed out; execution orphaned",
					"capability", desc.Name, "session", session, "timeout", timeout.String())
				d.metrics.ExecutionOrphaned(desc.Name)
				d.audit.Record(ctx, audit.Event{Type: audit.EventOrphaned, Session: session, Capability: desc.Name, Arguments: redacted})
				out.Status = protocol.StatusTimedOut
				out.Reason = protocol.ReasonTimeout
				out.Error = fmt.Sprintf("%s did not finish within %s", desc.Name, timeout)
			} else {
				out.Status = protocol.StatusFailure
				out.Reason = protocol.ReasonCanceled
				out.Error = "dispatch canceled"
			}
			return d.finish(ctx, session, out, redacted), args
		}
	}

	d.metrics.ObserveDuration(desc.Name, d.now().Sub(started))
	out.FinishedAt = d.now()
	switch {
	case res.err == nil:
		out.Status = protocol.StatusSuccess
		out.Result = res.payload
		if cacheKey != "" {
			d.cache.Set(cacheKey, res.payload, desc.CacheTTL)
		}
	case errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		out.Status = protocol.StatusTimedOut
		out.Reason = protocol.ReasonTimeout
		out.Error = fmt.Sprintf("%s did not finish within %s: %v", desc.Name, timeout, res.err)
	case ctx.Err() != nil:
		out.Status = protocol.StatusFailure
		out.Reason = protocol.ReasonCanceled
		out.Error = res.err.Error()
	default:
		out.Status = protocol.StatusFailure
		out.Reason = protocol.ReasonBackendError
		out.Error = res.err.Error()
	}
	return d.finish(ctx, session, out, redacted), args
}

func (d *Dispatcher) finish(ctx context.Context, session string, out protocol.Outcome, args map[string]any) protocol.Outcome {
	d.metrics.ObserveOutcome(out.Capability, out.Status, out.Reason)
	d.audit.Record(ctx, audit.Event{
		Type:       audit.EventCompleted,
		Session:    session,
		Capability: out.Capability,
		Arguments:  args,
		Status:     out.Status,
		Reason:     out.Reason,
	})
	level := slog.LevelInfo
	if !out.Succeeded() {
		level = slog.LevelWarn
	}
	d.logger.Log(ctx, level, "Dispatch finished",
		"session", session,
		"capability", out.Capability,
		"status", out.Status,
		"reason", out.Reason,
		"error", out.Error,
		"duration", out.FinishedAt.Sub(out.StartedAt).String(),
	)
	return out
}

func validationRejection(err error) *protocol.Rejection {
	var (
		missing    *validate.MissingArgumentError
		invalid    *validate.InvalidArgumentTypeError
		constraint *validate.ConstraintError
	)
	switch {
	case errors.As(err, &missing):
		return &protocol.Rejection{Reason: protocol.ReasonMissingArgument, Argument: missing.Name, Detail: err.Error()}
	case errors.As(err, &invalid):
		return &protocol.Rejection{Reason: protocol.ReasonInvalidArgumentType, Argument: invalid.Name, Detail: err.Error()}
	case errors.As(err, &constraint):
		return &protocol.Rejection{Reason: protocol.ReasonInvalidArgument, Argument: constraint.Name, Detail: err.Error()}
	default:
		return &protocol.Rejection{Reason: protocol.ReasonInvalidArgument, Detail: err.Error()}
	}
}
