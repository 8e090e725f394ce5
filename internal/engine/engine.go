package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/dispatch"
	"github.com/codex-k8s/command-router/internal/nlu"
	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/recorder"
	"github.com/codex-k8s/command-router/internal/registry"
	"github.com/codex-k8s/command-router/internal/resolver"
	"github.com/codex-k8s/command-router/internal/security"
	"github.com/codex-k8s/command-router/internal/templates"
)

const (
	recordTimeout = 5 * time.Second
	summaryLimit  = 512
)

// Options wires an Engine.
type Options struct {
	Registry    *registry.Registry
	Interpreter nlu.Interpreter
	Resolver    *resolver.Resolver
	Dispatcher  *dispatch.Dispatcher
	Recorder    *recorder.Recorder
	Renderer    templates.Renderer
	Logger      *slog.Logger
}

// Engine turns utterances into recorded outcomes. Utterances of one session
// are processed strictly one after another; sessions run concurrently.
type Engine struct {
	registry    *registry.Registry
	interpreter nlu.Interpreter
	resolver    *resolver.Resolver
	dispatcher  *dispatch.Dispatcher
	recorder    *recorder.Recorder
	renderer    templates.Renderer
	logger      *slog.Logger
	lanes       *lanes
	now         func() time.Time
}

// New validates opts and returns an Engine. The registry must be sealed.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Registry == nil:
		return nil, errors.New("engine requires a registry")
	case !opts.Registry.Sealed():
		return nil, errors.New("engine requires a sealed registry")
	case opts.Interpreter == nil:
		return nil, errors.New("engine requires an interpreter")
	case opts.Recorder == nil:
		return nil, errors.New("engine requires a recorder")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := opts.Resolver
	if res == nil {
		res = resolver.New(opts.Registry, 0, logger)
	}
	disp := opts.Dispatcher
	if disp == nil {
		disp = dispatch.New(dispatch.Options{Logger: logger})
	}
	return &Engine{
		registry:    opts.Registry,
		interpreter: opts.Interpreter,
		resolver:    res,
		dispatcher:  disp,
		recorder:    opts.Recorder,
		renderer:    opts.Renderer,
		logger:      logger,
		lanes:       newLanes(),
		now:         time.Now,
	}, nil
}

// Submit interprets, resolves, dispatches and records one utterance. It
// always returns a terminal outcome and every outcome is recorded once.
func (e *Engine) Submit(ctx context.Context, session, text string) protocol.Outcome {
	session = strings.TrimSpace(session)
	if session == "" {
		session = constants.DefaultSession
	}
	text = strings.TrimSpace(text)
	received := e.now()

	release, err := e.lanes.acquire(ctx, session)
	if err != nil {
		out := protocol.Outcome{
			Status:     protocol.StatusFailure,
			Reason:     protocol.ReasonCanceled,
			Error:      "canceled while waiting for the session: " + err.Error(),
			StartedAt:  received,
			FinishedAt: e.now(),
		}
		return e.complete(ctx, session, text, out, nil)
	}
	defer release()

	out, args := e.process(ctx, session, text)
	out.StartedAt = received
	return e.complete(ctx, session, text, out, args)
}

func (e *Engine) process(ctx context.Context, session, text string) (protocol.Outcome, map[string]any) {
	if text == "" {
		rej := protocol.Reject(protocol.ReasonUnknownCapability, "empty utterance")
		return protocol.Outcome{}.WithRejection(rej, e.now()), nil
	}

	interp, err := e.interpreter.Interpret(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Outcome{
				Status:     protocol.StatusFailure,
				Reason:     protocol.ReasonCanceled,
				Error:      err.Error(),
				FinishedAt: e.now(),
			}, nil
		}
		e.logger.Error("Interpreter failed", "session", session, "error", err)
		rej := &protocol.Rejection{Reason: protocol.ReasonInterpreterError, Detail: err.Error()}
		return protocol.Outcome{}.WithRejection(rej, e.now()), nil
	}
	interp.RawText = text

	call, err := e.resolver.Resolve(interp)
	if err != nil {
		var rej *protocol.Rejection
		if !errors.As(err, &rej) {
			rej = &protocol.Rejection{Reason: protocol.ReasonInterpreterError, Detail: err.Error()}
		}
		out := protocol.Outcome{Capability: interp.Candidate}.WithRejection(rej, e.now())
		if rej.Reason == protocol.ReasonUnknownCapability {
			out.Capability = ""
		}
		return out, interp.Arguments
	}

	return e.dispatcher.Dispatch(ctx, session, call)
}

func (e *Engine) complete(ctx context.Context, session, text string, out protocol.Outcome, args map[string]any) protocol.Outcome {
	out.Message = e.message(out)

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	out.Sequence = e.recorder.Record(recCtx, protocol.Record{
		Session:    session,
		Timestamp:  out.FinishedAt,
		RawText:    text,
		Capability: out.Capability,
		Arguments:  encodeArguments(args),
		Status:     out.Status,
		Reason:     out.Reason,
		Summary:    summarize(out),
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
	})
	return out
}

// History returns up to limit interaction records, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]protocol.Record, error) {
	return e.recorder.History(ctx, limit)
}

// Capabilities lists registered capabilities in registration order.
func (e *Engine) Capabilities() []registry.Descriptor {
	return e.registry.All()
}

func (e *Engine) message(out protocol.Outcome) string {
	data := map[string]any{
		"Capability": out.Capability,
		"Argument":   out.Argument,
		"Error":      out.Error,
		"Reason":     out.Reason,
	}
	key := "outcome." + out.Status
	fallback := out.Status
	if out.Status == protocol.StatusRejected || out.Reason == protocol.ReasonCanceled {
		key = "reason." + out.Reason
		fallback = out.Error
	} else if out.Status == protocol.StatusFailure {
		fallback = out.Error
	}
	return templates.RenderOr(e.renderer, key, data, fallback)
}

func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	raw, err := json.Marshal(security.RedactArguments(args))
	if err != nil {
		return fmt.Sprint(security.RedactArguments(args))
	}
	return string(raw)
}

func summarize(out protocol.Outcome) string {
	if !out.Succeeded() {
		return truncate(out.Error)
	}
	if out.Result == nil {
		return ""
	}
	if s, ok := out.Result.(string); ok {
		return truncate(s)
	}
	raw, err := json.Marshal(out.Result)
	if err != nil {
		return truncate(fmt.Sprint(out.Result))
	}
	return truncate(string(raw))
}

func truncate(s string) string {
	if len(s) <= summaryLimit {
		return s
	}
	cut := summaryLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
