package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/backend"
	"github.com/codex-k8s/command-router/internal/cache"
	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/dispatch"
	"github.com/codex-k8s/command-router/internal/guard"
	"github.com/codex-k8s/command-router/internal/metrics"
	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/registry"
	"github.com/codex-k8s/command-router/internal/resolver"
)

type stubExecutor struct {
	calls atomic.Int32
	fn    func(ctx context.Context, args map[string]any) (any, error)
}

func (s *stubExecutor) Execute(ctx context.Context, args map[string]any) (any, error) {
	s.calls.Add(1)
	return s.fn(ctx, args)
}

func newDispatcher(opts dispatch.Options) *dispatch.Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return dispatch.New(opts)
}

func call(desc registry.Descriptor, args map[string]any) resolver.Call {
	return resolver.Call{Capability: desc, Arguments: args, SourceText: "test"}
}

func startVM(exec registry.Executor) registry.Descriptor {
	return registry.Descriptor{
		Name:     "start_vm",
		Executor: exec,
		Schema:   registry.Schema{{Name: "name", Type: constants.ArgString, Required: true}},
	}
}

func TestDispatchSuccess(t *testing.T) {
	exec := &stubExecutor{fn: func(_ context.Context, args map[string]any) (any, error) {
		return "started " + args["name"].(string), nil
	}}
	out, args := newDispatcher(dispatch.Options{}).Dispatch(context.Background(), "s", call(startVM(exec), map[string]any{"name": "ubuntu"}))

	assert.Equal(t, protocol.StatusSuccess, out.Status)
	assert.Equal(t, "started ubuntu", out.Result)
	assert.Empty(t, out.Error)
	assert.Equal(t, map[string]any{"name": "ubuntu"}, args)
	assert.False(t, out.FinishedAt.Before(out.StartedAt))
}

func TestDispatchMissingArgumentNeverExecutes(t *testing.T) {
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) { return nil, nil }}
	d := newDispatcher(dispatch.Options{})

	for i := 0; i < 3; i++ {
		out, _ := d.Dispatch(context.Background(), "s", call(startVM(exec), map[string]any{}))
		assert.Equal(t, protocol.StatusRejected, out.Status)
		assert.Equal(t, protocol.ReasonMissingArgument, out.Reason)
		assert.Equal(t, "name", out.Argument)
		assert.NotEmpty(t, out.Error)
	}
	assert.Zero(t, exec.calls.Load())
}

func TestDispatchInvalidType(t *testing.T) {
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) { return nil, nil }}
	out, _ := newDispatcher(dispatch.Options{}).Dispatch(context.Background(), "s", call(startVM(exec), map[string]any{"name": 7.0}))
	assert.Equal(t, protocol.ReasonInvalidArgumentType, out.Reason)
	assert.Zero(t, exec.calls.Load())
}

func TestDispatchBackendError(t *testing.T) {
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) {
		return nil, &backend.Error{Backend: "hypervisor", Detail: "Could not find a machine named 'ghost'"}
	}}
	out, _ := newDispatcher(dispatch.Options{}).Dispatch(context.Background(), "s", call(startVM(exec), map[string]any{"name": "ghost"}))

	assert.Equal(t, protocol.StatusFailure, out.Status)
	assert.Equal(t, protocol.ReasonBackendError, out.Reason)
	assert.Contains(t, out.Error, "ghost")
	assert.Equal(t, int32(1), exec.calls.Load(), "failures are not retried")
}

func TestDispatchTimeoutOrphansBlockingExecutor(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) {
		select {
		case <-time.After(5 * time.Second):
		case <-release:
		}
		return "late", nil
	}}
	desc := registry.Descriptor{Name: "slow", Executor: exec, Timeout: 2 * time.Second}
	m := metrics.New()

	start := time.Now()
	out, _ := newDispatcher(dispatch.Options{Metrics: m}).Dispatch(context.Background(), "s", call(desc, nil))
	elapsed := time.Since(start)

	assert.Equal(t, protocol.StatusTimedOut, out.Status)
	assert.Equal(t, protocol.ReasonTimeout, out.Reason)
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	assert.Less(t, elapsed, 4*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Orphaned.WithLabelValues("slow")))
}

func TestDispatchTimeoutCooperativeExecutor(t *testing.T) {
	exec := &stubExecutor{fn: func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	desc := registry.Descriptor{Name: "slow", Executor: exec, Timeout: 50 * time.Millisecond}
	out, _ := newDispatcher(dispatch.Options{}).Dispatch(context.Background(), "s", call(desc, nil))
	assert.Equal(t, protocol.StatusTimedOut, out.Status)
}

func TestDispatchUsesDefaultTimeout(t *testing.T) {
	exec := &stubExecutor{fn: func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	desc := registry.Descriptor{Name: "slow", Executor: exec}
	out, _ := newDispatcher(dispatch.Options{DefaultTimeout: 50 * time.Millisecond}).Dispatch(context.Background(), "s", call(desc, nil))
	assert.Equal(t, protocol.StatusTimedOut, out.Status)
}

func TestDispatchParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &stubExecutor{fn: func(ctx context.Context, _ map[string]any) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	desc := registry.Descriptor{Name: "list_processes", Executor: exec, Timeout: time.Minute}
	out, _ := newDispatcher(dispatch.Options{}).Dispatch(ctx, "s", call(desc, nil))
	assert.Equal(t, protocol.StatusFailure, out.Status)
	assert.Equal(t, protocol.ReasonCanceled, out.Reason)
}

func TestDispatchRecoversPanics(t *testing.T) {
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) {
		panic("boom")
	}}
	out, _ := newDispatcher(dispatch.Options{}).Dispatch(context.Background(), "s", call(registry.Descriptor{Name: "p", Executor: exec}, nil))
	assert.Equal(t, protocol.StatusFailure, out.Status)
	assert.Contains(t, out.Error, "boom")
}

func TestDispatchGuardDenies(t *testing.T) {
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) { return "ok", nil }}
	d := newDispatcher(dispatch.Options{Guards: map[string]guard.Chain{
		"start_vm": {guard.NewLimits("start_vm", 1, 0, nil)},
	}})

	out, _ := d.Dispatch(context.Background(), "s", call(startVM(exec), map[string]any{"name": "a"}))
	require.Equal(t, protocol.StatusSuccess, out.Status)

	out, _ = d.Dispatch(context.Background(), "s", call(startVM(exec), map[string]any{"name": "a"}))
	assert.Equal(t, protocol.StatusRejected, out.Status)
	assert.Equal(t, protocol.ReasonRateLimited, out.Reason)
	assert.Equal(t, int32(1), exec.calls.Load())
}

type brokenGuard struct{}

func (brokenGuard) Name() string { return "quota-store" }

func (brokenGuard) Check(context.Context, guard.Request) (guard.Decision, error) {
	return guard.Decision{}, errors.New("quota store unreachable")
}

func TestDispatchGuardErrorIsNotRateLimit(t *testing.T) {
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) { return "ok", nil }}
	d := newDispatcher(dispatch.Options{Guards: map[string]guard.Chain{
		"start_vm": {brokenGuard{}},
	}})

	out, _ := d.Dispatch(context.Background(), "s", call(startVM(exec), map[string]any{"name": "a"}))
	assert.Equal(t, protocol.StatusRejected, out.Status)
	assert.Equal(t, protocol.ReasonGuardError, out.Reason)
	assert.Contains(t, out.Error, "quota-store: quota store unreachable")
	assert.Zero(t, exec.calls.Load())
}

func TestDispatchCachesReadOnlyResults(t *testing.T) {
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) { return []string{"vm1"}, nil }}
	desc := registry.Descriptor{Name: "list_vms", Executor: exec, ReadOnly: true, CacheTTL: time.Minute}
	d := newDispatcher(dispatch.Options{Cache: cache.New(8)})

	for i := 0; i < 3; i++ {
		out, _ := d.Dispatch(context.Background(), "s", call(desc, nil))
		assert.Equal(t, protocol.StatusSuccess, out.Status)
		assert.Equal(t, []string{"vm1"}, out.Result)
	}
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestDispatchDoesNotCacheFailures(t *testing.T) {
	exec := &stubExecutor{fn: func(context.Context, map[string]any) (any, error) { return nil, errors.New("down") }}
	desc := registry.Descriptor{Name: "list_vms", Executor: exec, ReadOnly: true, CacheTTL: time.Minute}
	d := newDispatcher(dispatch.Options{Cache: cache.New(8)})

	for i := 0; i < 2; i++ {
		out, _ := d.Dispatch(context.Background(), "s", call(desc, nil))
		assert.Equal(t, protocol.StatusFailure, out.Status)
	}
	assert.Equal(t, int32(2), exec.calls.Load())
}
