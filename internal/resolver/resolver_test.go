package resolver_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/nlu"
	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/registry"
	"github.com/codex-k8s/command-router/internal/resolver"
)

func newResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	reg := registry.New()
	exec := registry.ExecutorFunc(func(context.Context, map[string]any) (any, error) { return nil, nil })
	require.NoError(t, reg.Register(registry.Descriptor{Name: "list_processes", Executor: exec}))
	require.NoError(t, reg.Register(registry.Descriptor{
		Name:     "start_vm",
		Executor: exec,
		Schema:   registry.Schema{{Name: "name", Type: constants.ArgString, Required: true}},
	}))
	reg.Seal()
	return resolver.New(reg, 0.6, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func rejection(t *testing.T, err error) *protocol.Rejection {
	t.Helper()
	var rej *protocol.Rejection
	require.ErrorAs(t, err, &rej)
	return rej
}

func TestResolveUnknownCapability(t *testing.T) {
	r := newResolver(t)
	tests := []nlu.Interpretation{
		{RawText: "faça café", Confidence: 1},
		{RawText: "faça café", Candidate: "make_coffee", Confidence: 1},
	}
	for _, interp := range tests {
		_, err := r.Resolve(interp)
		assert.Equal(t, protocol.ReasonUnknownCapability, rejection(t, err).Reason)
	}
}

func TestResolveLowConfidence(t *testing.T) {
	r := newResolver(t)
	interp := nlu.Interpretation{
		RawText:    "inicie a vm ubuntu",
		Candidate:  "start_vm",
		Arguments:  map[string]any{"name": "ubuntu"},
		Confidence: 0.59,
	}
	for i := 0; i < 3; i++ {
		_, err := r.Resolve(interp)
		assert.Equal(t, protocol.ReasonLowConfidence, rejection(t, err).Reason)
	}
}

func TestResolveAtThresholdAccepts(t *testing.T) {
	call, err := newResolver(t).Resolve(nlu.Interpretation{
		RawText:    "liste os processos",
		Candidate:  "list_processes",
		Confidence: 0.6,
	})
	require.NoError(t, err)
	assert.Equal(t, "list_processes", call.Capability.Name)
	assert.Equal(t, "liste os processos", call.SourceText)
}

func TestResolveDropsUnknownKeys(t *testing.T) {
	call, err := newResolver(t).Resolve(nlu.Interpretation{
		RawText:    "inicie a vm ubuntu",
		Candidate:  "start_vm",
		Arguments:  map[string]any{"name": "ubuntu", "force": true},
		Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ubuntu"}, call.Arguments)
}

func TestResolveDefersMissingArguments(t *testing.T) {
	call, err := newResolver(t).Resolve(nlu.Interpretation{
		RawText:    "inicie a VM",
		Candidate:  "start_vm",
		Confidence: 0.9,
	})
	require.NoError(t, err)
	assert.Empty(t, call.Arguments)
}

func TestNewDefaultsThreshold(t *testing.T) {
	r := resolver.New(registry.New(), 0, nil)
	assert.Equal(t, resolver.DefaultThreshold, r.Threshold())
}
