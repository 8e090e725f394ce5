package resolver

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/codex-k8s/command-router/internal/nlu"
	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/registry"
)

// DefaultThreshold is the acceptance threshold used when none is configured.
const DefaultThreshold = 0.6

// Call is a capability bound to raw arguments. Arguments still need validation.
type Call struct {
	Capability registry.Descriptor
	Arguments  map[string]any
	SourceText string
}

// Lookup finds registered capabilities.
type Lookup interface {
	Lookup(name string) (registry.Descriptor, error)
}

// Resolver maps interpretations onto registered capabilities.
type Resolver struct {
	registry  Lookup
	threshold float64
	logger    *slog.Logger
}

// New returns a resolver. A non-positive threshold selects DefaultThreshold.
func New(reg Lookup, threshold float64, logger *slog.Logger) *Resolver {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{registry: reg, threshold: threshold, logger: logger}
}

// Threshold returns the acceptance threshold.
func (r *Resolver) Threshold() float64 {
	return r.threshold
}

// Resolve binds an interpretation to a capability. Failures are *protocol.Rejection.
func (r *Resolver) Resolve(interp nlu.Interpretation) (Call, error) {
	if interp.Candidate == "" {
		return Call{}, protocol.Reject(protocol.ReasonUnknownCapability, "no capability matches %q", interp.RawText)
	}
	desc, err := r.registry.Lookup(interp.Candidate)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return Call{}, protocol.Reject(protocol.ReasonUnknownCapability, "capability %q is not registered", interp.Candidate)
		}
		return Call{}, err
	}
	if interp.Confidence < r.threshold {
		return Call{}, protocol.Reject(protocol.ReasonLowConfidence,
			"confidence %.2f for %q is below %.2f", interp.Confidence, desc.Name, r.threshold)
	}

	bound := make(map[string]any, len(desc.Schema))
	var dropped []string
	for key, value := range interp.Arguments {
		if _, ok := desc.Schema.Lookup(key); !ok {
			dropped = append(dropped, key)
			continue
		}
		bound[key] = value
	}
	if len(dropped) > 0 {
		sort.Strings(dropped)
		r.logger.Warn("Dropped undeclared arguments", "capability", desc.Name, "arguments", dropped)
	}

	return Call{Capability: desc, Arguments: bound, SourceText: interp.RawText}, nil
}
