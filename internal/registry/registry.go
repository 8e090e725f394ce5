package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codex-k8s/command-router/internal/constants"
)

var (
	ErrDuplicateCapability = errors.New("duplicate capability")
	ErrNotFound            = errors.New("capability not found")
	ErrSealed              = errors.New("registry is sealed")
	ErrInvalidDescriptor   = errors.New("invalid capability descriptor")
)

// Executor performs the side effect behind a capability.
type Executor interface {
	// Execute runs the capability with validated arguments and returns its payload.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, args map[string]any) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Constraints narrows the accepted values of an argument.
type Constraints struct {
	// Pattern must match string and path values.
	Pattern *regexp.Regexp
	// Min sets numeric minimum.
	Min *float64
	// Max sets numeric maximum.
	Max *float64
	// MinLength sets string minimum length.
	MinLength *int
	// MaxLength sets string maximum length.
	MaxLength *int
	// Enum lists accepted string values.
	Enum []string
}

// ArgumentSpec describes one argument of a capability.
type ArgumentSpec struct {
	// Name is the argument key.
	Name string
	// Type is one of the constants.Arg* values.
	Type string
	// Required marks arguments that must be supplied or defaulted.
	Required bool
	// Default is used when the argument is absent.
	Default any
	// Description explains the argument to interpreters and users.
	Description string
	// Constraints narrows accepted values.
	Constraints Constraints
}

// Schema is the ordered argument list of a capability.
type Schema []ArgumentSpec

// Lookup returns the argument spec by name.
func (s Schema) Lookup(name string) (ArgumentSpec, bool) {
	for _, spec := range s {
		if spec.Name == name {
			return spec, true
		}
	}
	return ArgumentSpec{}, false
}

// Names returns argument names in declaration order.
func (s Schema) Names() []string {
	out := make([]string, 0, len(s))
	for _, spec := range s {
		out = append(out, spec.Name)
	}
	return out
}

// Descriptor is an immutable capability definition.
type Descriptor struct {
	// Name is the unique capability id.
	Name string
	// Description is used for matching and help output.
	Description string
	// Schema is the ordered argument schema.
	Schema Schema
	// Executor performs the action.
	Executor Executor
	// Timeout bounds a single execution; zero means the dispatcher default.
	Timeout time.Duration
	// ReadOnly marks capabilities without side effects.
	ReadOnly bool
	// CacheTTL enables result caching for read-only capabilities.
	CacheTTL time.Duration
}

// Registry is the catalog of capabilities. It is populated once at start and
// sealed before any dispatch; it is read-only afterwards.
type Registry struct {
	sealed atomic.Bool
	order  []string
	byName map[string]Descriptor
}

// New returns an empty, unsealed registry.
func New() *Registry {
	return &Registry{byName: make(map[string]Descriptor)}
}

// Register adds a descriptor. It is not safe to call concurrently.
func (r *Registry) Register(d Descriptor) error {
	if r.sealed.Load() {
		return fmt.Errorf("%w: cannot register %q", ErrSealed, d.Name)
	}
	if err := checkDescriptor(d); err != nil {
		return err
	}
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCapability, d.Name)
	}
	d.Schema = append(Schema(nil), d.Schema...)
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether the registry is frozen.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return d, nil
}

// All returns descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.order)
}

func checkDescriptor(d Descriptor) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidDescriptor)
	}
	if d.Executor == nil {
		return fmt.Errorf("%w: %q has no executor", ErrInvalidDescriptor, d.Name)
	}
	seen := make(map[string]struct{}, len(d.Schema))
	for _, spec := range d.Schema {
		if strings.TrimSpace(spec.Name) == "" {
			return fmt.Errorf("%w: %q has an unnamed argument", ErrInvalidDescriptor, d.Name)
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("%w: %q declares argument %q twice", ErrInvalidDescriptor, d.Name, spec.Name)
		}
		seen[spec.Name] = struct{}{}
		switch spec.Type {
		case constants.ArgString, constants.ArgPath, constants.ArgInteger, constants.ArgNumber, constants.ArgBoolean:
		default:
			return fmt.Errorf("%w: %q argument %q has unknown type %q", ErrInvalidDescriptor, d.Name, spec.Name, spec.Type)
		}
	}
	return nil
}
