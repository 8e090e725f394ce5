package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/registry"
)

// MissingArgumentError reports a required argument that is absent and has no default.
type MissingArgumentError struct {
	Name string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing argument %q", e.Name)
}

// InvalidArgumentTypeError reports a value that could not be coerced to the declared type.
type InvalidArgumentTypeError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *InvalidArgumentTypeError) Error() string {
	return fmt.Sprintf("argument %q must be %s, got %s", e.Name, e.Expected, e.Actual)
}

// ConstraintError reports a well-typed value outside the declared constraints.
type ConstraintError struct {
	Name   string
	Detail string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("argument %q %s", e.Name, e.Detail)
}

// Validate checks raw arguments against schema and returns the typed arguments.
// Schema entries are checked in declaration order and the first failure is returned.
// Keys not declared in the schema are not copied.
func Validate(schema registry.Schema, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(schema))
	for _, spec := range schema {
		value, present := raw[spec.Name]
		if present && isBlank(value) {
			present = false
		}
		if !present {
			if spec.Default != nil {
				value = spec.Default
			} else if spec.Required {
				return nil, &MissingArgumentError{Name: spec.Name}
			} else {
				continue
			}
		}

		typed, err := Coerce(spec.Name, spec.Type, value)
		if err != nil {
			return nil, err
		}
		if err := checkConstraints(spec, typed); err != nil {
			return nil, err
		}
		out[spec.Name] = typed
	}
	return out, nil
}

// Coerce converts value to the argument type with at most one conversion step.
func Coerce(name, argType string, value any) (any, error) {
	fail := func() error {
		return &InvalidArgumentTypeError{Name: name, Expected: argType, Actual: kindOf(value)}
	}

	switch argType {
	case constants.ArgString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fail()
	case constants.ArgPath:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fail()
		}
		return filepath.Clean(s), nil
	case constants.ArgInteger:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
			if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
				return nil, fail()
			}
			return int64(v), nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, fail()
			}
			return n, nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fail()
			}
			return n, nil
		}
		return nil, fail()
	case constants.ArgNumber:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fail()
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fail()
			}
			return f, nil
		}
		return nil, fail()
	case constants.ArgBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			if b, ok := parseBool(v); ok {
				return b, nil
			}
		}
		return nil, fail()
	default:
		return nil, fmt.Errorf("argument %q has unsupported type %q", name, argType)
	}
}

func checkConstraints(spec registry.ArgumentSpec, value any) error {
	c := spec.Constraints
	switch v := value.(type) {
	case string:
		if c.MinLength != nil && len(v) < *c.MinLength {
			return &ConstraintError{Name: spec.Name, Detail: fmt.Sprintf("is shorter than %d", *c.MinLength)}
		}
		if c.MaxLength != nil && len(v) > *c.MaxLength {
			return &ConstraintError{Name: spec.Name, Detail: fmt.Sprintf("is longer than %d", *c.MaxLength)}
		}
		if c.Pattern != nil && !c.Pattern.MatchString(v) {
			return &ConstraintError{Name: spec.Name, Detail: "does not match required format"}
		}
		if len(c.Enum) > 0 && !slices.Contains(c.Enum, v) {
			return &ConstraintError{Name: spec.Name, Detail: fmt.Sprintf("must be one of %s", strings.Join(c.Enum, ", "))}
		}
	case int64:
		return checkRange(spec.Name, c, float64(v))
	case float64:
		return checkRange(spec.Name, c, v)
	}
	return nil
}

func checkRange(name string, c registry.Constraints, v float64) error {
	if c.Min != nil && v < *c.Min {
		return &ConstraintError{Name: name, Detail: fmt.Sprintf("is below minimum %v", *c.Min)}
	}
	if c.Max != nil && v > *c.Max {
		return &ConstraintError{Name: name, Detail: fmt.Sprintf("is above maximum %v", *c.Max)}
	}
	return nil
}

func parseBool(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y", "sim", "s":
		return true, true
	case "false", "0", "no", "n", "nao", "não":
		return false, true
	}
	return false, false
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}

func kindOf(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int32, int64, float32, float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
