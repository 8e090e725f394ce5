package catalog

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
)

// envTracker tracks referenced environment variables during template rendering.
type envTracker struct {
	missing map[string]struct{}
}

func (t *envTracker) markMissing(key string) {
	if t.missing == nil {
		t.missing = map[string]struct{}{}
	}
	t.missing[key] = struct{}{}
}

func (t *envTracker) Missing() []string {
	out := make([]string, 0, len(t.missing))
	for key := range t.missing {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func funcMap(tracker *envTracker) template.FuncMap {
	return template.FuncMap{
		"env": func(key string) string {
			value, ok := os.LookupEnv(key)
			if !ok {
				tracker.markMissing(key)
				return ""
			}
			return value
		},
		"envOr": func(key, def string) string {
			if value, ok := os.LookupEnv(key); ok {
				return value
			}
			return def
		},
		"default": func(def, value string) string {
			if value == "" {
				return def
			}
			return value
		},
		"quote": func(value string) string {
			return fmt.Sprintf("%q", value)
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
	}
}

// RenderFile loads and renders a catalog template file.
func RenderFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return RenderBytes(path, raw)
}

// RenderBytes renders a catalog template. Actions are delimited by [[ and ]]
// so regular expressions with braces need no escaping. Referencing an unset
// variable through env is an error; envOr supplies a default instead.
func RenderBytes(name string, raw []byte) ([]byte, error) {
	tracker := &envTracker{}
	if strings.TrimSpace(name) == "" {
		name = "catalog"
	}
	tmpl, err := template.New(name).
		Delims("[[", "]]").
		Funcs(funcMap(tracker)).
		Option("missingkey=error").
		Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{}); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	if len(tracker.missing) > 0 {
		return nil, fmt.Errorf("missing env vars: %s", strings.Join(tracker.Missing(), ", "))
	}
	return buf.Bytes(), nil
}
