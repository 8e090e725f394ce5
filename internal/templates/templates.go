package templates

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

//go:embed data/*.json
var files embed.FS

// DefaultLang is used when the configured language has no bundle.
const DefaultLang = "pt"

// Renderer renders localized messages by key.
type Renderer interface {
	// Render returns a localized message by key.
	Render(key string, data any) (string, error)
}

// Bundle holds parsed templates for a selected language.
type Bundle struct {
	lang      string
	templates map[string]*template.Template
}

// Load loads localized templates for the specified language. Region suffixes
// such as pt_BR.UTF-8 are ignored; unknown languages fall back to DefaultLang.
func Load(lang string) (*Bundle, error) {
	lang = normalizeLang(lang)
	raw, err := files.ReadFile(fmt.Sprintf("data/%s.json", lang))
	if err != nil {
		lang = DefaultLang
		raw, err = files.ReadFile(fmt.Sprintf("data/%s.json", lang))
		if err != nil {
			return nil, fmt.Errorf("read templates: %w", err)
		}
	}

	var messages map[string]string
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	parsed := make(map[string]*template.Template, len(messages))
	for key, value := range messages {
		tmpl, err := template.New(key).Option("missingkey=zero").Parse(value)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", key, err)
		}
		parsed[key] = tmpl
	}

	return &Bundle{lang: lang, templates: parsed}, nil
}

// Lang returns the loaded language.
func (b *Bundle) Lang() string {
	if b == nil {
		return ""
	}
	return b.lang
}

// Render renders a message by key with the supplied data.
func (b *Bundle) Render(key string, data any) (string, error) {
	if b == nil {
		return "", fmt.Errorf("templates bundle is nil")
	}
	tmpl, ok := b.templates[key]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", key, err)
	}
	return out.String(), nil
}

// RenderOr renders key and returns fallback on any error or nil renderer.
func RenderOr(r Renderer, key string, data any, fallback string) string {
	if r == nil {
		return fallback
	}
	out, err := r.Render(key, data)
	if err != nil {
		return fallback
	}
	return out
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "_-."); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" || lang == "c" || lang == "posix" {
		return DefaultLang
	}
	return lang
}
