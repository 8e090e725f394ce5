package guard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/codex-k8s/command-router/internal/templates"
)

// Limits caps how often a capability may execute, by count and by rate.
// Counters are shared by all sessions.
type Limits struct {
	name          string
	maxTotal      int
	ratePerMinute int
	renderer      templates.Renderer

	mu      sync.Mutex
	count   int
	limiter *rate.Limiter
}

// NewLimits creates a limits guard. Zero values disable the matching check.
func NewLimits(name string, maxTotal, ratePerMinute int, renderer templates.Renderer) *Limits {
	l := &Limits{
		name:          name,
		maxTotal:      maxTotal,
		ratePerMinute: ratePerMinute,
		renderer:      renderer,
	}
	if ratePerMinute > 0 {
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute)
	}
	return l
}

// Name returns the guard name.
func (l *Limits) Name() string {
	if l.name != "" {
		return l.name
	}
	return "limits"
}

// Check counts the call against the configured limits.
func (l *Limits) Check(_ context.Context, req Request) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data := map[string]any{"Capability": req.Capability, "MaxTotal": l.maxTotal, "RatePerMinute": l.ratePerMinute}
	if l.maxTotal > 0 && l.count >= l.maxTotal {
		return Decision{Allowed: false, Reason: l.render("limits.max_total", data, "Maximum number of calls exceeded"), Source: l.Name()}, nil
	}
	if l.limiter != nil && !l.limiter.Allow() {
		return Decision{Allowed: false, Reason: l.render("limits.rate_limit", data, "Rate limit exceeded"), Source: l.Name()}, nil
	}

	l.count++
	return Decision{Allowed: true, Reason: "allowed", Source: l.Name()}, nil
}

func (l *Limits) render(key string, data map[string]any, fallback string) string {
	if l.renderer == nil {
		return fallback
	}
	rendered, err := l.renderer.Render(key, data)
	if err != nil {
		return fallback
	}
	return rendered
}
