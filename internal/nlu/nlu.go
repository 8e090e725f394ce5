package nlu

import (
	"context"
	"fmt"
	"strings"

	"github.com/codex-k8s/command-router/internal/constants"
	"github.com/codex-k8s/command-router/internal/registry"
)

// Interpretation is the structured guess about one utterance.
type Interpretation struct {
	// RawText is the utterance as submitted.
	RawText string
	// Candidate is the capability name; empty means no candidate.
	Candidate string
	// Arguments are raw extracted values keyed by argument name.
	Arguments map[string]any
	// Confidence is in [0, 1].
	Confidence float64
}

// Interpreter turns raw text into an Interpretation.
type Interpreter interface {
	Interpret(ctx context.Context, rawText string) (Interpretation, error)
}

// Catalog lists the capabilities an interpreter may choose from.
type Catalog interface {
	All() []registry.Descriptor
}

// Options selects and configures an interpreter.
type Options struct {
	// Provider is one of constants.Provider*.
	Provider string
	// Model is the remote model name.
	Model string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// APIKey authenticates against the provider.
	APIKey string
	// Rules drive the local interpreter and act as fast path for remote ones.
	Rules []Rule
}

// New builds the interpreter for opts.Provider.
func New(opts Options, catalog Catalog) (Interpreter, error) {
	rules, err := NewRules(opts.Rules)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", constants.ProviderRules:
		return rules, nil
	case constants.ProviderOpenAI, constants.ProviderOllama:
		llm, err := NewLLM(LLMOptions{
			Provider: strings.ToLower(opts.Provider),
			Model:    opts.Model,
			BaseURL:  opts.BaseURL,
			APIKey:   opts.APIKey,
		}, catalog)
		if err != nil {
			return nil, err
		}
		if rules.Len() == 0 {
			return llm, nil
		}
		return Chain{rules, llm}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}

// Chain asks interpreters in order and returns the first interpretation that
// names a candidate. When none does, the last interpretation is returned.
type Chain []Interpreter

// Interpret implements Interpreter.
func (c Chain) Interpret(ctx context.Context, rawText string) (Interpretation, error) {
	last := Interpretation{RawText: rawText}
	for _, item := range c {
		interp, err := item.Interpret(ctx, rawText)
		if err != nil {
			return Interpretation{RawText: rawText}, err
		}
		if interp.Candidate != "" {
			return interp, nil
		}
		last = interp
	}
	return last, nil
}
