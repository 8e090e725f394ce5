package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/codex-k8s/command-router/internal/constants"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	ollamaBaseURL = "http://localhost:11434/v1"
	openAIModel   = "gpt-4o-mini"
	ollamaModel   = "llama3.1"
)

// LLMOptions configures the remote interpreter.
type LLMOptions struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
	// Timeout bounds one completion request; zero means 30s.
	Timeout time.Duration
}

// LLM interprets utterances through an OpenAI-compatible chat completion API.
type LLM struct {
	model   string
	apiKey  string
	baseURL string
	catalog Catalog
	client  *resty.Client
}

// NewLLM returns a remote interpreter. Ollama is reached through its
// OpenAI-compatible endpoint.
func NewLLM(opts LLMOptions, catalog Catalog) (*LLM, error) {
	if catalog == nil {
		return nil, errors.New("llm interpreter requires a catalog")
	}
	model := strings.TrimSpace(opts.Model)
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	switch opts.Provider {
	case constants.ProviderOpenAI:
		if model == "" {
			model = openAIModel
		}
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
		if strings.TrimSpace(opts.APIKey) == "" && baseURL == openAIBaseURL {
			return nil, errors.New("openai provider requires an api key")
		}
	case constants.ProviderOllama:
		if model == "" {
			model = ollamaModel
		}
		if baseURL == "" {
			baseURL = ollamaBaseURL
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", opts.Provider)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &LLM{
		model:   model,
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		catalog: catalog,
		client:  client,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type llmAnswer struct {
	Capability *string        `json:"capability"`
	Arguments  map[string]any `json:"arguments"`
	Confidence float64        `json:"confidence"`
}

// Interpret implements Interpreter.
func (l *LLM) Interpret(ctx context.Context, rawText string) (Interpretation, error) {
	req := l.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: l.model,
			Messages: []chatMessage{
				{Role: "system", Content: l.systemPrompt()},
				{Role: "user", Content: rawText},
			},
		})
	if l.apiKey != "" {
		req.SetAuthToken(l.apiKey)
	}
	resp, err := req.Post(l.baseURL + "/chat/completions")
	if err != nil {
		return Interpretation{}, fmt.Errorf("call llm: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Interpretation{}, fmt.Errorf("llm returned %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	var completion chatResponse
	if err := json.Unmarshal(resp.Body(), &completion); err != nil {
		return Interpretation{}, fmt.Errorf("decode llm response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Interpretation{}, errors.New("llm returned no choices")
	}
	return parseAnswer(rawText, completion.Choices[0].Message.Content)
}

func (l *LLM) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You map a user request to exactly one capability from the list below, or to none.\n")
	b.WriteString("Reply with a single JSON object and nothing else: ")
	b.WriteString(`{"capability": "<name or null>", "arguments": {...}, "confidence": <0..1>}`)
	b.WriteString("\nOnly use argument names declared by the chosen capability.\n\nCapabilities:\n")
	for _, d := range l.catalog.All() {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
		for _, arg := range d.Schema {
			req := "optional"
			if arg.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s) %s\n", arg.Name, arg.Type, req, arg.Description)
		}
	}
	return b.String()
}

func parseAnswer(rawText, content string) (Interpretation, error) {
	content = stripFences(content)
	var answer llmAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return Interpretation{}, fmt.Errorf("llm answer is not json: %w", err)
	}
	out := Interpretation{
		RawText:    rawText,
		Arguments:  answer.Arguments,
		Confidence: clamp(answer.Confidence),
	}
	if out.Arguments == nil {
		out.Arguments = map[string]any{}
	}
	if answer.Capability != nil {
		name := strings.TrimSpace(*answer.Capability)
		if !strings.EqualFold(name, "null") && !strings.EqualFold(name, "none") {
			out.Candidate = name
		}
	}
	return out, nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
