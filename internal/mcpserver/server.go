package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/registry"
)

// CapabilitiesURI is the resource listing registered capabilities.
const CapabilitiesURI = "router://capabilities"

// Engine is the part of the router the MCP surface needs.
type Engine interface {
	Submit(ctx context.Context, session, text string) protocol.Outcome
	History(ctx context.Context, limit int) ([]protocol.Record, error)
	Capabilities() []registry.Descriptor
}

// Options configures the MCP server.
type Options struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

// SubmitInput is the input of the submit tool.
type SubmitInput struct {
	Text    string `json:"text" jsonschema:"natural-language command, e.g. liste os processos em execução"`
	Session string `json:"session,omitempty" jsonschema:"conversation id; commands of one session run strictly in order"`
}

// OutcomeView is the terminal outcome returned by submit.
type OutcomeView struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Capability string `json:"capability,omitempty"`
	Argument   string `json:"argument,omitempty"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	Sequence   uint64 `json:"sequence"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

// HistoryInput is the input of the history tool.
type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of records, newest first; defaults to 10"`
}

// RecordView is one interaction record.
type RecordView struct {
	Sequence   uint64 `json:"sequence"`
	Session    string `json:"session"`
	Timestamp  string `json:"timestamp"`
	RawText    string `json:"raw_text"`
	Capability string `json:"capability,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// HistoryOutput is returned by the history tool.
type HistoryOutput struct {
	Records []RecordView `json:"records"`
}

// ArgumentView describes a capability argument.
type ArgumentView struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// CapabilityView describes a registered capability.
type CapabilityView struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	ReadOnly    bool           `json:"read_only,omitempty"`
	Arguments   []ArgumentView `json:"arguments,omitempty"`
}

// CapabilitiesOutput is returned by list_capabilities.
type CapabilitiesOutput struct {
	Capabilities []CapabilityView `json:"capabilities"`
}

// New builds an MCP server exposing the router.
func New(engine Engine, opts Options) *mcp.Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Used when neither the caller nor the transport names a session.
	fallbackSession := "mcp-" + uuid.NewString()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    opts.Name,
		Version: opts.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit",
		Title:       "Submit command",
		Description: "Interpret a natural-language command, run the matching capability and return its outcome.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in SubmitInput) (*mcp.CallToolResult, OutcomeView, error) {
		if strings.TrimSpace(in.Text) == "" {
			return nil, OutcomeView{}, fmt.Errorf("text is required")
		}
		session := strings.TrimSpace(in.Session)
		if session == "" && req != nil && req.Session != nil {
			session = req.Session.ID()
		}
		if session == "" {
			session = fallbackSession
		}
		out := engine.Submit(ctx, session, in.Text)
		logger.Info("Tool call completed", "tool", "submit", "session", session, "status", out.Status, "sequence", out.Sequence)
		return nil, outcomeView(out), nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_capabilities",
		Title:       "List capabilities",
		Description: "List the capabilities the router can execute and their arguments.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, CapabilitiesOutput, error) {
		return nil, CapabilitiesOutput{Capabilities: capabilityViews(engine.Capabilities())}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "history",
		Title:       "Interaction history",
		Description: "Return recent interaction records, newest first.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
		records, err := engine.History(ctx, in.Limit)
		if err != nil {
			return nil, HistoryOutput{}, fmt.Errorf("read history: %w", err)
		}
		out := HistoryOutput{Records: make([]RecordView, 0, len(records))}
		for _, rec := range records {
			out.Records = append(out.Records, recordView(rec))
		}
		return nil, out, nil
	})

	server.AddResource(&mcp.Resource{
		Name:        "capabilities",
		URI:         CapabilitiesURI,
		Description: "Registered capabilities as JSON.",
		MIMEType:    "application/json",
	}, func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		raw, err := json.MarshalIndent(capabilityViews(engine.Capabilities()), "", "  ")
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: CapabilitiesURI, MIMEType: "application/json", Text: string(raw)},
			},
		}, nil
	})

	return server
}

func outcomeView(o protocol.Outcome) OutcomeView {
	return OutcomeView{
		Status:     o.Status,
		Reason:     o.Reason,
		Capability: o.Capability,
		Argument:   o.Argument,
		Result:     o.Result,
		Error:      o.Error,
		Message:    o.Message,
		Sequence:   o.Sequence,
		StartedAt:  formatTime(o.StartedAt),
		FinishedAt: formatTime(o.FinishedAt),
	}
}

func recordView(r protocol.Record) RecordView {
	return RecordView{
		Sequence:   r.Sequence,
		Session:    r.Session,
		Timestamp:  formatTime(r.Timestamp),
		RawText:    r.RawText,
		Capability: r.Capability,
		Arguments:  r.Arguments,
		Status:     r.Status,
		Reason:     r.Reason,
		Summary:    r.Summary,
	}
}

func capabilityViews(descs []registry.Descriptor) []CapabilityView {
	out := make([]CapabilityView, 0, len(descs))
	for _, d := range descs {
		view := CapabilityView{Name: d.Name, Description: d.Description, ReadOnly: d.ReadOnly}
		for _, arg := range d.Schema {
			view.Arguments = append(view.Arguments, ArgumentView{
				Name:        arg.Name,
				Type:        arg.Type,
				Required:    arg.Required,
				Default:     arg.Default,
				Description: arg.Description,
			})
		}
		out = append(out, view)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
