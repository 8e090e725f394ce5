package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/codex-k8s/command-router/internal/nlu"
	"github.com/codex-k8s/command-router/internal/protocol"
	"github.com/codex-k8s/command-router/internal/registry"
	"github.com/codex-k8s/command-router/internal/templates"
)

// Engine is the router surface used by the REPL.
type Engine interface {
	Submit(ctx context.Context, session, text string) protocol.Outcome
	History(ctx context.Context, limit int) ([]protocol.Record, error)
	Capabilities() []registry.Descriptor
}

// REPL reads commands line by line and prints localized outcomes.
type REPL struct {
	Engine    Engine
	Templates templates.Renderer
	Session   string
	In        io.Reader
	Out       io.Writer
	// Prompt is printed before every line; empty disables it.
	Prompt string
}

// Run loops until the input ends, an exit word is read or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	r.println(templates.RenderOr(r.Templates, "cli.welcome", nil, `Ready. Type a command, "help" or "exit".`))

	for {
		if ctx.Err() != nil {
			return nil
		}
		if r.Prompt != "" {
			fmt.Fprint(r.Out, r.Prompt)
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		word, rest, _ := strings.Cut(line, " ")
		switch nlu.Fold(word) {
		case "sair", "exit", "quit":
			r.println(templates.RenderOr(r.Templates, "cli.goodbye", nil, "Bye!"))
			return nil
		case "ajuda", "help":
			r.help()
			continue
		case "historico", "history":
			if err := r.history(ctx, strings.TrimSpace(rest)); err != nil {
				r.println("error: " + err.Error())
			}
			continue
		}

		r.printOutcome(r.Engine.Submit(ctx, r.Session, line))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func (r *REPL) help() {
	r.println(templates.RenderOr(r.Templates, "cli.help", nil, "Available commands:"))
	for _, d := range r.Engine.Capabilities() {
		line := "  " + d.Name
		if names := d.Schema.Names(); len(names) > 0 {
			line += "(" + strings.Join(names, ", ") + ")"
		}
		if d.Description != "" {
			line += " - " + d.Description
		}
		r.println(line)
	}
}

func (r *REPL) history(ctx context.Context, arg string) error {
	limit := 0
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid history limit %q", arg)
		}
		limit = n
	}
	records, err := r.Engine.History(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		r.println(templates.RenderOr(r.Templates, "cli.history_empty", nil, "No interactions recorded."))
		return nil
	}
	for _, rec := range records {
		r.println(FormatRecord(rec))
	}
	return nil
}

func (r *REPL) printOutcome(out protocol.Outcome) {
	msg := out.Message
	if msg == "" {
		msg = out.Status
	}
	r.println(msg)
	if !out.Succeeded() || out.Result == nil {
		return
	}
	if text := FormatResult(out.Result); text != "" {
		r.println(text)
	}
}

func (r *REPL) println(s string) {
	fmt.Fprintln(r.Out, s)
}

// FormatRecord renders one history line.
func FormatRecord(rec protocol.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s] %q", rec.Sequence, rec.Timestamp.Local().Format("2006-01-02 15:04:05"), rec.Status, rec.RawText)
	if rec.Capability != "" {
		fmt.Fprintf(&b, " -> %s", rec.Capability)
	}
	if rec.Reason != "" {
		fmt.Fprintf(&b, " (%s)", rec.Reason)
	}
	return b.String()
}

// FormatResult renders a capability payload for the terminal. Command output
// is printed verbatim; other payloads as indented JSON.
func FormatResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprint(result)
	}
	var output struct {
		Output *string `json:"output"`
	}
	if json.Unmarshal(raw, &output) == nil && output.Output != nil {
		return *output.Output
	}
	indented, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(indented)
}
