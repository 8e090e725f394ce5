package executil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// DefaultMaxOutput caps captured combined output.
const DefaultMaxOutput = 64 << 10

// waitDelay bounds how long Run waits for output pipes after the process is killed.
const waitDelay = 2 * time.Second

// Command is an argv-style command. Placeholders of the form ${name} in Path,
// Args, Env values and Dir are replaced by argument values; each Args element
// stays a single argv entry and no shell is involved.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
	Dir  string
	// MaxOutput caps captured output; zero means DefaultMaxOutput.
	MaxOutput int
	// Literal disables placeholder expansion.
	Literal bool
}

// Result is the outcome of a finished command.
type Result struct {
	Output    string
	ExitCode  int
	Truncated bool
}

// ExitError reports a command that ran but exited with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, out)
}

// Expand replaces ${name} and $name placeholders in value with argument values.
// Shell special variables such as $$ are left untouched.
func Expand(value string, args map[string]any) string {
	return os.Expand(value, func(name string) string {
		if v, ok := args[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
		if len(name) == 1 && !isNameByte(name[0]) {
			return "$" + name
		}
		return ""
	})
}

// Placeholders returns the sorted, unique placeholder names referenced by values.
func Placeholders(values ...string) []string {
	seen := make(map[string]struct{})
	for _, value := range values {
		os.Expand(value, func(name string) string {
			if name != "" && isNameByte(name[0]) {
				seen[name] = struct{}{}
			}
			return ""
		})
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build expands c against args and returns the prepared exec.Cmd.
func (c Command) Build(ctx context.Context, args map[string]any) (*exec.Cmd, error) {
	expand := func(v string) string { return Expand(v, args) }
	if c.Literal {
		expand = func(v string) string { return v }
	}
	path := strings.TrimSpace(expand(c.Path))
	if path == "" {
		return nil, errors.New("command path is empty")
	}
	argv := make([]string, 0, len(c.Args))
	for _, arg := range c.Args {
		argv = append(argv, expand(arg))
	}

	cmd := exec.CommandContext(ctx, path, argv...)
	cmd.WaitDelay = waitDelay
	cmd.Dir = expand(c.Dir)
	cmd.Env = os.Environ()
	keys := make([]string, 0, len(c.Env))
	for key := range c.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		cmd.Env = append(cmd.Env, key+"="+expand(c.Env[key]))
	}
	return cmd, nil
}

// Run executes c and waits for it. A non-zero exit yields *ExitError alongside
// the captured result.
func Run(ctx context.Context, c Command, args map[string]any) (Result, error) {
	cmd, err := c.Build(ctx, args)
	if err != nil {
		return Result{ExitCode: -1}, err
	}

	limit := c.MaxOutput
	if limit <= 0 {
		limit = DefaultMaxOutput
	}
	output := &limitedBuffer{limit: limit}
	cmd.Stdout = output
	cmd.Stderr = output

	err = cmd.Run()
	res := Result{Output: output.String(), ExitCode: -1, Truncated: output.truncated}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Command: cmd.Path, ExitCode: res.ExitCode, Output: res.Output}
		}
		return res, err
	}
	return res, nil
}

// Start launches c without waiting for it and returns its pid. The process is
// not tied to ctx and outlives the caller.
func Start(c Command, args map[string]any) (int, error) {
	cmd, err := c.Build(context.Background(), args)
	if err != nil {
		return 0, err
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}

func isNameByte(c byte) bool {
	return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}
