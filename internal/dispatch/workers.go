package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

var errAPIKeyRequired = errors.New("API key required")

const systemPrompt = "You are an isolated sub-agent. You only see the task below. " +
	"Reply with the single JSON object the task asks for."

// AnthropicWorker answers sub-tasks with the Messages API. It cannot touch
// the working tree, so it must not receive Implementer requests; route
// those to a ClaudeCLIWorker with RoleRouter.
type AnthropicWorker struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicWorker creates a worker. ANTHROPIC_API_KEY takes precedence
// over apiKey.
func NewAnthropicWorker(apiKey, model string) (*AnthropicWorker, error) {
	if env := os.Getenv("ANTHROPIC_API_KEY"); env != "" {
		apiKey = env
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", errAPIKeyRequired)
	}
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicWorker{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: 8192,
	}, nil
}

// Do implements Worker.
func (w *AnthropicWorker) Do(ctx context.Context, req Request) (string, error) {
	msg, err := w.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     w.model,
		MaxTokens: w.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(withRefs(req))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages.new: %w", err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("response has no text blocks")
	}
	return b.String(), nil
}

// ClaudeCLIWorker runs `claude --print` in the project root. Implementer
// requests may edit files there; other roles are restricted to read-only
// tools.
type ClaudeCLIWorker struct {
	Dir   string
	Model string
	// Binary defaults to "claude".
	Binary string
}

// Do implements Worker.
func (w *ClaudeCLIWorker) Do(ctx context.Context, req Request) (string, error) {
	bin := w.Binary
	if bin == "" {
		bin = "claude"
	}
	args := []string{"--print", "--output-format", "text"}
	if w.Model != "" {
		args = append(args, "--model", w.Model)
	}
	if req.Role == Implementer {
		args = append(args, "--permission-mode", "acceptEdits")
	} else {
		args = append(args, "--allowedTools", "Read,Grep,Glob")
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = w.Dir
	cmd.Stdin = strings.NewReader(withRefs(req))
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s --print: %s: %w", bin, strings.TrimSpace(out.String()), err)
	}
	return strings.TrimSpace(out.String()), nil
}

// RoleRouter sends each request to the worker registered for its role,
// falling back to Default.
type RoleRouter struct {
	Default Worker
	ByRole  map[Role]Worker
}

// Do implements Worker.
func (r *RoleRouter) Do(ctx context.Context, req Request) (string, error) {
	if w, ok := r.ByRole[req.Role]; ok {
		return w.Do(ctx, req)
	}
	if r.Default == nil {
		return "", fmt.Errorf("no worker for role %s", req.Role)
	}
	return r.Default.Do(ctx, req)
}

func withRefs(req Request) string {
	if len(req.ContextRefs) == 0 {
		return req.Prompt
	}
	return req.Prompt + "\n\nContext references:\n- " + strings.Join(req.ContextRefs, "\n- ")
}
