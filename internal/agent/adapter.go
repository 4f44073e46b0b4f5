package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lithammer/shortuuid/v4"

	"github.com/nugget/loanagent/internal/llm"
	"github.com/nugget/loanagent/internal/prompts"
	"github.com/nugget/loanagent/internal/tools"
)

var (
	errEmptyResponse   = errors.New("model returned neither text nor tool calls")
	errUnnamedToolCall = errors.New("model returned a tool call without a name")
)

// Usage is the token accounting for one model invocation.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// ModelTurn is the outcome of one model invocation: either a
// FinalAnswer or ToolCalls.
type ModelTurn interface {
	turnUsage() Usage
}

// FinalAnswer ends the run with text for the user.
type FinalAnswer struct {
	Text  string
	Usage Usage
}

// ToolCalls asks for tools to run before the next invocation. Text is
// any commentary the model emitted alongside the calls.
type ToolCalls struct {
	Text  string
	Calls []tools.Call
	Usage Usage
}

func (f FinalAnswer) turnUsage() Usage { return f.Usage }
func (t ToolCalls) turnUsage() Usage   { return t.Usage }

// Adapter invokes the model with the conversation so far.
type Adapter interface {
	Invoke(ctx context.Context, history []llm.Message, specs []tools.Spec, key SessionKey) (ModelTurn, error)
}

// ModelAdapter is an Adapter over an llm.Client.
type ModelAdapter struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// NewModelAdapter creates an adapter that sends every invocation to
// model through client.
func NewModelAdapter(client llm.Client, model string, logger *slog.Logger) *ModelAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelAdapter{
		client: client,
		model:  model,
		logger: logger.With("component", "adapter"),
	}
}

// Model returns the model name invocations are sent to.
func (a *ModelAdapter) Model() string { return a.model }

// Invoke prepends the system instruction for key, calls the model and
// normalizes its reply.
func (a *ModelAdapter) Invoke(ctx context.Context, history []llm.Message, specs []tools.Spec, key SessionKey) (ModelTurn, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: prompts.SystemInstruction(key.UserID()),
	})
	messages = append(messages, history...)

	resp, err := a.client.Chat(ctx, a.model, messages, toolDefs(specs))
	if err != nil {
		return nil, fmt.Errorf("chat with %s: %w", a.model, err)
	}
	if resp == nil {
		return nil, errEmptyResponse
	}

	usage := Usage{Model: resp.Model, InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
	if usage.Model == "" {
		usage.Model = a.model
	}

	if len(resp.Message.ToolCalls) > 0 {
		calls := make([]tools.Call, 0, len(resp.Message.ToolCalls))
		for _, tc := range resp.Message.ToolCalls {
			name := strings.TrimSpace(tc.Name)
			if name == "" {
				return nil, errUnnamedToolCall
			}
			id := tc.ID
			if id == "" {
				id = "call_" + shortuuid.New()
			}
			args := tc.Arguments
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, tools.Call{ID: id, Name: name, Arguments: args})
		}
		a.logger.Debug("model requested tools", "model", usage.Model, "calls", len(calls))
		return ToolCalls{Text: resp.Message.Content, Calls: calls, Usage: usage}, nil
	}

	if strings.TrimSpace(resp.Message.Content) == "" {
		return nil, errEmptyResponse
	}
	return FinalAnswer{Text: resp.Message.Content, Usage: usage}, nil
}

func toolDefs(specs []tools.Spec) []llm.ToolDef {
	if len(specs) == 0 {
		return nil
	}
	defs := make([]llm.ToolDef, len(specs))
	for i, s := range specs {
		defs[i] = llm.ToolDef{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	}
	return defs
}
