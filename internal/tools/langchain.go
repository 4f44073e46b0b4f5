package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	lctools "github.com/tmc/langchaingo/tools"
)

// langchainTool exposes a registry tool through the langchaingo Tool
// interface, which takes a single string input.
type langchainTool struct {
	registry *Registry
	tool     *Tool
}

var _ lctools.Tool = (*langchainTool)(nil)

// AsLangchainTool wraps the named tool for callers that speak
// langchaingo. The input string is either a JSON object of arguments or
// a bare user id.
func (r *Registry) AsLangchainTool(name string) (lctools.Tool, error) {
	t := r.tools[name]
	if t == nil {
		return nil, &ErrUnknownTool{ToolName: name}
	}
	return &langchainTool{registry: r, tool: t}, nil
}

func (l *langchainTool) Name() string        { return l.tool.Name }
func (l *langchainTool) Description() string { return l.tool.Description }

// Call dispatches the tool. Not-found results are returned as text with
// a nil error; validation and handler failures return the error payload
// and the error.
func (l *langchainTool) Call(ctx context.Context, input string) (string, error) {
	args, err := parseToolInput(input)
	if err != nil {
		invalid := &ErrInvalidArguments{ToolName: l.tool.Name, Problems: []string{err.Error()}}
		return ErrorPayload(invalid), invalid
	}

	res := l.registry.Dispatch(ctx, Call{
		ID:        "call_" + shortuuid.New(),
		Name:      l.tool.Name,
		Arguments: args,
	})
	if res.IsError {
		return res.Content, res.Err
	}
	return res.Content, nil
}

func parseToolInput(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}
	if strings.HasPrefix(input, "{") {
		var args map[string]any
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			return nil, fmt.Errorf("input is not a JSON object: %w", err)
		}
		return args, nil
	}
	return map[string]any{"user_id": input}, nil
}
