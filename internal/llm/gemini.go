package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	geminiMaxTokens = 2048

	geminiRoleUser  = "user"
	geminiRoleModel = "model"
)

// geminiModels is the subset of the genai Models service the client uses.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	Get(ctx context.Context, model string, config *genai.GetModelConfig) (*genai.Model, error)
}

// GeminiClient is a client for the Google Gemini API.
type GeminiClient struct {
	models    geminiModels
	pingModel string
	logger    *slog.Logger
}

// NewGeminiClient creates a Gemini client for the Gemini API backend.
// pingModel is the model looked up by Ping.
func NewGeminiClient(ctx context.Context, apiKey, pingModel string, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if pingModel == "" {
		pingModel = "gemini-2.5-flash"
	}
	return &GeminiClient{
		models:    gc.Models,
		pingModel: pingModel,
		logger:    logger.With("provider", "gemini"),
	}, nil
}

// Chat sends a GenerateContent request.
func (c *GeminiClient) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef) (*ChatResponse, error) {
	contents, system := convertToGemini(messages)

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: geminiMaxTokens,
		Tools:           convertToolsToGemini(tools),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	c.logger.Debug("preparing request",
		"model", model,
		"contents", len(contents),
		"tools", len(tools),
		"system_len", len(system),
	)

	start := time.Now()
	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	result := convertFromGemini(resp, model)
	result.TotalDuration = time.Since(start)

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)
	return result, nil
}

// Ping verifies the API key by fetching model metadata.
func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.models.Get(ctx, c.pingModel, nil); err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	return nil
}

// convertToGemini maps messages to genai contents. System messages become
// the system instruction; tool results become function responses on a
// user turn, matching how the API expects them to follow a model turn.
func convertToGemini(messages []Message) ([]*genai.Content, string) {
	var systemParts []string
	var result []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)

		case RoleUser:
			result = append(result, &genai.Content{
				Role:  geminiRoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})

		case RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Arguments},
				})
			}
			result = append(result, &genai.Content{Role: geminiRoleModel, Parts: parts})

		case RoleTool:
			part := &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: map[string]any{"output": msg.Content},
				},
			}
			if n := len(result); n > 0 && result[n-1].Role == geminiRoleUser && result[n-1].Parts[0].FunctionResponse != nil {
				result[n-1].Parts = append(result[n-1].Parts, part)
				continue
			}
			result = append(result, &genai.Content{Role: geminiRoleUser, Parts: []*genai.Part{part}})
		}
	}
	return result, strings.Join(systemParts, "\n\n")
}

func convertToolsToGemini(tools []ToolDef) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Parameters,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertFromGemini(resp *genai.GenerateContentResponse, model string) *ChatResponse {
	out := &ChatResponse{
		Model:     model,
		CreatedAt: time.Now(),
		Message:   Message{Role: RoleAssistant},
		Done:      true,
	}
	if resp == nil {
		return out
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		if p.FunctionCall != nil {
			out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
				ID:        p.FunctionCall.ID,
				Name:      p.FunctionCall.Name,
				Arguments: p.FunctionCall.Args,
			})
			continue
		}
		text.WriteString(p.Text)
	}
	out.Message.Content = text.String()
	return out
}
