package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGeminiModels struct {
	gotModel    string
	gotContents []*genai.Content
	gotConfig   *genai.GenerateContentConfig
	resp        *genai.GenerateContentResponse
	err         error
}

func (f *fakeGeminiModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotContents = contents
	f.gotConfig = config
	return f.resp, f.err
}

func (f *fakeGeminiModels) Get(context.Context, string, *genai.GetModelConfig) (*genai.Model, error) {
	return &genai.Model{}, f.err
}

func TestConvertToGemini(t *testing.T) {
	contents, system := convertToGemini([]Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "Should I refinance?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "call_a", Name: "get_user_loan_detail", Arguments: map[string]any{"user_id": "U1"}},
			{ID: "call_b", Name: "smart_refinance_agent", Arguments: map[string]any{"user_id": "U1"}},
		}},
		{Role: RoleTool, Content: "loan", ToolCallID: "call_a", ToolName: "get_user_loan_detail"},
		{Role: RoleTool, Content: "analysis", ToolCallID: "call_b", ToolName: "smart_refinance_agent"},
	})

	assert.Equal(t, "sys", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "get_user_loan_detail", contents[1].Parts[0].FunctionCall.Name)

	require.Len(t, contents[2].Parts, 2, "tool results for one turn share a content")
	assert.Equal(t, "call_a", contents[2].Parts[0].FunctionResponse.ID)
	assert.Equal(t, "smart_refinance_agent", contents[2].Parts[1].FunctionResponse.Name)
	assert.Equal(t, map[string]any{"output": "analysis"}, contents[2].Parts[1].FunctionResponse.Response)
}

func TestConvertFromGemini(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		ModelVersion: "gemini-2.5-flash-001",
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Let me check."},
				{FunctionCall: &genai.FunctionCall{Name: "loan_advisor_agent", Args: map[string]any{"user_id": "U1"}}},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     42,
			CandidatesTokenCount: 9,
		},
	}

	got := convertFromGemini(resp, "gemini-2.5-flash")
	assert.Equal(t, "gemini-2.5-flash-001", got.Model)
	assert.Equal(t, "Let me check.", got.Message.Content)
	require.Len(t, got.Message.ToolCalls, 1)
	assert.Equal(t, "loan_advisor_agent", got.Message.ToolCalls[0].Name)
	assert.Empty(t, got.Message.ToolCalls[0].ID, "ids are filled in by the agent")
	assert.Equal(t, 42, got.InputTokens)
	assert.Equal(t, 9, got.OutputTokens)
}

func TestConvertFromGemini_NoCandidates(t *testing.T) {
	got := convertFromGemini(&genai.GenerateContentResponse{}, "m")
	assert.Empty(t, got.Message.Content)
	assert.Empty(t, got.Message.ToolCalls)
}

func TestGeminiChat(t *testing.T) {
	fake := &fakeGeminiModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "Rates are 6.875%."}}}}},
	}}
	c := &GeminiClient{models: fake, logger: slog.Default()}

	resp, err := c.Chat(context.Background(), "gemini-2.5-flash",
		[]Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "rates?"}},
		[]ToolDef{{Name: "get_current_mortgage_rate", Parameters: map[string]any{"type": "object"}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "Rates are 6.875%.", resp.Message.Content)

	assert.Equal(t, "gemini-2.5-flash", fake.gotModel)
	require.NotNil(t, fake.gotConfig.SystemInstruction)
	assert.Equal(t, "sys", fake.gotConfig.SystemInstruction.Parts[0].Text)
	require.Len(t, fake.gotConfig.Tools, 1)
	assert.Equal(t, "get_current_mortgage_rate", fake.gotConfig.Tools[0].FunctionDeclarations[0].Name)
}

func TestGeminiChat_Error(t *testing.T) {
	c := &GeminiClient{models: &fakeGeminiModels{err: errors.New("quota")}, logger: slog.Default()}
	_, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")

	require.Error(t, c.Ping(context.Background()))
}
