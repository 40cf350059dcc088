package anthropicagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
)

func TestBuildAgentRequest_RejectsNGreaterThanOne(t *testing.T) {
	two := 2
	_, err := buildAgentRequest(&canonical.Request{N: &two})
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.CodeUnsupportedParameter, gwErr.Code)
	assert.Equal(t, "n", gwErr.Param)
}

func TestBuildAgentRequest_SystemMessageFoldedIntoSystemPrompt(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleSystem, Content: canonical.MessageContent{Text: "be concise"}},
			{Role: canonical.RoleUser, Content: canonical.MessageContent{Text: "hi"}},
		},
	}

	out, err := buildAgentRequest(req)
	require.NoError(t, err)
	assert.Contains(t, out.SystemPrompt, neutralizerPrefix)
	assert.Contains(t, out.SystemPrompt, "be concise")
	assert.Equal(t, "hi", out.Prompt)
}

func TestBuildAgentRequest_NoSystemMessageFallsBack(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Content: canonical.MessageContent{Text: "hi"}},
		},
	}

	out, err := buildAgentRequest(req)
	require.NoError(t, err)
	assert.Contains(t, out.SystemPrompt, fallbackSystemPrompt)
}

func TestBuildAgentRequest_HistoryFoldedAroundLastUserTurn(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Content: canonical.MessageContent{Text: "first question"}},
			{Role: canonical.RoleAssistant, Content: canonical.MessageContent{Text: "first answer"}},
			{Role: canonical.RoleUser, Content: canonical.MessageContent{Text: "second question"}},
		},
	}

	out, err := buildAgentRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "second question", out.Prompt)
	assert.Contains(t, out.SystemPrompt, "<conversation_history>")
	assert.Contains(t, out.SystemPrompt, "User: first question")
	assert.Contains(t, out.SystemPrompt, "Assistant: first answer")
}

func TestBuildAgentRequest_EmptyCurrentTurnUsesContinuePrompt(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Content: canonical.MessageContent{Text: ""}},
		},
	}

	out, err := buildAgentRequest(req)
	require.NoError(t, err)
	assert.Equal(t, fallbackContinuePrompt, out.Prompt)
}

func TestBuildAgentRequest_NoUserTurnAtAllUsesContinuePrompt(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleAssistant, Content: canonical.MessageContent{Text: "leftover"}},
		},
	}

	out, err := buildAgentRequest(req)
	require.NoError(t, err)
	assert.Equal(t, fallbackContinuePrompt, out.Prompt)
}

func TestBuildAgentRequest_MultimodalCurrentTurnUsesContentBlocks(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Content: canonical.MessageContent{Parts: []canonical.ContentPart{
				{Type: "text", Text: "what is this"},
				{Type: "image_url", ImageURL: &canonical.ImageURL{URL: "data:image/png;base64,Zm9v"}},
			}}},
		},
	}

	out, err := buildAgentRequest(req)
	require.NoError(t, err)
	assert.Empty(t, out.Prompt)
	require.Len(t, out.ContentBlocks, 2)
	assert.Equal(t, "text", out.ContentBlocks[0].Type)
	assert.Equal(t, "image", out.ContentBlocks[1].Type)
	assert.Equal(t, "image/png", out.ContentBlocks[1].MediaType)
	assert.Equal(t, "Zm9v", out.ContentBlocks[1].Data)
}

func TestBuildAgentRequest_ToolsArePrefixedAndSchemaConverted(t *testing.T) {
	req := &canonical.Request{
		Messages: []canonical.Message{{Role: canonical.RoleUser, Content: canonical.MessageContent{Text: "hi"}}},
		Tools: []canonical.Tool{
			{Type: "function", Function: canonical.ToolFunction{Name: "get_weather", Description: "d", Parameters: []byte(`{"type":"object"}`)}},
		},
	}

	out, err := buildAgentRequest(req)
	require.NoError(t, err)
	require.Len(t, out.Tools, 1)
	assert.Equal(t, "gw_tool_get_weather", out.Tools[0].Name)
	assert.Equal(t, "get_weather", out.Tools[0].OriginalName)
	assert.Equal(t, "object", out.Tools[0].Parameters["type"])
}

func TestApplyThinking_ForcedAppendsForcedSuffix(t *testing.T) {
	req := &canonical.Request{Thinking: &canonical.Thinking{Type: "enabled"}}
	out := &agentRequest{Prompt: "base"}
	applyThinking(req, out)
	assert.True(t, out.Thinking)
	assert.True(t, out.ThinkingForced)
	assert.Contains(t, out.Prompt, thinkingSuffixForced)
}

func TestApplyThinking_AdaptiveAppendsAdaptiveSuffix(t *testing.T) {
	req := &canonical.Request{Thinking: &canonical.Thinking{Type: "adaptive"}}
	out := &agentRequest{Prompt: "base"}
	applyThinking(req, out)
	assert.True(t, out.Thinking)
	assert.False(t, out.ThinkingForced)
	assert.Contains(t, out.Prompt, thinkingSuffixAdaptive)
}

func TestApplyThinking_ReasoningEffortSetsDepthAndAppendsSuffix(t *testing.T) {
	req := &canonical.Request{ReasoningEffort: "high"}
	out := &agentRequest{Prompt: "base"}
	applyThinking(req, out)
	assert.True(t, out.Thinking)
	assert.Equal(t, "high", out.ReasoningDepth)
	assert.Contains(t, out.Prompt, "Reason with high depth.")
}

func TestApplyThinking_NoneRequestedLeavesPromptUntouched(t *testing.T) {
	out := &agentRequest{Prompt: "base"}
	applyThinking(&canonical.Request{}, out)
	assert.False(t, out.Thinking)
	assert.Equal(t, "base", out.Prompt)
}

func TestApplyJSONMode_AppendsSuffixToPrompt(t *testing.T) {
	req := &canonical.Request{ResponseFormat: &canonical.ResponseFormat{Type: "json_object"}}
	out := &agentRequest{Prompt: "base"}
	applyJSONMode(req, out)
	assert.Contains(t, out.Prompt, jsonModeSuffix)
}

func TestApplyJSONMode_AppendsSuffixBlockWhenMultimodal(t *testing.T) {
	req := &canonical.Request{ResponseFormat: &canonical.ResponseFormat{Type: "json_object"}}
	out := &agentRequest{ContentBlocks: []contentBlock{{Type: "text", Text: "look"}}}
	applyJSONMode(req, out)
	require.Len(t, out.ContentBlocks, 2)
	assert.Equal(t, jsonModeSuffix, out.ContentBlocks[1].Text)
}

func TestSplitDataURL(t *testing.T) {
	mime, data, ok := splitDataURL("data:image/jpeg;base64,Zm9v")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, "Zm9v", data)

	_, _, ok = splitDataURL("https://example.com/cat.png")
	assert.False(t, ok)
}

func TestWrapAndStripToolName(t *testing.T) {
	wrapped := wrapToolName("get_weather")
	assert.Equal(t, "gw_tool_get_weather", wrapped)
	assert.Equal(t, "get_weather", stripToolName(wrapped))
}
