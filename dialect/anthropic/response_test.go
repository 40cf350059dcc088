package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullroute-dev/llmgateway/canonical"
)

func TestFromCanonical_TextOnly(t *testing.T) {
	resp := &canonical.Response{
		ID:    "chatcmpl-abc123",
		Model: "claude-3-opus",
		Choices: []canonical.Choice{
			{FinishReason: "stop", Message: canonical.Message{
				Role:    canonical.RoleAssistant,
				Content: canonical.MessageContent{Text: "hi there"},
			}},
		},
		Usage: &canonical.Usage{PromptTokens: 10, CompletionTokens: 3},
	}

	out := FromCanonical(resp)
	assert.Equal(t, "msg_abc123", out.ID)
	assert.Equal(t, "message", out.Type)
	assert.Equal(t, "assistant", out.Role)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Equal(t, "hi there", out.Content[0].Text)
	require.NotNil(t, out.StopReason)
	assert.Equal(t, "end_turn", *out.StopReason)
	assert.Equal(t, 10, out.Usage.InputTokens)
	assert.Equal(t, 3, out.Usage.OutputTokens)
}

func TestFromCanonical_ThinkingTextAndToolCallsOrdered(t *testing.T) {
	resp := &canonical.Response{
		ID:    "chatcmpl-xyz",
		Model: "claude-3-opus",
		Choices: []canonical.Choice{
			{FinishReason: "tool_calls", Message: canonical.Message{
				Role:             canonical.RoleAssistant,
				ReasoningContent: "let me think",
				Content:          canonical.MessageContent{Text: "checking weather"},
				ToolCalls: []canonical.ToolCall{
					{ID: "call_1", Function: canonical.ToolCallFunc{Name: "get_weather", Arguments: `{"city":"nyc"}`}},
				},
			}},
		},
	}

	out := FromCanonical(resp)
	require.Len(t, out.Content, 3)
	assert.Equal(t, "thinking", out.Content[0].Type)
	assert.Equal(t, "let me think", out.Content[0].Text)
	assert.Equal(t, "text", out.Content[1].Type)
	assert.Equal(t, "tool_use", out.Content[2].Type)
	assert.Equal(t, "call_1", out.Content[2].ID)
	assert.Equal(t, "get_weather", out.Content[2].Name)
	require.NotNil(t, out.StopReason)
	assert.Equal(t, "tool_use", *out.StopReason)
}

func TestFromCanonical_EmptyResultStillHasOneEmptyTextBlock(t *testing.T) {
	resp := &canonical.Response{
		ID:    "chatcmpl-empty",
		Model: "claude-3-opus",
		Choices: []canonical.Choice{
			{Message: canonical.Message{Role: canonical.RoleAssistant}},
		},
	}

	out := FromCanonical(resp)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "text", out.Content[0].Type)
	assert.Equal(t, "", out.Content[0].Text)
	assert.Nil(t, out.StopReason)
}

func TestFromCanonical_ToolCallWithEmptyArgumentsDefaultsToEmptyObject(t *testing.T) {
	resp := &canonical.Response{
		ID:    "chatcmpl-def",
		Model: "claude-3-opus",
		Choices: []canonical.Choice{
			{FinishReason: "tool_calls", Message: canonical.Message{
				Role:      canonical.RoleAssistant,
				ToolCalls: []canonical.ToolCall{{ID: "call_2", Function: canonical.ToolCallFunc{Name: "ping"}}},
			}},
		},
	}

	out := FromCanonical(resp)
	require.Len(t, out.Content, 1)
	assert.JSONEq(t, "{}", string(out.Content[0].Input))
}

func TestFromCanonical_NoChoicesDoesNotPanic(t *testing.T) {
	resp := &canonical.Response{ID: "chatcmpl-nochoice", Model: "claude-3-opus"}
	out := FromCanonical(resp)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "", out.Content[0].Text)
}
