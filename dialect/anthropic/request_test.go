package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
)

func TestToCanonical_RequiresModelAndMaxTokens(t *testing.T) {
	_, err := ToCanonical(&Request{MaxTokens: 10})
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gwerr.CodeInvalidBody, gwErr.Code)
	assert.Equal(t, "model", gwErr.Param)

	_, err = ToCanonical(&Request{Model: "claude-3-opus"})
	gwErr, ok = gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, "max_tokens", gwErr.Param)
}

func TestToCanonical_PlainStringSystemAndMessages(t *testing.T) {
	req := &Request{
		Model:     "claude-3-opus",
		MaxTokens: 256,
		System:    json.RawMessage(`"be terse"`),
		Messages: []Message{
			{Role: "user", Content: json.RawMessage(`"hi"`)},
			{Role: "assistant", Content: json.RawMessage(`"hello"`)},
		},
	}

	out, err := ToCanonical(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 3)
	assert.Equal(t, canonical.RoleSystem, out.Messages[0].Role)
	assert.Equal(t, "be terse", out.Messages[0].Content.Text)
	assert.Equal(t, canonical.RoleUser, out.Messages[1].Role)
	assert.Equal(t, "hi", out.Messages[1].Content.Text)
	assert.Equal(t, canonical.RoleAssistant, out.Messages[2].Role)
	assert.Equal(t, "hello", out.Messages[2].Content.Text)
}

func TestToCanonical_BlockSystemConcatenatesTextBlocks(t *testing.T) {
	req := &Request{
		Model:     "claude-3-opus",
		MaxTokens: 256,
		System:    json.RawMessage(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`),
	}

	out, err := ToCanonical(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "ab", out.Messages[0].Content.Text)
}

func TestToCanonical_AssistantBlocksProduceTextAndToolCalls(t *testing.T) {
	req := &Request{
		Model:     "claude-3-opus",
		MaxTokens: 256,
		Messages: []Message{
			{Role: "assistant", Content: json.RawMessage(`[
				{"type":"text","text":"thinking out loud"},
				{"type":"tool_use","id":"call_1","name":"get_weather","input":{"city":"nyc"}}
			]`)},
		},
	}

	out, err := ToCanonical(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	msg := out.Messages[0]
	assert.Equal(t, "thinking out loud", msg.Content.Text)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"nyc"}`, msg.ToolCalls[0].Function.Arguments)
}

func TestToCanonical_UserBlocksSplitTextImageAndToolResult(t *testing.T) {
	req := &Request{
		Model:     "claude-3-opus",
		MaxTokens: 256,
		Messages: []Message{
			{Role: "user", Content: json.RawMessage(`[
				{"type":"text","text":"look at this"},
				{"type":"image","source":{"type":"base64","media_type":"image/png","data":"Zm9v"}},
				{"type":"tool_result","tool_use_id":"call_1","content":"42 degrees"}
			]`)},
		},
	}

	out, err := ToCanonical(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 2)

	userMsg := out.Messages[0]
	assert.Equal(t, canonical.RoleUser, userMsg.Role)
	require.Len(t, userMsg.Content.Parts, 2)
	assert.Equal(t, "text", userMsg.Content.Parts[0].Type)
	assert.Equal(t, "look at this", userMsg.Content.Parts[0].Text)
	assert.Equal(t, "image_url", userMsg.Content.Parts[1].Type)
	assert.Equal(t, "data:image/png;base64,Zm9v", userMsg.Content.Parts[1].ImageURL.URL)

	toolMsg := out.Messages[1]
	assert.Equal(t, canonical.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Equal(t, "42 degrees", toolMsg.Content.Text)
}

func TestToCanonical_URLImageSource(t *testing.T) {
	req := &Request{
		Model:     "claude-3-opus",
		MaxTokens: 256,
		Messages: []Message{
			{Role: "user", Content: json.RawMessage(`[
				{"type":"image","source":{"type":"url","url":"https://example.com/cat.png"}}
			]`)},
		},
	}

	out, err := ToCanonical(req)
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
	require.Len(t, out.Messages[0].Content.Parts, 1)
	assert.Equal(t, "https://example.com/cat.png", out.Messages[0].Content.Parts[0].ImageURL.URL)
}

func TestToCanonical_ToolsAndThinking(t *testing.T) {
	req := &Request{
		Model:     "claude-3-opus",
		MaxTokens: 256,
		Tools: []Tool{
			{Name: "get_weather", Description: "looks up weather", InputSchema: json.RawMessage(`{"type":"object"}`)},
		},
		Thinking: &ThinkingConfig{Type: "enabled"},
	}

	out, err := ToCanonical(req)
	require.NoError(t, err)
	require.Len(t, out.Tools, 1)
	assert.Equal(t, "function", out.Tools[0].Type)
	assert.Equal(t, "get_weather", out.Tools[0].Function.Name)
	require.NotNil(t, out.Thinking)
	assert.Equal(t, "enabled", out.Thinking.Type)
}

func TestToCanonical_InvalidMessageContentErrors(t *testing.T) {
	req := &Request{
		Model:     "claude-3-opus",
		MaxTokens: 256,
		Messages:  []Message{{Role: "user", Content: json.RawMessage(`123`)}},
	}

	_, err := ToCanonical(req)
	gwErr, ok := gwerr.As(err)
	require.True(t, ok)
	assert.Equal(t, "messages", gwErr.Param)
}
