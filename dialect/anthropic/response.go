package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/nullroute-dev/llmgateway/canonical"
)

// Response is the outbound Anthropic Messages API response shape.
type Response struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role"`
	Content      []OutBlock      `json:"content"`
	Model        string          `json:"model"`
	StopReason   *string         `json:"stop_reason"`
	StopSequence json.RawMessage `json:"stop_sequence"`
	Usage        Usage           `json:"usage"`
}

type OutBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

var finishToStopReason = map[string]string{
	"stop":       "end_turn",
	"length":     "max_tokens",
	"tool_calls": "tool_use",
}

// idSuffix trims the canonical "chatcmpl-" prefix so the Anthropic-shaped id
// keeps the same random suffix under its own "msg_" prefix.
func idSuffix(chatCompletionID string) string {
	return strings.TrimPrefix(chatCompletionID, "chatcmpl-")
}

// FromCanonical translates a canonical non-streaming response into the
// Anthropic Messages response shape (spec §4.7's response translator):
// thinking block, then text block, then one tool_use block per tool call,
// in that order; an empty result still carries one empty text block.
func FromCanonical(resp *canonical.Response) *Response {
	var choice canonical.Choice
	if len(resp.Choices) > 0 {
		choice = resp.Choices[0]
	}
	msg := choice.Message

	var blocks []OutBlock
	if msg.ReasoningContent != "" {
		blocks = append(blocks, OutBlock{Type: "thinking", Text: msg.ReasoningContent})
	}
	if msg.Content.AsText() != "" {
		blocks = append(blocks, OutBlock{Type: "text", Text: msg.Content.AsText()})
	}
	for _, tc := range msg.ToolCalls {
		input := json.RawMessage(tc.Function.Arguments)
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, OutBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, OutBlock{Type: "text", Text: ""})
	}

	var stopReason *string
	if mapped, ok := finishToStopReason[choice.FinishReason]; ok {
		stopReason = &mapped
	}

	out := &Response{
		ID:         "msg_" + idSuffix(resp.ID),
		Type:       "message",
		Role:       "assistant",
		Content:    blocks,
		Model:      resp.Model,
		StopReason: stopReason,
	}
	if resp.Usage != nil {
		out.Usage = Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}
	return out
}
