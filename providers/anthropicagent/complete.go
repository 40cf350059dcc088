package anthropicagent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nullroute-dev/llmgateway/canonical"
)

// thinkingTagRe strips a leading <thinking>...</thinking> block the model
// was asked to produce (spec §4.13.4); the extraction is anchored at the
// start of the string since the model is instructed to lead with it.
var thinkingTagRe = regexp.MustCompile(`(?s)^\s*<thinking>(.*?)</thinking>\s*`)

// toCanonicalResponse converts a completed Messages API response into the
// canonical non-streaming shape, restoring caller tool names, allocating
// call_<id>s, and splitting out the thinking block when one was requested.
// Only text and tool_use blocks are read; image output and other block
// types are not included in the response.
func toCanonicalResponse(msg *anthropic.Message, ar *agentRequest, model string) *canonical.Response {
	var text strings.Builder
	var toolCalls []canonical.ToolCall

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(b.Input)
			toolCalls = append(toolCalls, canonical.ToolCall{
				ID:   canonical.NewToolCallID(),
				Type: "function",
				Function: canonical.ToolCallFunc{
					Name:      stripToolName(b.Name),
					Arguments: string(args),
				},
			})
		}
	}

	content := text.String()
	reasoning := ""
	if ar.Thinking {
		if m := thinkingTagRe.FindStringSubmatch(content); m != nil {
			reasoning = strings.TrimSpace(m[1])
			content = strings.TrimSpace(content[len(m[0]):])
		}
	}

	finish := "stop"
	switch string(msg.StopReason) {
	case "max_tokens":
		finish = "length"
	case "tool_use":
		finish = "tool_calls"
	case "stop_sequence":
		finish = "stop"
	}
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}

	respMsg := canonical.Message{
		Role:             canonical.RoleAssistant,
		Content:          canonical.MessageContent{Text: content},
		ReasoningContent: reasoning,
		ToolCalls:        toolCalls,
	}

	return &canonical.Response{
		ID:      canonical.NewChatCompletionID(),
		Object:  "chat.completion",
		Model:   model,
		Choices: []canonical.Choice{{Index: 0, Message: respMsg, FinishReason: finish}},
		Usage: &canonical.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}
