package anthropic

import (
	"encoding/json"

	"github.com/nullroute-dev/llmgateway/canonical"
)

// blockKind is the currentBlock state spec §4.8 names.
type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockThinking
	blockToolUse
)

// Event is one outbound Anthropic SSE event: a type tag plus its payload.
type Event struct {
	Type string
	Data any
}

// SSETranslator is the stateful transformer consuming canonical SSE chunks
// and emitting Anthropic SSE events (spec §4.8).
type SSETranslator struct {
	messageStartSent bool
	blockIndex       int
	current          blockKind
	openToolCallID   string
	messageID        string
	model            string
	sawTool          bool
}

func NewSSETranslator() *SSETranslator {
	return &SSETranslator{blockIndex: -1}
}

// Feed consumes one canonical stream chunk and returns the Anthropic SSE
// events it produces, in order.
func (t *SSETranslator) Feed(chunk *canonical.StreamChunk) []Event {
	var events []Event

	if !t.messageStartSent {
		t.messageID = "msg_" + idSuffix(chunk.ID)
		t.model = chunk.Model
		events = append(events, Event{Type: "message_start", Data: map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id":            t.messageID,
				"type":          "message",
				"role":          "assistant",
				"content":       []any{},
				"model":         t.model,
				"stop_reason":   nil,
				"stop_sequence": nil,
				"usage":         Usage{},
			},
		}})
		t.messageStartSent = true
	}

	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.ReasoningContent != "" {
		events = append(events, t.openOrContinue(blockThinking)...)
		events = append(events, Event{Type: "content_block_delta", Data: map[string]any{
			"type":  "content_block_delta",
			"index": t.blockIndex,
			"delta": map[string]any{"type": "thinking_delta", "thinking": delta.ReasoningContent},
		}})
	}

	if delta.Content != "" {
		events = append(events, t.openOrContinue(blockText)...)
		events = append(events, Event{Type: "content_block_delta", Data: map[string]any{
			"type":  "content_block_delta",
			"index": t.blockIndex,
			"delta": map[string]any{"type": "text_delta", "text": delta.Content},
		}})
	}

	for _, tc := range delta.ToolCalls {
		if tc.ID != "" {
			events = append(events, t.closeCurrent()...)
			t.blockIndex++
			t.current = blockToolUse
			t.openToolCallID = tc.ID
			t.sawTool = true
			events = append(events, Event{Type: "content_block_start", Data: map[string]any{
				"type":  "content_block_start",
				"index": t.blockIndex,
				"content_block": map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Function.Name,
					"input": map[string]any{},
				},
			}})
		}
		if tc.Function.Arguments != "" {
			events = append(events, Event{Type: "content_block_delta", Data: map[string]any{
				"type":  "content_block_delta",
				"index": t.blockIndex,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": tc.Function.Arguments},
			}})
		}
	}

	if choice.FinishReason != "" {
		events = append(events, t.closeCurrent()...)
		stopReason := finishToStopReason[choice.FinishReason]
		usage := Usage{}
		if chunk.Usage != nil {
			usage = Usage{InputTokens: chunk.Usage.PromptTokens, OutputTokens: chunk.Usage.CompletionTokens}
		}
		events = append(events, Event{Type: "message_delta", Data: map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
			"usage": usage,
		}})
		events = append(events, Event{Type: "message_stop", Data: map[string]any{"type": "message_stop"}})
	}

	return events
}

// Done handles the canonical [DONE] terminator: when a block is still open
// it closes it and emits a final message_delta (end_turn, zero usage) and
// message_stop. When no block is open it emits nothing, also when no
// finish_reason chunk was ever seen.
func (t *SSETranslator) Done() []Event {
	if t.current == blockNone {
		return nil
	}
	var events []Event
	events = append(events, t.closeCurrent()...)
	events = append(events, Event{Type: "message_delta", Data: map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
		"usage": Usage{},
	}})
	events = append(events, Event{Type: "message_stop", Data: map[string]any{"type": "message_stop"}})
	return events
}

func (t *SSETranslator) openOrContinue(kind blockKind) []Event {
	if t.current == kind {
		return nil
	}
	var events []Event
	events = append(events, t.closeCurrent()...)
	t.blockIndex++
	t.current = kind
	blockType := "text"
	if kind == blockThinking {
		blockType = "thinking"
	}
	events = append(events, Event{Type: "content_block_start", Data: map[string]any{
		"type":  "content_block_start",
		"index": t.blockIndex,
		"content_block": map[string]any{
			"type": blockType,
		},
	}})
	return events
}

func (t *SSETranslator) closeCurrent() []Event {
	if t.current == blockNone {
		return nil
	}
	events := []Event{{Type: "content_block_stop", Data: map[string]any{
		"type":  "content_block_stop",
		"index": t.blockIndex,
	}}}
	t.current = blockNone
	t.openToolCallID = ""
	return events
}

// MarshalEvent renders an Event as its SSE wire form: "event: <type>\ndata:
// <json>\n\n".
func MarshalEvent(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(payload)+len(e.Type)+16)
	out = append(out, "event: "...)
	out = append(out, e.Type...)
	out = append(out, '\n')
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out, nil
}
