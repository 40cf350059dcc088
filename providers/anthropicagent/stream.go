package anthropicagent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/providers"
)

const keepaliveInterval = 5 * time.Second

type toolCallTrack struct {
	rawID       string
	id          string
	name        string
	index       int
	emittedInit bool
	completed   bool
}

// runStream drives the Messages streaming iterator through the rule groups
// spec §4.13 lays out: a role prelude, a keepalive ticker, the
// <thinking>-tag scanner, tool-call init/delta framing with backfill and a
// safety net for calls the upstream never incrementally streamed, and a
// finish chunk — degrading gracefully into a trailing content chunk instead
// of an abrupt close if the upstream iterator errors mid-stream.
func runStream(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams, ar *agentRequest, req *canonical.Request, provider string, ch chan<- providers.StreamEvent) {
	id := canonical.NewChatCompletionID()
	model := req.Model
	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage

	newChunk := func(delta canonical.Delta, finish string) *canonical.StreamChunk {
		return &canonical.StreamChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Model:   model,
			Choices: []canonical.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
	}
	send := func(chunk *canonical.StreamChunk) bool {
		select {
		case <-ctx.Done():
			return false
		case ch <- providers.StreamEvent{Chunk: chunk}:
			return true
		}
	}
	sendComment := func(c string) bool {
		select {
		case <-ctx.Done():
			return false
		case ch <- providers.StreamEvent{Comment: c}:
			return true
		}
	}
	sendDone := func() {
		select {
		case <-ctx.Done():
		case ch <- providers.StreamEvent{Done: true}:
		}
	}

	if !send(newChunk(canonical.Delta{Role: canonical.RoleAssistant}, "")) {
		return
	}

	keepaliveDone := make(chan struct{})
	defer close(keepaliveDone)
	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-keepaliveDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				sendComment("keepalive")
			}
		}
	}()

	scanner := newThinkingScanner(ar.Thinking)
	toolTracks := map[int64]*toolCallTrack{}
	var emittedAnyTool bool
	var accumulated anthropic.Message

	anthropicStream := client.Messages.NewStreaming(ctx, params)
	for anthropicStream.Next() {
		event := anthropicStream.Current()
		_ = accumulated.Accumulate(event)

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "tool_use" {
				toolTracks[ev.Index] = &toolCallTrack{
					rawID: ev.ContentBlock.ID,
					id:    canonical.NewToolCallID(),
					name:  stripToolName(ev.ContentBlock.Name),
					index: len(toolTracks),
				}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text == "" {
					continue
				}
				content, reasoning := scanner.Feed(ev.Delta.Text)
				if content != "" && !send(newChunk(canonical.Delta{Content: content}, "")) {
					return
				}
				if reasoning != "" && !send(newChunk(canonical.Delta{ReasoningContent: reasoning}, "")) {
					return
				}
			case "input_json_delta":
				if ev.Delta.PartialJSON == "" {
					continue
				}
				track, ok := toolTracks[ev.Index]
				if !ok {
					continue
				}
				idx := track.index
				if !track.emittedInit {
					track.emittedInit = true
					emittedAnyTool = true
					init := canonical.ToolCall{ID: track.id, Type: "function", Index: &idx, Function: canonical.ToolCallFunc{Name: track.name}}
					if !send(newChunk(canonical.Delta{ToolCalls: []canonical.ToolCall{init}}, "")) {
						return
					}
				}
				deltaCall := canonical.ToolCall{Index: &idx, Function: canonical.ToolCallFunc{Arguments: ev.Delta.PartialJSON}}
				if !send(newChunk(canonical.Delta{ToolCalls: []canonical.ToolCall{deltaCall}}, "")) {
					return
				}
			}

		case anthropic.ContentBlockStopEvent:
			if track, ok := toolTracks[ev.Index]; ok {
				track.completed = true
			}
		}
	}

	streamErr := anthropicStream.Err()

	for _, block := range accumulated.Content {
		tu, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		for _, track := range toolTracks {
			if track.rawID != tu.ID || track.emittedInit {
				continue
			}
			track.emittedInit = true
			emittedAnyTool = true
			idx := track.index
			init := canonical.ToolCall{ID: track.id, Type: "function", Index: &idx, Function: canonical.ToolCallFunc{Name: track.name}}
			if !send(newChunk(canonical.Delta{ToolCalls: []canonical.ToolCall{init}}, "")) {
				return
			}
			args, _ := json.Marshal(tu.Input)
			if len(args) == 0 {
				args = []byte("{}")
			}
			delta := canonical.ToolCall{Index: &idx, Function: canonical.ToolCallFunc{Arguments: string(args)}}
			if !send(newChunk(canonical.Delta{ToolCalls: []canonical.ToolCall{delta}}, "")) {
				return
			}
		}
	}

	for _, track := range toolTracks {
		if track.emittedInit {
			continue
		}
		emittedAnyTool = true
		idx := track.index
		init := canonical.ToolCall{ID: track.id, Type: "function", Index: &idx, Function: canonical.ToolCallFunc{Name: track.name}}
		if !send(newChunk(canonical.Delta{ToolCalls: []canonical.ToolCall{init}}, "")) {
			return
		}
		delta := canonical.ToolCall{Index: &idx, Function: canonical.ToolCallFunc{Arguments: "{}"}}
		if !send(newChunk(canonical.Delta{ToolCalls: []canonical.ToolCall{delta}}, "")) {
			return
		}
	}

	if content, reasoning := scanner.Flush(); content != "" || reasoning != "" {
		if content != "" && !send(newChunk(canonical.Delta{Content: content}, "")) {
			return
		}
		if reasoning != "" && !send(newChunk(canonical.Delta{ReasoningContent: reasoning}, "")) {
			return
		}
	}

	if streamErr != nil && !errors.Is(streamErr, io.EOF) {
		send(newChunk(canonical.Delta{Content: "\n\n[Error: " + streamErr.Error() + "]"}, ""))
		send(newChunk(canonical.Delta{}, "stop"))
		sendDone()
		return
	}

	finish := "stop"
	if emittedAnyTool {
		finish = "tool_calls"
	}
	finishChunk := newChunk(canonical.Delta{}, finish)
	if includeUsage {
		finishChunk.Usage = &canonical.Usage{
			PromptTokens:     int(accumulated.Usage.InputTokens),
			CompletionTokens: int(accumulated.Usage.OutputTokens),
			TotalTokens:      int(accumulated.Usage.InputTokens + accumulated.Usage.OutputTokens),
		}
	}
	send(finishChunk)
	sendDone()
}
