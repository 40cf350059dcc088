// Package anthropic translates between the Anthropic Messages API dialect
// and the gateway's canonical OpenAI-chat-completions shape (spec §4.7-§4.8).
package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
)

// Request is the inbound Anthropic Messages API request shape.
type Request struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	System        json.RawMessage `json:"system,omitempty"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Thinking      *ThinkingConfig `json:"thinking,omitempty"`
}

type ThinkingConfig struct {
	Type string `json:"type"`
}

type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type Block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *BlockSource    `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type BlockSource struct {
	Type      string `json:"type"` // "base64" | "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ToCanonical translates an Anthropic Messages request into the canonical
// chat-completions shape (spec §4.7).
func ToCanonical(req *Request) (*canonical.Request, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, gwerr.New(gwerr.CodeInvalidBody, "model is required").WithParam("model")
	}
	if req.MaxTokens <= 0 {
		return nil, gwerr.New(gwerr.CodeInvalidBody, "max_tokens is required").WithParam("max_tokens")
	}

	out := &canonical.Request{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   &req.MaxTokens,
		Stream:      req.Stream,
		Stop:        req.StopSequences,
	}

	if len(req.System) > 0 {
		text, err := systemText(req.System)
		if err != nil {
			return nil, gwerr.New(gwerr.CodeInvalidBody, "invalid system field").WithParam("system")
		}
		if text != "" {
			out.Messages = append(out.Messages, canonical.Message{
				Role:    canonical.RoleSystem,
				Content: canonical.MessageContent{Text: text},
			})
		}
	}

	for _, m := range req.Messages {
		msgs, err := translateMessage(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]canonical.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			out.Tools = append(out.Tools, canonical.Tool{
				Type: "function",
				Function: canonical.ToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}
	}
	out.ToolChoice = req.ToolChoice

	if req.Thinking != nil {
		out.Thinking = &canonical.Thinking{Type: req.Thinking.Type}
	}

	return out, nil
}

func systemText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var blocks []Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

func translateMessage(m Message) ([]canonical.Message, error) {
	var plain string
	if err := json.Unmarshal(m.Content, &plain); err == nil {
		role := canonical.RoleUser
		if m.Role == "assistant" {
			role = canonical.RoleAssistant
		}
		return []canonical.Message{{Role: role, Content: canonical.MessageContent{Text: plain}}}, nil
	}

	var blocks []Block
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil, gwerr.New(gwerr.CodeInvalidBody, "invalid message content").WithParam("messages")
	}

	if m.Role == "assistant" {
		return []canonical.Message{translateAssistantBlocks(blocks)}, nil
	}
	return translateUserBlocks(blocks)
}

func translateAssistantBlocks(blocks []Block) canonical.Message {
	var text strings.Builder
	var toolCalls []canonical.ToolCall
	for _, b := range blocks {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			args, _ := json.Marshal(json.RawMessage(b.Input))
			if len(b.Input) == 0 {
				args = []byte("{}")
			}
			toolCalls = append(toolCalls, canonical.ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: canonical.ToolCallFunc{
					Name:      b.Name,
					Arguments: string(args),
				},
			})
		}
	}
	return canonical.Message{
		Role:      canonical.RoleAssistant,
		Content:   canonical.MessageContent{Text: text.String()},
		ToolCalls: toolCalls,
	}
}

// translateUserBlocks splits a user turn's blocks into the user message
// (text/image parts) and any tool_result blocks, which become separate
// role:"tool" messages (spec §4.7).
func translateUserBlocks(blocks []Block) ([]canonical.Message, error) {
	var parts []canonical.ContentPart
	var toolMsgs []canonical.Message

	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, canonical.ContentPart{Type: "text", Text: b.Text})
		case "image":
			if b.Source == nil {
				continue
			}
			var url string
			switch b.Source.Type {
			case "base64":
				url = "data:" + b.Source.MediaType + ";base64," + b.Source.Data
			case "url":
				url = b.Source.URL
			}
			if url != "" {
				parts = append(parts, canonical.ContentPart{Type: "image_url", ImageURL: &canonical.ImageURL{URL: url}})
			}
		case "tool_result":
			content := resultText(b.Content)
			toolMsgs = append(toolMsgs, canonical.Message{
				Role:       canonical.RoleTool,
				Content:    canonical.MessageContent{Text: content},
				ToolCallID: b.ToolUseID,
			})
		}
	}

	var out []canonical.Message
	if len(parts) > 0 {
		out = append(out, canonical.Message{Role: canonical.RoleUser, Content: canonical.MessageContent{Parts: parts}})
	}
	out = append(out, toolMsgs...)
	return out, nil
}

func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
