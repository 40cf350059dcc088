// Package canonical defines the internal canonical chat-completions shape
// (spec §4.6) that every dialect translator and provider adapter speaks.
// It generalizes the donor's llm.ChatRequest/ChatResponse (llm/provider.go)
// with the additional OpenAI-chat fields (response_format, penalties, n,
// stream_options, thinking, reasoning_effort) and multi-part message
// content the donor's simpler Message type does not carry.
package canonical

import "encoding/json"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one part of a multi-part message content array.
type ContentPart struct {
	Type     string    `json:"type"` // "text" | "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

// MessageContent is either a plain string or a []ContentPart; it marshals
// back to whichever shape it was given.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

func (c MessageContent) IsEmpty() bool { return c.Text == "" && len(c.Parts) == 0 }

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	c.Parts = parts
	return nil
}

// AsText concatenates all text content, whether string or parts form.
func (c MessageContent) AsText() string {
	if c.Parts == nil {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}

// ToolCall is a model-issued function invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function ToolCallFunc `json:"function"`
	Index    *int         `json:"index,omitempty"` // stream-chunk framing only
}

type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one canonical chat message.
type Message struct {
	Role             Role           `json:"role"`
	Content          MessageContent `json:"content,omitempty"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	Name             string         `json:"name,omitempty"`
	ToolCalls        []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
}

// Tool is an OpenAI-shaped function tool declaration.
type Tool struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ResponseFormat controls output shaping (currently only json_object
// matters to the Anthropic-agent adapter, §4.13.5).
type ResponseFormat struct {
	Type string `json:"type"`
}

// Thinking controls the Anthropic-agent adapter's reasoning suffix (§4.13.4).
type Thinking struct {
	Type string `json:"type"` // "enabled" | "adaptive"
}

// StreamOptions controls trailing usage emission on stream chunks (Q3).
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// Request is the canonical OpenAI chat-completions request shape.
type Request struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Tools            []Tool          `json:"tools,omitempty"`
	ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	N                *int            `json:"n,omitempty"`
	StreamOptions    *StreamOptions  `json:"stream_options,omitempty"`
	Thinking         *Thinking       `json:"thinking,omitempty"`
	ReasoningEffort   string         `json:"reasoning_effort,omitempty"`
}

// ToolChoiceString returns tool_choice decoded as a bare string ("auto",
// "none", "required"), if that's the shape it was sent in.
func (r *Request) ToolChoiceString() (string, bool) {
	if len(r.ToolChoice) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r.ToolChoice, &s); err != nil {
		return "", false
	}
	return s, true
}

// ToolChoiceFunction is the {"type":"function","function":{"name":"..."}} shape.
type ToolChoiceFunction struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

func (r *Request) ToolChoiceFunctionName() (string, bool) {
	if len(r.ToolChoice) == 0 {
		return "", false
	}
	var f ToolChoiceFunction
	if err := json.Unmarshal(r.ToolChoice, &f); err != nil || f.Function.Name == "" {
		return "", false
	}
	return f.Function.Name, true
}

// Usage carries token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one non-streaming response choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Response is the canonical non-streaming response.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Delta is the streaming analogue of Message.
type Delta struct {
	Role             Role       `json:"role,omitempty"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// StreamChoice is one streaming response choice.
type StreamChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// StreamChunk is one canonical SSE data payload.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// Model is one catalog entry from listModels.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created,omitempty"`
	OwnedBy string `json:"owned_by"`
}
