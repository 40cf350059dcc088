// Package geminicore holds the request/response translation shared by the
// Gemini and Vertex AI adapters (spec §4.10, §4.11: "same translation as
// Gemini", differing only in URL base and credential shape). Grounded on
// the donor's llm/providers/gemini/provider.go, generalized to canonical
// types, multimodal image parts, tool_choice mapping, and real `alt=sse`
// streaming instead of the donor's raw newline-delimited JSON array.
package geminicore

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/nullroute-dev/llmgateway/canonical"
)

type Content struct {
	Role  string `json:"role,omitempty"` // user, model
	Parts []Part `json:"parts"`
}

type Part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
	FileData         *FileData         `json:"fileData,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

// FileData references an http(s) image URL directly rather than embedding
// its bytes, for the image_url case a data: URI doesn't cover.
type FileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type FunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations,omitempty"`
}

type FunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolConfig maps canonical tool_choice onto Gemini's function calling mode.
type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"functionCallingConfig"`
}

type FunctionCallingConfig struct {
	Mode                 string   `json:"mode"` // AUTO | ANY | NONE
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	StopSequences    []string `json:"stopSequences,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`
	PresencePenalty  *float64 `json:"presencePenalty,omitempty"`
}

type Request struct {
	Contents          []Content         `json:"contents"`
	Tools             []Tool            `json:"tools,omitempty"`
	ToolConfig        *ToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
}

type Candidate struct {
	Content       Content       `json:"content"`
	FinishReason  string        `json:"finishReason,omitempty"`
	Index         int           `json:"index"`
	SafetyRatings []interface{} `json:"safetyRatings,omitempty"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type Response struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

type ErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ToContents translates canonical messages into Gemini contents, pulling the
// system message out into systemInstruction and mapping "assistant" to
// "model". Image content parts become inlineData when given a data: URL,
// or fileData when given a fetchable http(s) URL.
func ToContents(msgs []canonical.Message) (*Content, []Content) {
	var systemInstruction *Content
	var contents []Content

	for _, m := range msgs {
		if m.Role == canonical.RoleSystem {
			systemInstruction = &Content{Parts: []Part{{Text: m.Content.AsText()}}}
			continue
		}

		role := string(m.Role)
		if role == "assistant" {
			role = "model"
		}
		if role == "tool" {
			role = "user"
		}

		content := Content{Role: role}

		if m.Content.Parts != nil {
			for _, p := range m.Content.Parts {
				switch p.Type {
				case "text":
					if p.Text != "" {
						content.Parts = append(content.Parts, Part{Text: p.Text})
					}
				case "image_url":
					if p.ImageURL != nil {
						if mime, data, ok := decodeDataURL(p.ImageURL.URL); ok {
							content.Parts = append(content.Parts, Part{InlineData: &InlineData{MimeType: mime, Data: data}})
						} else if strings.HasPrefix(p.ImageURL.URL, "http://") || strings.HasPrefix(p.ImageURL.URL, "https://") {
							content.Parts = append(content.Parts, Part{FileData: &FileData{FileURI: p.ImageURL.URL}})
						}
					}
				}
			}
		} else if m.Content.Text != "" {
			content.Parts = append(content.Parts, Part{Text: m.Content.Text})
		}

		for _, tc := range m.ToolCalls {
			var args map[string]interface{}
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
				content.Parts = append(content.Parts, Part{FunctionCall: &FunctionCall{Name: tc.Function.Name, Args: args}})
			}
		}

		if m.Role == canonical.RoleTool && m.ToolCallID != "" {
			var response map[string]interface{}
			text := m.Content.AsText()
			if err := json.Unmarshal([]byte(text), &response); err != nil {
				response = map[string]interface{}{"result": text}
			}
			content.Parts = append(content.Parts, Part{FunctionResponse: &FunctionResponse{Name: m.Name, Response: response}})
		}

		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}

	return systemInstruction, contents
}

// decodeDataURL splits a "data:<mime>;base64,<data>" URL. Non data-URLs are
// rejected since Gemini's inlineData requires a base64 payload, not a
// fetchable URL.
func decodeDataURL(url string) (mime, data string, ok bool) {
	const prefix = "data:"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := url[len(prefix):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", "", false
	}
	meta, payload := rest[:comma], rest[comma+1:]
	meta = strings.TrimSuffix(meta, ";base64")
	if meta == "" {
		meta = "application/octet-stream"
	}
	return meta, payload, true
}

func ToTools(tools []canonical.Tool) []Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var params map[string]interface{}
		if err := json.Unmarshal(t.Function.Parameters, &params); err == nil {
			decls = append(decls, FunctionDeclaration{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			})
		}
	}
	if len(decls) == 0 {
		return nil
	}
	return []Tool{{FunctionDeclarations: decls}}
}

// ToToolConfig maps canonical tool_choice ("none"/"auto"/"required" or a
// named function) onto Gemini's AUTO/ANY/NONE function calling modes.
func ToToolConfig(req *canonical.Request) *ToolConfig {
	if len(req.Tools) == 0 {
		return nil
	}
	if name, ok := req.ToolChoiceFunctionName(); ok {
		return &ToolConfig{FunctionCallingConfig{Mode: "ANY", AllowedFunctionNames: []string{name}}}
	}
	if s, ok := req.ToolChoiceString(); ok {
		switch s {
		case "none":
			return &ToolConfig{FunctionCallingConfig{Mode: "NONE"}}
		case "required":
			return &ToolConfig{FunctionCallingConfig{Mode: "ANY"}}
		case "auto":
			return &ToolConfig{FunctionCallingConfig{Mode: "AUTO"}}
		}
	}
	return nil
}

func ToGenerationConfig(req *canonical.Request) *GenerationConfig {
	if req.Temperature == nil && req.TopP == nil && req.MaxTokens == nil && len(req.Stop) == 0 &&
		req.ResponseFormat == nil && req.FrequencyPenalty == nil && req.PresencePenalty == nil {
		return nil
	}
	cfg := &GenerationConfig{
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		StopSequences:    req.Stop,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = *req.MaxTokens
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		cfg.ResponseMimeType = "application/json"
	}
	return cfg
}

// FinishReason maps Gemini's finishReason vocabulary onto the canonical one.
func FinishReason(r string) string {
	switch r {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return "content_filter"
	case "":
		return ""
	default:
		return "stop"
	}
}

// ToResponse converts a Gemini generateContent response into the canonical
// shape, allocating call_<24hex> tool call ids per candidate.
func ToResponse(gr Response, model string) *canonical.Response {
	choices := make([]canonical.Choice, 0, len(gr.Candidates))
	for _, c := range gr.Candidates {
		msg := canonical.Message{Role: canonical.RoleAssistant}
		var text strings.Builder
		hasToolCall := false
		for _, part := range c.Content.Parts {
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				msg.ToolCalls = append(msg.ToolCalls, canonical.ToolCall{
					ID:   canonical.NewToolCallID(),
					Type: "function",
					Function: canonical.ToolCallFunc{
						Name:      part.FunctionCall.Name,
						Arguments: string(argsJSON),
					},
				})
				hasToolCall = true
			}
		}
		msg.Content = canonical.MessageContent{Text: text.String()}
		finish := FinishReason(c.FinishReason)
		if hasToolCall && finish == "stop" {
			finish = "tool_calls"
		}
		choices = append(choices, canonical.Choice{Index: c.Index, Message: msg, FinishReason: finish})
	}

	resp := &canonical.Response{
		ID:      gr.ResponseID,
		Object:  "chat.completion",
		Model:   model,
		Choices: choices,
	}
	if gr.ResponseID == "" {
		resp.ID = canonical.NewChatCompletionID()
	}
	if gr.UsageMetadata != nil {
		resp.Usage = &canonical.Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		}
	}
	return resp
}

// ToStreamChunk converts one streamed Gemini response into a canonical
// stream chunk.
func ToStreamChunk(gr Response, id, model string) *canonical.StreamChunk {
	choices := make([]canonical.StreamChoice, 0, len(gr.Candidates))
	for _, c := range gr.Candidates {
		delta := canonical.Delta{Role: canonical.RoleAssistant}
		hasToolCall := false
		for _, part := range c.Content.Parts {
			if part.Text != "" {
				delta.Content += part.Text
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				idx := len(delta.ToolCalls)
				delta.ToolCalls = append(delta.ToolCalls, canonical.ToolCall{
					ID:    canonical.NewToolCallID(),
					Type:  "function",
					Index: &idx,
					Function: canonical.ToolCallFunc{
						Name:      part.FunctionCall.Name,
						Arguments: string(argsJSON),
					},
				})
				hasToolCall = true
			}
		}
		finish := FinishReason(c.FinishReason)
		if hasToolCall && finish == "stop" {
			finish = "tool_calls"
		}
		choices = append(choices, canonical.StreamChoice{Index: c.Index, Delta: delta, FinishReason: finish})
	}

	chunk := &canonical.StreamChunk{ID: id, Object: "chat.completion.chunk", Model: model, Choices: choices}
	if gr.UsageMetadata != nil {
		chunk.Usage = &canonical.Usage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
		}
	}
	return chunk
}

func ReadErrorMessage(raw []byte) string {
	var errResp ErrorResp
	if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message + " (status: " + errResp.Error.Status + ")"
	}
	return string(raw)
}

// b64 re-exposed for adapters that need to build inlineData from raw bytes
// rather than a data: URL (not currently exercised but kept alongside the
// decode half for symmetry).
func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
