package anthropicagent

import (
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nullroute-dev/llmgateway/internal/gwerr"
)

const (
	defaultMaxTokens  = 4096
	anthropicBeta     = "oauth-2025-04-20,claude-code-20250219,fine-grained-tool-streaming-2025-05-14"
	anthropicVersion  = "2023-06-01"
	agentUserAgent    = "llmgateway-anthropic-agent/1.0"
)

// oauthRoundTripper forces every outbound request onto the OAuth bearer
// scheme the embedded agent protocol uses instead of x-api-key, mirroring
// how OAuth-mode Claude Code clients talk to the Anthropic backend.
type oauthRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (t *oauthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+t.token)
	cloned.Header.Set("anthropic-beta", anthropicBeta)
	cloned.Header.Set("anthropic-version", anthropicVersion)
	cloned.Header.Set("User-Agent", agentUserAgent)
	return t.base.RoundTrip(cloned)
}

func newAgentClient(accessToken string) anthropic.Client {
	return anthropic.NewClient(
		option.WithAPIKey(""),
		option.WithHTTPClient(&http.Client{Transport: &oauthRoundTripper{base: http.DefaultTransport, token: accessToken}}),
	)
}

// buildParams assembles the single-turn Messages API request: system prompt,
// one folded user turn, namespaced tools, and native extended thinking
// forced off (spec §4.13.4 — reasoning goes through the prompt suffix and
// the streaming tag scanner, not the SDK's own thinking budget).
func buildParams(ar *agentRequest, model string) anthropic.MessageNewParams {
	var userBlocks []anthropic.ContentBlockParamUnion
	if ar.ContentBlocks != nil {
		for _, b := range ar.ContentBlocks {
			switch b.Type {
			case "text":
				userBlocks = append(userBlocks, anthropic.NewTextBlock(b.Text))
			case "image":
				userBlocks = append(userBlocks, anthropic.NewImageBlockBase64(b.MediaType, b.Data))
			}
		}
	} else {
		userBlocks = append(userBlocks, anthropic.NewTextBlock(ar.Prompt))
	}

	tools := make([]anthropic.ToolUnionParam, 0, len(ar.Tools))
	for _, t := range ar.Tools {
		properties, _ := t.Parameters["properties"].(map[string]any)
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: properties},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}

	return anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: defaultMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: ar.SystemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(userBlocks...)},
		Tools:     tools,
	}
}

// mapAgentError translates an SDK-level error into the uniform taxonomy.
func mapAgentError(err error, provider string) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		msg := apiErr.Error()
		return gwerr.MapUpstreamStatus(apiErr.StatusCode, msg, provider)
	}
	return gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(provider).WithRetryable(true).WithHTTPStatus(502)
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	if ae, ok := err.(*anthropic.Error); ok {
		*target = ae
		return true
	}
	if wrapper, ok := err.(interface{ Unwrap() error }); ok {
		return asAnthropicError(wrapper.Unwrap(), target)
	}
	return false
}
