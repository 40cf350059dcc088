// Package openrouter implements the OpenRouter adapter (spec §4.12): the
// upstream is already OpenAI-shaped, so the adapter is a thin forwarder,
// grounded directly on the donor's llm/providers/openaicompat.Provider
// (same buffered-line SSE decoder, same header/model conventions) with the
// canonical types swapped in.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/internal/credential"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/internal/tlsutil"
	"github.com/nullroute-dev/llmgateway/providers"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Config configures the OpenRouter adapter.
type Config struct {
	BaseURL   string
	SiteURL   string // sent as HTTP-Referer
	AppTitle  string // sent as X-Title
	Timeout   time.Duration
}

type Provider struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Provider{cfg: cfg, client: tlsutil.UpstreamHTTPClient(timeout)}
}

func (p *Provider) Name() string { return "openrouter" }

func (p *Provider) buildHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.cfg.SiteURL)
	}
	if p.cfg.AppTitle != "" {
		req.Header.Set("X-Title", p.cfg.AppTitle)
	}
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *Provider) Complete(ctx context.Context, req *canonical.Request, cred *credential.Credential) (*canonical.Response, error) {
	body := *req
	body.Stream = false

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}
	p.buildHeaders(httpReq, cred.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, gwerr.MapUpstreamStatus(resp.StatusCode, msg, p.Name())
	}

	var out canonical.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}
	return &out, nil
}

// Stream reads the upstream SSE body line by line, strips any leading
// "data:" from each non-blank line and decodes it as a canonical stream
// chunk. Lines that do not decode (SSE comments included) are dropped, and
// "data: [DONE]" or the end of the body ends the stream with a Done event.
// Upstream lines are not forwarded verbatim: the caller receives the
// decoded chunks.
func (p *Provider) Stream(ctx context.Context, req *canonical.Request, cred *credential.Credential) (<-chan providers.StreamEvent, error) {
	body := *req
	body.Stream = true

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}
	p.buildHeaders(httpReq, cred.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, gwerr.MapUpstreamStatus(resp.StatusCode, msg, p.Name())
	}

	ch := make(chan providers.StreamEvent)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				if trimmed == "data: [DONE]" || trimmed == "data:[DONE]" {
					select {
					case <-ctx.Done():
						return
					case ch <- providers.StreamEvent{Done: true}:
					}
					return
				}
				data := strings.TrimPrefix(strings.TrimPrefix(trimmed, "data:"), " ")
				var chunk canonical.StreamChunk
				if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr == nil {
					select {
					case <-ctx.Done():
						return
					case ch <- providers.StreamEvent{Chunk: &chunk}:
					}
				}
			}
			if err != nil {
				if err != io.EOF {
					select {
					case <-ctx.Done():
					case ch <- providers.StreamEvent{Err: gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)}:
					}
				} else {
					select {
					case <-ctx.Done():
					case ch <- providers.StreamEvent{Done: true}:
					}
				}
				return
			}
		}
	}()
	return ch, nil
}

func (p *Provider) ListModels(ctx context.Context, cred *credential.Credential) ([]canonical.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/models"), nil)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}
	p.buildHeaders(httpReq, cred.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, gwerr.MapUpstreamStatus(resp.StatusCode, msg, p.Name())
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}

	models := make([]canonical.Model, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, canonical.Model{ID: m.ID, Object: "model", OwnedBy: "openrouter"})
	}
	return models, nil
}
