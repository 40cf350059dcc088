// Package gemini implements the Gemini adapter (spec §4.10), grounded on the
// donor's llm/providers/gemini/provider.go: x-goog-api-key auth, contents[]
// translation, generateContent/streamGenerateContent endpoints. Streaming
// here uses real `alt=sse` framing instead of the donor's raw
// newline-delimited JSON, and ListModels filters to Gemini model names.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/internal/credential"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/internal/tlsutil"
	"github.com/nullroute-dev/llmgateway/providers"
	"github.com/nullroute-dev/llmgateway/providers/geminicore"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type Config struct {
	BaseURL string
	Timeout time.Duration
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

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) buildHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-goog-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (p *Provider) buildRequest(req *canonical.Request) geminicore.Request {
	systemInstruction, contents := geminicore.ToContents(req.Messages)
	return geminicore.Request{
		Contents:          contents,
		Tools:             geminicore.ToTools(req.Tools),
		ToolConfig:        geminicore.ToToolConfig(req),
		GenerationConfig:  geminicore.ToGenerationConfig(req),
		SystemInstruction: systemInstruction,
	}
}

func (p *Provider) Complete(ctx context.Context, req *canonical.Request, cred *credential.Credential) (*canonical.Response, error) {
	body := p.buildRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
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

	var gr geminicore.Response
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}
	return geminicore.ToResponse(gr, req.Model), nil
}

func (p *Provider) Stream(ctx context.Context, req *canonical.Request, cred *credential.Credential) (<-chan providers.StreamEvent, error) {
	body := p.buildRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", strings.TrimRight(p.cfg.BaseURL, "/"), req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
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
	id := canonical.NewChatCompletionID()
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "data:") {
				data := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
				var gr geminicore.Response
				if jsonErr := json.Unmarshal([]byte(data), &gr); jsonErr == nil {
					chunk := geminicore.ToStreamChunk(gr, id, req.Model)
					select {
					case <-ctx.Done():
						return
					case ch <- providers.StreamEvent{Chunk: chunk}:
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

// ListModels fetches the Gemini catalog, filtering to names containing
// "gemini" and stripping the "models/" prefix (the donor's ListModels does
// not filter; this adapter adds it per spec §4.10).
func (p *Provider) ListModels(ctx context.Context, cred *credential.Credential) ([]canonical.Model, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
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

	var modelsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}

	models := make([]canonical.Model, 0, len(modelsResp.Models))
	for _, m := range modelsResp.Models {
		id := strings.TrimPrefix(m.Name, "models/")
		if !strings.Contains(id, "gemini") {
			continue
		}
		models = append(models, canonical.Model{ID: id, Object: "model", OwnedBy: "google"})
	}
	return models, nil
}
