// Package vertexai implements the Vertex AI adapter (spec §4.11): the same
// translation as the Gemini adapter (shared via providers/geminicore),
// differing only in URL base (region + project scoped) and the structured
// credential (apiKey/projectId/region) rather than a bare API key.
package vertexai

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

type Config struct {
	Timeout time.Duration
}

type Provider struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Provider{cfg: cfg, client: tlsutil.UpstreamHTTPClient(timeout)}
}

func (p *Provider) Name() string { return "vertex-ai" }

func (p *Provider) baseURL(region, projectID string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1beta1/projects/%s/locations/%s/publishers/google", region, projectID, region)
}

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
	if cred.Vertex == nil {
		return nil, gwerr.New(gwerr.CodeInvalidRequest, "Invalid Vertex AI credentials")
	}
	body := p.buildRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL(cred.Vertex.Region, cred.Vertex.ProjectID), req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}
	p.buildHeaders(httpReq, cred.Vertex.APIKey)

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
	if cred.Vertex == nil {
		return nil, gwerr.New(gwerr.CodeInvalidRequest, "Invalid Vertex AI credentials")
	}
	body := p.buildRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}

	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL(cred.Vertex.Region, cred.Vertex.ProjectID), req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}
	p.buildHeaders(httpReq, cred.Vertex.APIKey)

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

// ListModels uses the structured Vertex credential's project/region to scope
// the publisher model catalog, filtered to ids containing "gemini" per spec
// §4.11.
func (p *Provider) ListModels(ctx context.Context, cred *credential.Credential) ([]canonical.Model, error) {
	if cred.Vertex == nil {
		return nil, gwerr.New(gwerr.CodeInvalidRequest, "Invalid Vertex AI credentials")
	}
	endpoint := fmt.Sprintf("%s/models?key=%s", p.baseURL(cred.Vertex.Region, cred.Vertex.ProjectID), cred.Vertex.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}

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
		id := m.Name
		if idx := strings.LastIndexByte(id, '/'); idx >= 0 {
			id = id[idx+1:]
		}
		if !strings.Contains(id, "gemini") {
			continue
		}
		models = append(models, canonical.Model{ID: id, Object: "model", OwnedBy: "google"})
	}
	return models, nil
}
