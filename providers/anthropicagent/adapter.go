// Package anthropicagent implements the Anthropic-agent adapter (spec
// §4.13): the backing model is the embedded coding-agent identity running
// under the caller's own OAuth grant rather than a bare Messages-API key.
// Multi-turn canonical requests fold into a single systemPrompt+prompt pair,
// tool calls are captured rather than executed, and reasoning is carried in
// a literal <thinking> tag instead of the SDK's native extended-thinking
// budget.
package anthropicagent

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/internal/credential"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/providers"
)

const (
	listModelsURL = "https://api.anthropic.com/v1/models"
	providerName  = "anthropic-agent"
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
		timeout = 120 * time.Second
	}
	return &Provider{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (p *Provider) Name() string { return providerName }

// envIsolation serializes the literal env-var swap spec §4.13.7 describes
// (CLAUDE_CODE_OAUTH_TOKEN set to the caller's token, ANTHROPIC_API_KEY
// unset) around each agent call, since os.Setenv/Unsetenv is process-global.
// The HTTP transport itself carries the same token directly (client.go's
// oauthRoundTripper), so correctness of the actual request never depends on
// this swap being observed by anything outside the call — it exists so any
// child tooling that reads the process environment sees per-caller
// isolation, matching the spec's wording without serializing more than this
// one swap.
var envMu sync.Mutex

func withEnvIsolation(accessToken string, fn func() error) error {
	envMu.Lock()
	defer envMu.Unlock()

	prevToken, hadToken := os.LookupEnv("CLAUDE_CODE_OAUTH_TOKEN")
	prevKey, hadKey := os.LookupEnv("ANTHROPIC_API_KEY")

	os.Setenv("CLAUDE_CODE_OAUTH_TOKEN", accessToken)
	os.Unsetenv("ANTHROPIC_API_KEY")

	defer func() {
		if hadToken {
			os.Setenv("CLAUDE_CODE_OAUTH_TOKEN", prevToken)
		} else {
			os.Unsetenv("CLAUDE_CODE_OAUTH_TOKEN")
		}
		if hadKey {
			os.Setenv("ANTHROPIC_API_KEY", prevKey)
		}
	}()

	return fn()
}

func (p *Provider) Complete(ctx context.Context, req *canonical.Request, cred *credential.Credential) (*canonical.Response, error) {
	ar, err := buildAgentRequest(req)
	if err != nil {
		return nil, err
	}

	var out *canonical.Response
	callErr := withEnvIsolation(cred.AccessToken, func() error {
		client := newAgentClient(cred.AccessToken)
		params := buildParams(ar, req.Model)
		msg, err := client.Messages.New(ctx, params)
		if err != nil {
			return err
		}
		out = toCanonicalResponse(msg, ar, req.Model)
		return nil
	})
	if callErr != nil {
		return nil, mapAgentError(callErr, p.Name())
	}
	return out, nil
}

func (p *Provider) Stream(ctx context.Context, req *canonical.Request, cred *credential.Credential) (<-chan providers.StreamEvent, error) {
	ar, err := buildAgentRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan providers.StreamEvent)
	go func() {
		defer close(ch)
		_ = withEnvIsolation(cred.AccessToken, func() error {
			client := newAgentClient(cred.AccessToken)
			params := buildParams(ar, req.Model)
			runStream(ctx, client, params, ar, req, p.Name(), ch)
			return nil
		})
	}()
	return ch, nil
}

// ListModels fetches the Anthropic model catalog using the caller's OAuth
// access token plus the same CLI-identification headers the agent protocol
// uses for chat calls (spec §4.13's listModels).
func (p *Provider) ListModels(ctx context.Context, cred *credential.Credential) ([]canonical.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, listModelsURL, nil)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithHTTPStatus(500)
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	httpReq.Header.Set("anthropic-beta", anthropicBeta)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("User-Agent", agentUserAgent)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, gwerr.MapUpstreamStatus(resp.StatusCode, msg, p.Name())
	}

	var listResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, err.Error()).WithProvider(p.Name()).WithRetryable(true).WithHTTPStatus(502)
	}

	models := make([]canonical.Model, 0, len(listResp.Data))
	for _, m := range listResp.Data {
		models = append(models, canonical.Model{ID: m.ID, Object: "model", OwnedBy: "anthropic-claude-code"})
	}
	return models, nil
}
