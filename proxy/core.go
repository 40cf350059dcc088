// Package proxy implements the gateway's request plane: executeProxyRequest
// (spec §4.14), the single chokepoint every transport handler funnels
// through regardless of caller dialect.
package proxy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nullroute-dev/llmgateway/canonical"
	"github.com/nullroute-dev/llmgateway/internal/credential"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/internal/metrics"
	"github.com/nullroute-dev/llmgateway/internal/router"
	"github.com/nullroute-dev/llmgateway/internal/store"
	"github.com/nullroute-dev/llmgateway/providers"
)

// Core wires the router, credential resolver, provider adapters, and usage
// logging into the single executeProxyRequest algorithm.
type Core struct {
	store    store.Store
	resolver *credential.Resolver
	adapters map[store.ProviderType]providers.Adapter
	log      *zap.Logger
	metrics  *metrics.Collector
}

func New(st store.Store, resolver *credential.Resolver, adapters map[store.ProviderType]providers.Adapter, log *zap.Logger) *Core {
	return &Core{store: st, resolver: resolver, adapters: adapters, log: log}
}

// WithMetrics attaches a metrics collector that records every upstream
// provider call (spec §6.5); nil-safe when never called.
func (c *Core) WithMetrics(collector *metrics.Collector) *Core {
	c.metrics = collector
	return c
}

// Result is what executeProxyRequest hands back: exactly one of Response
// (non-streaming) or Stream (streaming) is set.
type Result struct {
	Response *canonical.Response
	Stream   <-chan providers.StreamEvent
	Provider store.ProviderType
}

var sanitizers = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{10,}`),
	regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`),
	regexp.MustCompile(`(?i)Bearer\s+\S+`),
	regexp.MustCompile(`(?i)x-api-key:\s*\S+`),
	regexp.MustCompile(`[?&]key=\S+`),
}

// metricsStatusClass collapses a status code into the low-cardinality label
// RecordProviderRequest expects, rather than one label value per HTTP code.
func metricsStatusClass(status int) string {
	if status >= 200 && status < 300 {
		return "ok"
	}
	return "error"
}

func sanitize(msg string) string {
	for _, re := range sanitizers {
		msg = re.ReplaceAllString(msg, "[redacted]")
	}
	return msg
}

// Execute runs the eight-step executeProxyRequest algorithm (spec §4.14).
// userID/keyID identify the caller for system-prompt lookup, credential
// resolution, and usage logging.
func (c *Core) Execute(ctx context.Context, userID, keyID string, req *canonical.Request) (*Result, error) {
	startTime := time.Now()

	req = c.injectSystemPrompt(ctx, userID, req)

	candidates := router.Candidates(req.Model)
	if len(candidates) == 0 {
		return nil, gwerr.New(gwerr.CodeInvalidRequest, "Unknown model provider").WithParam("model")
	}

	var chosen store.ProviderType
	var cred *credential.Credential
	var tried []string
	for _, pt := range candidates {
		tried = append(tried, string(pt))
		resolved, err := c.resolver.Resolve(ctx, userID, pt)
		if err != nil || resolved == nil {
			continue
		}
		chosen = pt
		cred = resolved
		break
	}
	if cred == nil {
		msg := fmt.Sprintf("No credentials configured (tried: %s)", strings.Join(tried, ", "))
		return nil, gwerr.New(gwerr.CodeProviderError, msg).WithHTTPStatus(502)
	}

	adapter, ok := c.adapters[chosen]
	if !ok {
		return nil, gwerr.New(gwerr.CodeProviderError, "No adapter registered for provider "+string(chosen)).WithHTTPStatus(500)
	}

	if req.Stream {
		stream, err := adapter.Stream(ctx, req, cred)
		if err != nil {
			return nil, c.finishError(ctx, userID, keyID, chosen, req, startTime, err)
		}
		c.logUsage(ctx, userID, keyID, chosen, req, startTime, 200, nil)
		return &Result{Stream: stream, Provider: chosen}, nil
	}

	resp, err := adapter.Complete(ctx, req, cred)
	if err != nil {
		return nil, c.finishError(ctx, userID, keyID, chosen, req, startTime, err)
	}
	c.logUsage(ctx, userID, keyID, chosen, req, startTime, 200, resp.Usage)
	return &Result{Response: resp, Provider: chosen}, nil
}

// finishError implements step 8: a taxonomy error is re-thrown (and logged)
// as-is, anything else is sanitized and wrapped as a 502 provider error.
func (c *Core) finishError(ctx context.Context, userID, keyID string, provider store.ProviderType, req *canonical.Request, startTime time.Time, err error) error {
	ge, ok := gwerr.As(err)
	if !ok {
		ge = gwerr.New(gwerr.CodeProviderError, sanitize(err.Error())).WithProvider(string(provider)).WithHTTPStatus(502)
	}
	c.logUsage(ctx, userID, keyID, provider, req, startTime, ge.HTTPStatus, nil)
	return ge
}

// logUsage is fire-and-forget: a logging failure must never change the
// outcome already decided above (spec §4.14 step 6/7).
func (c *Core) logUsage(ctx context.Context, userID, keyID string, provider store.ProviderType, req *canonical.Request, startTime time.Time, status int, usage *canonical.Usage) {
	if c.metrics != nil {
		var promptTokens, completionTokens int
		if usage != nil {
			promptTokens, completionTokens = usage.PromptTokens, usage.CompletionTokens
		}
		c.metrics.RecordProviderRequest(string(provider), req.Model, metricsStatusClass(status), time.Since(startTime), promptTokens, completionTokens)
	}

	entry := store.UsageLogEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		KeyID:        keyID,
		ProviderType: string(provider),
		Model:        req.Model,
		LatencyMs:    time.Since(startTime).Milliseconds(),
		StatusCode:   status,
		Streamed:     req.Stream,
		HasTools:     len(req.Tools) > 0,
	}
	msgCount := len(req.Messages)
	entry.MessageCount = &msgCount
	if usage != nil {
		in, out := usage.PromptTokens, usage.CompletionTokens
		entry.InputTokens = &in
		entry.OutputTokens = &out
	}

	go func() {
		if err := c.store.InsertUsageLog(context.WithoutCancel(ctx), entry); err != nil {
			c.log.Warn("usage log insert failed", zap.Error(err), zap.String("userId", userID))
		}
	}()
}
