package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/nullroute-dev/llmgateway/internal/ctxkeys"
	"github.com/nullroute-dev/llmgateway/internal/keyresolver"
	"github.com/nullroute-dev/llmgateway/internal/metrics"
	"github.com/nullroute-dev/llmgateway/internal/ratelimit"
)

func newTestCollector(t *testing.T) *metrics.Collector {
	t.Helper()
	return metrics.NewCollector("middleware_test_"+t.Name(), zap.NewNop())
}

func TestRateLimit_RejectsOverLimitWithCollector(t *testing.T) {
	limiter := ratelimit.New()
	t.Cleanup(limiter.Stop)
	collector := newTestCollector(t)

	handler := RateLimit(limiter, collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	zeroLimit := 0
	key := &keyresolver.ResolvedKey{KeyID: "key-rejected", RateLimitPerMinute: &zeroLimit}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	ctx := ctxkeys.WithResolvedKey(req.Context(), key)
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimit_NilCollectorIsNoop(t *testing.T) {
	limiter := ratelimit.New()
	t.Cleanup(limiter.Stop)

	handler := RateLimit(limiter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	zeroLimit := 0
	key := &keyresolver.ResolvedKey{KeyID: "key-rejected-2", RateLimitPerMinute: &zeroLimit}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	ctx := ctxkeys.WithResolvedKey(req.Context(), key)
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() { handler.ServeHTTP(rec, req) })
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMetrics_PassesStatusThroughWithCollector(t *testing.T) {
	collector := newTestCollector(t)

	handler := Metrics(collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMetrics_NilCollectorPassesThrough(t *testing.T) {
	called := false
	handler := Metrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}
