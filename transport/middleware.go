// Package transport implements the caller-facing HTTP surface (spec §6.1):
// CORS, auth/rate-limit middleware, and the /v1/* route handlers, grounded
// on the donor's cmd/agentflow/middleware.go chain.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nullroute-dev/llmgateway/internal/ctxkeys"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/internal/keyresolver"
	"github.com/nullroute-dev/llmgateway/internal/metrics"
	"github.com/nullroute-dev/llmgateway/internal/ratelimit"
)

// CORS sets the spec §6.1 headers on every /v1/ response and short-circuits
// preflight OPTIONS requests with an empty 204.
func CORS(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")
			w.Header().Set("Access-Control-Max-Age", "86400")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Auth resolves the caller's bearer token and rejects the request with a
// uniform 401 on any failure (spec §6.1).
func Auth(resolver *keyresolver.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := keyresolver.ExtractBearer(r.Header.Get("Authorization"), r.Header.Get("x-api-key"))
			if !ok {
				writeError(w, gwerr.New(gwerr.CodeMissingAPIKey, "Missing API key"))
				return
			}
			resolved, err := resolver.Resolve(r.Context(), raw)
			if err != nil {
				writeError(w, err)
				return
			}
			ctx := ctxkeys.WithResolvedKey(r.Context(), resolved)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolvedKeyFrom extracts the *keyresolver.ResolvedKey Auth attached, or
// nil if none (unauthenticated routes never reach RateLimit).
func resolvedKeyFrom(ctx context.Context) *keyresolver.ResolvedKey {
	v := ctxkeys.ResolvedKey(ctx)
	if rk, ok := v.(*keyresolver.ResolvedKey); ok {
		return rk
	}
	return nil
}

// RateLimit rejects requests over the caller's per-minute budget with the
// spec's 429 + Retry-After: 60 (spec §6.1). collector may be nil.
func RateLimit(limiter *ratelimit.Limiter, collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := resolvedKeyFrom(r.Context())
			if key != nil && !limiter.Allow(key.KeyID, key.RateLimitPerMinute) {
				if collector != nil {
					collector.RecordRateLimitRejection(key.KeyID)
				}
				w.Header().Set("Retry-After", "60")
				writeError(w, gwerr.New(gwerr.CodeRateLimitExceeded, "Rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Metrics records every caller-facing HTTP request's status and duration
// (spec §6.5). collector may be nil, in which case this is a no-op pass-through.
func Metrics(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if collector == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			collector.RecordHTTPRequest(r.Method, r.URL.Path, sw.status, time.Since(start))
		})
	}
}

// statusWriter captures the status code a handler actually wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Recover turns a panic in a handler into a uniform 500 instead of crashing
// the server, grounded on the donor's recovery middleware.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered", zap.Any("recover", rec))
					writeError(w, gwerr.New(gwerr.CodeProviderError, "internal error").WithHTTPStatus(500))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := gwerr.RenderOpenAI(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
