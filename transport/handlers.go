// Package transport implements the caller-facing HTTP surface (spec §6.1).
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nullroute-dev/llmgateway/canonical"
	dialectanthropic "github.com/nullroute-dev/llmgateway/dialect/anthropic"
	"github.com/nullroute-dev/llmgateway/internal/credential"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/internal/keyresolver"
	"github.com/nullroute-dev/llmgateway/internal/metrics"
	"github.com/nullroute-dev/llmgateway/internal/router"
	"github.com/nullroute-dev/llmgateway/internal/store"
	"github.com/nullroute-dev/llmgateway/proxy"
	"github.com/nullroute-dev/llmgateway/providers"
)

// Handlers bundles the dependencies every /v1/* handler needs.
type Handlers struct {
	core     *proxy.Core
	resolver *credential.Resolver
	adapters map[store.ProviderType]providers.Adapter
	log      *zap.Logger
	metrics  *metrics.Collector

	modelCache *modelCache
}

func NewHandlers(core *proxy.Core, resolver *credential.Resolver, adapters map[store.ProviderType]providers.Adapter, log *zap.Logger) *Handlers {
	return &Handlers{
		core:       core,
		resolver:   resolver,
		adapters:   adapters,
		log:        log,
		modelCache: newModelCache(),
	}
}

// WithMetrics attaches a metrics collector for model-list cache hit/miss
// recording (spec §6.5); nil-safe when never called.
func (h *Handlers) WithMetrics(collector *metrics.Collector) *Handlers {
	h.metrics = collector
	return h
}

// NewRouter wires the CORS/Auth/RateLimit/Recover middleware chain around
// every /v1/* route (spec §6.1), using the Go 1.22+ ServeMux method+path
// patterns in place of a third-party router — no routing library appears
// anywhere in the donor's go.mod or the wider example pack, so stdlib
// ServeMux is the grounded choice here (see DESIGN.md).
func NewRouter(h *Handlers, auth func(http.Handler) http.Handler, rateLimit func(http.Handler) http.Handler, cors func(http.Handler) http.Handler, recover func(http.Handler) http.Handler, metrics func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", h.ChatCompletions)
	mux.HandleFunc("POST /v1/completions", h.Completions)
	mux.HandleFunc("POST /v1/messages", h.Messages)
	mux.HandleFunc("GET /v1/models", h.ListModels)
	mux.HandleFunc("GET /v1/models/{model}", h.GetModel)

	mux.HandleFunc("POST /v1/embeddings", h.unsupportedEndpoint)
	mux.HandleFunc("POST /v1/images/generations", h.unsupportedEndpoint)
	mux.HandleFunc("POST /v1/images/edits", h.unsupportedEndpoint)
	mux.HandleFunc("POST /v1/audio/transcriptions", h.unsupportedEndpoint)
	mux.HandleFunc("POST /v1/audio/speech", h.unsupportedEndpoint)
	mux.HandleFunc("POST /v1/moderations", h.unsupportedEndpoint)

	mux.HandleFunc("/v1/", h.unknownEndpoint)

	var handler http.Handler = mux
	handler = rateLimit(handler)
	handler = auth(handler)
	handler = cors(handler)
	handler = recover(handler)
	handler = metrics(handler)
	return handler
}

func (h *Handlers) callerIdentity(r *http.Request) (*keyresolver.ResolvedKey, bool) {
	rk := resolvedKeyFrom(r.Context())
	return rk, rk != nil
}

// ChatCompletions implements POST /v1/chat/completions (spec §6.1).
func (h *Handlers) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	rk, ok := h.callerIdentity(r)
	if !ok {
		writeError(w, gwerr.New(gwerr.CodeUnauthorized, "unauthenticated"))
		return
	}

	var req canonical.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, gwerr.New(gwerr.CodeInvalidBody, "invalid JSON body").WithParam("body"))
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		writeError(w, gwerr.New(gwerr.CodeInvalidBody, "model is required").WithParam("model"))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, gwerr.New(gwerr.CodeInvalidBody, "messages is required").WithParam("messages"))
		return
	}

	h.dispatch(w, r, rk, &req)
}

// Completions implements the legacy POST /v1/completions (spec §6.1): fold
// prompt into one user message, dispatch through the canonical path, and
// translate the response/stream chunks back into the text_completion shape.
func (h *Handlers) Completions(w http.ResponseWriter, r *http.Request) {
	rk, ok := h.callerIdentity(r)
	if !ok {
		writeError(w, gwerr.New(gwerr.CodeUnauthorized, "unauthenticated"))
		return
	}

	var body struct {
		Model  string          `json:"model"`
		Prompt json.RawMessage `json:"prompt"`
		canonical.Request
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, gwerr.New(gwerr.CodeInvalidBody, "invalid JSON body").WithParam("body"))
		return
	}

	prompt, err := foldPrompt(body.Prompt)
	if err != nil {
		writeError(w, gwerr.New(gwerr.CodeInvalidBody, "invalid prompt").WithParam("prompt"))
		return
	}

	req := body.Request
	req.Model = body.Model
	req.Messages = []canonical.Message{{Role: canonical.RoleUser, Content: canonical.MessageContent{Text: prompt}}}

	if strings.TrimSpace(req.Model) == "" {
		writeError(w, gwerr.New(gwerr.CodeInvalidBody, "model is required").WithParam("model"))
		return
	}

	result, err := h.core.Execute(r.Context(), rk.UserID, rk.KeyID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Response != nil {
		writeJSON(w, http.StatusOK, toLegacyCompletion(result.Response))
		return
	}

	h.streamLegacyCompletion(w, result.Stream)
}

// Messages implements POST /v1/messages (spec §6.1, translated per
// §4.7/§4.8).
func (h *Handlers) Messages(w http.ResponseWriter, r *http.Request) {
	rk, ok := h.callerIdentity(r)
	if !ok {
		status, body := gwerr.RenderAnthropic(gwerr.New(gwerr.CodeUnauthorized, "unauthenticated"))
		writeJSON(w, status, body)
		return
	}

	var areq dialectanthropic.Request
	if err := json.NewDecoder(r.Body).Decode(&areq); err != nil {
		h.writeAnthropicError(w, gwerr.New(gwerr.CodeInvalidBody, "invalid JSON body").WithParam("body"))
		return
	}

	req, err := dialectanthropic.ToCanonical(&areq)
	if err != nil {
		h.writeAnthropicError(w, err)
		return
	}

	result, err := h.core.Execute(r.Context(), rk.UserID, rk.KeyID, req)
	if err != nil {
		h.writeAnthropicError(w, err)
		return
	}

	if result.Response != nil {
		writeJSON(w, http.StatusOK, dialectanthropic.FromCanonical(result.Response))
		return
	}

	h.streamAnthropicMessages(w, result.Stream)
}

func (h *Handlers) writeAnthropicError(w http.ResponseWriter, err error) {
	status, body := gwerr.RenderAnthropic(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// dispatch runs the canonical request through the proxy core and writes
// either a JSON body or an SSE stream depending on req.Stream.
func (h *Handlers) dispatch(w http.ResponseWriter, r *http.Request, rk *keyresolver.ResolvedKey, req *canonical.Request) {
	result, err := h.core.Execute(r.Context(), rk.UserID, rk.KeyID, req)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Response != nil {
		writeJSON(w, http.StatusOK, result.Response)
		return
	}

	h.streamChatCompletions(w, result.Stream)
}

// streamChatCompletions writes canonical SSE chunks verbatim (spec §6.2).
func (h *Handlers) streamChatCompletions(w http.ResponseWriter, stream <-chan providers.StreamEvent) {
	flusher, ok := w.(http.Flusher)
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if ok {
		flusher.Flush()
	}

	for ev := range stream {
		switch {
		case ev.Comment != "":
			_, _ = io.WriteString(w, ": "+ev.Comment+"\n\n")
		case ev.Err != nil:
			_, _ = io.WriteString(w, "data: "+errorChunkJSON(ev.Err)+"\n\n")
		case ev.Chunk != nil:
			payload, _ := json.Marshal(ev.Chunk)
			_, _ = io.WriteString(w, "data: "+string(payload)+"\n\n")
		}
		if ok {
			flusher.Flush()
		}
		if ev.Done {
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			if ok {
				flusher.Flush()
			}
		}
	}
}

// streamAnthropicMessages translates each canonical chunk through the SSE
// translator and writes Anthropic-shaped events (spec §4.8).
func (h *Handlers) streamAnthropicMessages(w http.ResponseWriter, stream <-chan providers.StreamEvent) {
	flusher, ok := w.(http.Flusher)
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if ok {
		flusher.Flush()
	}

	translator := dialectanthropic.NewSSETranslator()
	for ev := range stream {
		switch {
		case ev.Comment != "":
			_, _ = io.WriteString(w, ": "+ev.Comment+"\n\n")
		case ev.Err != nil:
			// degrade: surface as a trailing content delta plus a stop finish,
			// translated like any other chunk.
			errChunk := &canonical.StreamChunk{Choices: []canonical.StreamChoice{{
				Delta:        canonical.Delta{Content: "\n\n[Error: " + ev.Err.Error() + "]"},
				FinishReason: "stop",
			}}}
			for _, e := range translator.Feed(errChunk) {
				out, err := dialectanthropic.MarshalEvent(e)
				if err != nil {
					continue
				}
				_, _ = w.Write(out)
			}
		case ev.Chunk != nil:
			for _, e := range translator.Feed(ev.Chunk) {
				out, err := dialectanthropic.MarshalEvent(e)
				if err != nil {
					continue
				}
				_, _ = w.Write(out)
			}
		}
		if ok {
			flusher.Flush()
		}
		if ev.Done {
			break
		}
	}
	for _, e := range translator.Done() {
		out, err := dialectanthropic.MarshalEvent(e)
		if err != nil {
			continue
		}
		_, _ = w.Write(out)
	}
	if ok {
		flusher.Flush()
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func errorChunkJSON(err error) string {
	_, body := gwerr.RenderOpenAI(err)
	payload, _ := json.Marshal(body)
	return string(payload)
}

// ListModels implements GET /v1/models: union of listModels across the
// caller's configured providers, 5-min cached per (userId, providerType).
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	rk, ok := h.callerIdentity(r)
	if !ok {
		writeError(w, gwerr.New(gwerr.CodeUnauthorized, "unauthenticated"))
		return
	}

	var models []canonical.Model
	for pt, adapter := range h.adapters {
		list, err := h.listModelsCached(r.Context(), rk.UserID, pt, adapter)
		if err != nil {
			h.log.Warn("listModels failed", zap.String("provider", string(pt)), zap.Error(err))
			continue
		}
		models = append(models, list...)
	}

	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": models})
}

// GetModel implements GET /v1/models/{model}.
func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	rk, ok := h.callerIdentity(r)
	if !ok {
		writeError(w, gwerr.New(gwerr.CodeUnauthorized, "unauthenticated"))
		return
	}
	modelID := r.PathValue("model")

	for _, pt := range router.Candidates(modelID) {
		adapter, ok := h.adapters[pt]
		if !ok {
			continue
		}
		list, err := h.listModelsCached(r.Context(), rk.UserID, pt, adapter)
		if err != nil {
			continue
		}
		for _, m := range list {
			if m.ID == modelID {
				writeJSON(w, http.StatusOK, m)
				return
			}
		}
	}
	writeError(w, gwerr.New(gwerr.CodeModelNotFound, "model not found").WithParam("model"))
}

func (h *Handlers) unsupportedEndpoint(w http.ResponseWriter, r *http.Request) {
	writeError(w, gwerr.New(gwerr.CodeInvalidRequest, "endpoint not supported").WithHTTPStatus(http.StatusNotImplemented))
}

func (h *Handlers) unknownEndpoint(w http.ResponseWriter, r *http.Request) {
	writeError(w, gwerr.New(gwerr.CodeUnknownEndpoint, "unknown endpoint"))
}

// ---- model cache (spec §6.1 "5-min cache per (userId, providerType)") ----

type modelCacheEntry struct {
	models    []canonical.Model
	expiresAt time.Time
}

type modelCache struct {
	mu      sync.RWMutex
	entries map[string]modelCacheEntry
}

func newModelCache() *modelCache {
	return &modelCache{entries: make(map[string]modelCacheEntry)}
}

const modelCacheTTL = 5 * time.Minute

func (h *Handlers) listModelsCached(ctx context.Context, userID string, pt store.ProviderType, adapter providers.Adapter) ([]canonical.Model, error) {
	key := userID + "|" + string(pt)

	h.modelCache.mu.RLock()
	entry, ok := h.modelCache.entries[key]
	h.modelCache.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		if h.metrics != nil {
			h.metrics.RecordModelCacheHit(string(pt))
		}
		return entry.models, nil
	}
	if h.metrics != nil {
		h.metrics.RecordModelCacheMiss(string(pt))
	}

	cred, err := h.resolver.Resolve(ctx, userID, pt)
	if err != nil || cred == nil {
		return nil, err
	}
	models, err := adapter.ListModels(ctx, cred)
	if err != nil {
		return nil, err
	}

	h.modelCache.mu.Lock()
	h.modelCache.entries[key] = modelCacheEntry{models: models, expiresAt: time.Now().Add(modelCacheTTL)}
	h.modelCache.mu.Unlock()
	return models, nil
}

// ---- legacy /v1/completions folding ----

func foldPrompt(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

type legacyChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type legacyCompletion struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []legacyChoice `json:"choices"`
	Usage   *canonical.Usage `json:"usage,omitempty"`
}

func toLegacyCompletion(resp *canonical.Response) legacyCompletion {
	out := legacyCompletion{ID: resp.ID, Object: "text_completion", Created: resp.Created, Model: resp.Model, Usage: resp.Usage}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, legacyChoice{Index: c.Index, Text: c.Message.Content.AsText(), FinishReason: c.FinishReason})
	}
	return out
}

func (h *Handlers) streamLegacyCompletion(w http.ResponseWriter, stream <-chan providers.StreamEvent) {
	flusher, ok := w.(http.Flusher)
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if ok {
		flusher.Flush()
	}

	for ev := range stream {
		switch {
		case ev.Comment != "":
			_, _ = io.WriteString(w, ": "+ev.Comment+"\n\n")
		case ev.Err != nil:
			_, _ = io.WriteString(w, "data: "+errorChunkJSON(ev.Err)+"\n\n")
		case ev.Chunk != nil:
			payload, _ := json.Marshal(toLegacyStreamChunk(ev.Chunk))
			_, _ = io.WriteString(w, "data: "+string(payload)+"\n\n")
		}
		if ok {
			flusher.Flush()
		}
		if ev.Done {
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			if ok {
				flusher.Flush()
			}
		}
	}
}

func toLegacyStreamChunk(chunk *canonical.StreamChunk) legacyCompletion {
	out := legacyCompletion{ID: chunk.ID, Object: "text_completion", Created: chunk.Created, Model: chunk.Model, Usage: chunk.Usage}
	for _, c := range chunk.Choices {
		out.Choices = append(out.Choices, legacyChoice{Index: c.Index, Text: c.Delta.Content, FinishReason: c.FinishReason})
	}
	return out
}
