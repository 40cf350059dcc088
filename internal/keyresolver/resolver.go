// Package keyresolver resolves a caller's bearer token into a ResolvedKey,
// backed by a short-TTL process-wide cache (spec §4.1, §3's ResolvedKey
// entity). The cache follows the donor's read-mostly map-with-RWMutex
// idiom seen in cmd/agentflow/middleware.go's visitor map.
package keyresolver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nullroute-dev/llmgateway/internal/crypto"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/internal/store"
)

const cacheTTL = 30 * time.Second

// ResolvedKey is the decoded bearer with the metadata adapters/handlers
// need; it is a read-only snapshot once handed out (spec §3 Ownership).
type ResolvedKey struct {
	KeyID              string
	UserID             string
	IsActive           bool
	RateLimitPerMinute *int
	resolvedAt         time.Time
}

type cacheEntry struct {
	key ResolvedKey
}

// Resolver resolves and caches bearer tokens.
type Resolver struct {
	store store.Store
	mu    sync.RWMutex
	cache map[string]cacheEntry
	now   func() time.Time
}

func New(st store.Store) *Resolver {
	return &Resolver{store: st, cache: make(map[string]cacheEntry), now: time.Now}
}

// ExtractBearer pulls the raw key out of an Authorization or x-api-key
// header pair; either is accepted (spec §6.1).
func ExtractBearer(authHeader, apiKeyHeader string) (string, bool) {
	if apiKeyHeader != "" {
		return apiKeyHeader, true
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer "), true
	}
	return "", false
}

// Resolve looks up raw (the bearer token) via a 30s cache, falling back to
// the store on miss/expiry. Missing or inactive keys return an
// authentication error.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*ResolvedKey, error) {
	hashed := crypto.HashHex(raw)

	r.mu.RLock()
	entry, ok := r.cache[hashed]
	r.mu.RUnlock()
	if ok && r.now().Sub(entry.key.resolvedAt) < cacheTTL {
		if !entry.key.IsActive {
			return nil, gwerr.New(gwerr.CodeInvalidAPIKey, "proxy key is not active")
		}
		return &entry.key, nil
	}

	rec, err := r.store.ByHash(ctx, hashed)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, "failed to resolve key").WithCause(err).WithHTTPStatus(500)
	}
	if rec == nil {
		return nil, gwerr.New(gwerr.CodeInvalidAPIKey, "unknown api key")
	}

	resolved := ResolvedKey{
		KeyID:              rec.KeyID,
		UserID:             rec.UserID,
		IsActive:           rec.IsActive,
		RateLimitPerMinute: rec.RateLimitPerMinute,
		resolvedAt:         r.now(),
	}

	r.mu.Lock()
	r.cache[hashed] = cacheEntry{key: resolved}
	r.mu.Unlock()

	if !resolved.IsActive {
		return nil, gwerr.New(gwerr.CodeInvalidAPIKey, "proxy key is not active")
	}
	return &resolved, nil
}

// GeneratedKey is the one-time result of issuing a new proxy key.
type GeneratedKey struct {
	Raw       string
	KeyPrefix string
	Record    store.ProxyKey
}

// GenerateKey implements spec §4.1's "generate key" operation: 32
// cryptographically random bytes, prefixed "sk-", hex-encoded; hashedKey is
// the SHA-256 of the full raw key; keyPrefix is the first 11 chars.
func GenerateKey(ctx context.Context, st store.Store, userID, name string, rateLimitPerMinute *int) (*GeneratedKey, error) {
	name = strings.TrimSpace(name)
	if len(name) < 1 || len(name) > 100 {
		return nil, gwerr.New(gwerr.CodeValidationError, "name must be 1-100 characters").WithParam("name")
	}
	if rateLimitPerMinute != nil && *rateLimitPerMinute <= 0 {
		return nil, gwerr.New(gwerr.CodeValidationError, "rateLimitPerMinute must be positive").WithParam("rateLimitPerMinute")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, "failed to generate key material").WithCause(err).WithHTTPStatus(500)
	}
	raw := "sk-" + hex.EncodeToString(buf)
	hashed := crypto.HashHex(raw)
	prefix := raw
	if len(prefix) > 11 {
		prefix = prefix[:11]
	}

	keyID := fmt.Sprintf("key_%s", hex.EncodeToString(buf[:8]))
	rec := store.ProxyKey{
		KeyID:              keyID,
		UserID:             userID,
		HashedKey:          hashed,
		KeyPrefix:          prefix,
		Name:               name,
		IsActive:           true,
		RateLimitPerMinute: rateLimitPerMinute,
		CreatedAt:          time.Now(),
	}
	if err := st.InsertProxyKey(ctx, rec); err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, "failed to persist proxy key").WithCause(err).WithHTTPStatus(500)
	}

	return &GeneratedKey{Raw: raw, KeyPrefix: prefix, Record: rec}, nil
}
