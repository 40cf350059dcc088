package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nullroute-dev/llmgateway/internal/crypto"
	"github.com/nullroute-dev/llmgateway/internal/oauth"
	"github.com/nullroute-dev/llmgateway/internal/store"
)

type memStore struct {
	mu   sync.Mutex
	toks map[string]store.OAuthTokens
}

func newMemStore() *memStore { return &memStore{toks: make(map[string]store.OAuthTokens)} }

func (m *memStore) InsertProxyKey(context.Context, store.ProxyKey) error { return nil }
func (m *memStore) ByHash(context.Context, string) (*store.ProxyKey, error) { return nil, nil }
func (m *memStore) ListKeys(context.Context, string) ([]store.ProxyKey, error) { return nil, nil }
func (m *memStore) TouchKeyLastUsed(context.Context, string) error { return nil }
func (m *memStore) ListCredentials(context.Context, string) ([]store.UpstreamCredential, error) {
	return nil, nil
}
func (m *memStore) GetCredential(context.Context, string, store.ProviderType) (*store.UpstreamCredential, error) {
	return nil, nil
}
func (m *memStore) UpsertCredential(context.Context, store.UpstreamCredential) error { return nil }
func (m *memStore) DeleteCredential(context.Context, string, store.ProviderType) error { return nil }

func (m *memStore) UpsertOAuthTokens(_ context.Context, tok store.OAuthTokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toks[tok.UserID] = tok
	return nil
}
func (m *memStore) GetOAuthTokens(_ context.Context, userID string) (*store.OAuthTokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.toks[userID]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}
func (m *memStore) DeleteOAuthTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.toks, userID)
	return nil
}
func (m *memStore) ListAllOAuthTokens(context.Context) ([]store.OAuthTokens, error) { return nil, nil }
func (m *memStore) InsertUsageLog(context.Context, store.UsageLogEntry) error       { return nil }
func (m *memStore) GetSystemPromptForModel(context.Context, string, string) (*store.SystemPromptPreset, error) {
	return nil, nil
}

// TestSingleFlightRefresh is grounded on spec §8 scenario 5 / invariant Q5:
// N concurrent getAccessToken calls during an expired-token state must
// issue exactly one POST to the token endpoint.
func TestSingleFlightRefresh(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond) // widen the race window
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access-token",
			"refresh_token": "new-refresh-token",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	key, err := crypto.NewKey(strings.Repeat("ab", 32))
	require.NoError(t, err)

	st := newMemStore()
	mgr := oauth.NewManager(st, key, nil).WithTokenEndpoint(srv.URL)

	// A token 10 s from expiry: the cache entry StoreTokens writes is inside
	// the 5-minute guard window, so GetAccessToken does not serve it.
	require.NoError(t, mgr.StoreTokens(context.Background(), "user-1", "old-access", "old-refresh", intPtr(10)))

	// Force expiry so every concurrent GetAccessToken call must refresh.
	expired := time.Now().Add(-time.Minute)
	tok, _ := st.GetOAuthTokens(context.Background(), "user-1")
	tok.ExpiresAt = &expired
	_ = st.UpsertOAuthTokens(context.Background(), *tok)

	var wg sync.WaitGroup
	results := make([]string, 50)
	errs := make([]error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := mgr.GetAccessToken(context.Background(), "user-1")
			results[i] = token
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
		require.Equal(t, "new-access-token", results[i])
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "expected exactly one token endpoint call")
}

func intPtr(i int) *int { return &i }
