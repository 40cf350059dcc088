// Package oauth implements the Anthropic OAuth token manager: an
// access-token cache, single-flight refresh keyed by userId, a background
// periodic refresh task, and the PKCE authorization-code exchange (spec
// §4.3). Single-flight is the one place in this gateway where
// golang.org/x/sync earns its keep directly (the donor imports the module
// but never uses singleflight itself).
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/nullroute-dev/llmgateway/internal/crypto"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/internal/store"
)

const (
	cacheTTL           = 60 * time.Second
	expiryGuardWindow  = 5 * time.Minute
	backgroundInterval = 30 * time.Minute

	// ClientID is the fixed OAuth client id for the embedded agent
	// protocol (spec §6.6: "OAuth client id is a fixed constant").
	ClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

	tokenEndpoint = "https://console.anthropic.com/v1/oauth/token"
)

type tokenCacheEntry struct {
	accessToken string
	expiresAt   time.Time
	cacheUntil  time.Time
}

// Manager owns the Anthropic OAuth token lifecycle for every user.
type Manager struct {
	store         store.Store
	key           *crypto.Key
	logger        *zap.Logger
	client        *http.Client
	tokenEndpoint string

	mu    sync.RWMutex
	cache map[string]tokenCacheEntry

	sf singleflight.Group

	stop chan struct{}
}

func NewManager(st store.Store, key *crypto.Key, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:         st,
		key:           key,
		logger:        logger.With(zap.String("component", "oauth")),
		client:        &http.Client{Timeout: 15 * time.Second},
		tokenEndpoint: tokenEndpoint,
		cache:         make(map[string]tokenCacheEntry),
		stop:          make(chan struct{}),
	}
}

// WithTokenEndpoint overrides the token endpoint URL; used by tests to point
// at a local httptest server.
func (m *Manager) WithTokenEndpoint(url string) *Manager {
	m.tokenEndpoint = url
	return m
}

// IsConfigured reports whether userID has any stored OAuth tokens.
func (m *Manager) IsConfigured(ctx context.Context, userID string) (bool, error) {
	tok, err := m.store.GetOAuthTokens(ctx, userID)
	if err != nil {
		return false, err
	}
	return tok != nil, nil
}

// GetAccessToken returns a valid access token for userID, refreshing it
// (via the single-flight path) if it is within 5 minutes of expiry.
func (m *Manager) GetAccessToken(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	entry, ok := m.cache[userID]
	m.mu.RUnlock()
	if ok && time.Now().Before(entry.cacheUntil) && time.Now().Before(entry.expiresAt.Add(-expiryGuardWindow)) {
		return entry.accessToken, nil
	}

	tok, err := m.store.GetOAuthTokens(ctx, userID)
	if err != nil {
		return "", gwerr.New(gwerr.CodeProviderError, "failed to load oauth tokens").WithCause(err).WithHTTPStatus(500)
	}
	if tok == nil {
		return "", gwerr.New(gwerr.CodeInvalidRequest, "no credentials configured")
	}

	access, err := m.key.Decrypt(crypto.Encrypted{Blob: tok.EncryptedAccessToken, IV: tok.AccessTokenIV})
	if err != nil {
		return "", gwerr.New(gwerr.CodeProviderError, "failed to decrypt access token").WithCause(err).WithHTTPStatus(500)
	}

	if tok.ExpiresAt == nil || time.Now().Before(tok.ExpiresAt.Add(-expiryGuardWindow)) {
		expiresAt := time.Now().Add(time.Hour)
		if tok.ExpiresAt != nil {
			expiresAt = *tok.ExpiresAt
		}
		m.updateCache(userID, access, expiresAt)
		return access, nil
	}

	return m.refresh(ctx, userID)
}

// refresh performs the single-flight refresh for userID.
func (m *Manager) refresh(ctx context.Context, userID string) (string, error) {
	v, err, _ := m.sf.Do(userID, func() (interface{}, error) {
		return m.doRefresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context, userID string) (string, error) {
	tok, err := m.store.GetOAuthTokens(ctx, userID)
	if err != nil {
		return "", gwerr.New(gwerr.CodeProviderError, "failed to load oauth tokens").WithCause(err).WithHTTPStatus(500)
	}
	if tok == nil {
		return "", gwerr.New(gwerr.CodeInvalidRequest, "no credentials configured")
	}
	refreshToken, err := m.key.Decrypt(crypto.Encrypted{Blob: tok.EncryptedRefreshToken, IV: tok.RefreshTokenIV})
	if err != nil {
		return "", gwerr.New(gwerr.CodeProviderError, "failed to decrypt refresh token").WithCause(err).WithHTTPStatus(500)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {ClientID},
	}
	access, newRefresh, expiresIn, err := m.postToken(ctx, form)
	if err != nil {
		return "", err
	}
	if newRefresh == "" {
		newRefresh = refreshToken
	}

	if err := m.StoreTokens(ctx, userID, access, newRefresh, &expiresIn); err != nil {
		return "", err
	}
	return access, nil
}

// postToken makes the token-endpoint POST and extracts the three fields the
// manager cares about.
func (m *Manager) postToken(ctx context.Context, form url.Values) (access, refresh string, expiresIn int, err error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenEndpoint, strings.NewReader(form.Encode()))
	if reqErr != nil {
		return "", "", 0, gwerr.New(gwerr.CodeProviderError, reqErr.Error()).WithHTTPStatus(500)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, doErr := m.client.Do(req)
	if doErr != nil {
		return "", "", 0, gwerr.New(gwerr.CodeProviderError, doErr.Error()).WithProvider("anthropic-oauth").WithRetryable(true).WithHTTPStatus(502)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Error        string `json:"error"`
		ErrorDesc    string `json:"error_description"`
	}
	if decErr := json.NewDecoder(resp.Body).Decode(&body); decErr != nil {
		return "", "", 0, gwerr.New(gwerr.CodeProviderError, "malformed token response").WithCause(decErr).WithHTTPStatus(502)
	}
	if resp.StatusCode >= 400 {
		msg := body.ErrorDesc
		if msg == "" {
			msg = body.Error
		}
		if msg == "" {
			msg = "oauth token refresh failed"
		}
		return "", "", 0, gwerr.New(gwerr.CodeProviderError, msg).WithProvider("anthropic-oauth").WithHTTPStatus(502)
	}
	return body.AccessToken, body.RefreshToken, body.ExpiresIn, nil
}

// StoreTokens persists a freshly issued or refreshed token pair and updates
// the in-memory cache.
func (m *Manager) StoreTokens(ctx context.Context, userID, access, refresh string, expiresIn *int) error {
	encAccess, err := m.key.Encrypt(access)
	if err != nil {
		return gwerr.New(gwerr.CodeProviderError, "failed to encrypt access token").WithCause(err).WithHTTPStatus(500)
	}
	encRefresh, err := m.key.Encrypt(refresh)
	if err != nil {
		return gwerr.New(gwerr.CodeProviderError, "failed to encrypt refresh token").WithCause(err).WithHTTPStatus(500)
	}

	var expiresAt *time.Time
	if expiresIn != nil {
		t := time.Now().Add(time.Duration(*expiresIn) * time.Second)
		expiresAt = &t
	}

	tok := store.OAuthTokens{
		UserID:                userID,
		EncryptedAccessToken:  encAccess.Blob,
		AccessTokenIV:         encAccess.IV,
		EncryptedRefreshToken: encRefresh.Blob,
		RefreshTokenIV:        encRefresh.IV,
		ExpiresAt:             expiresAt,
	}
	if err := m.store.UpsertOAuthTokens(ctx, tok); err != nil {
		return gwerr.New(gwerr.CodeProviderError, "failed to persist oauth tokens").WithCause(err).WithHTTPStatus(500)
	}

	expiryForCache := time.Now().Add(time.Hour)
	if expiresAt != nil {
		expiryForCache = *expiresAt
	}
	m.updateCache(userID, access, expiryForCache)
	return nil
}

// Clear removes a user's OAuth tokens (disconnect).
func (m *Manager) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.cache, userID)
	m.mu.Unlock()
	return m.store.DeleteOAuthTokens(ctx, userID)
}

func (m *Manager) updateCache(userID, access string, expiresAt time.Time) {
	m.mu.Lock()
	m.cache[userID] = tokenCacheEntry{
		accessToken: access,
		expiresAt:   expiresAt,
		cacheUntil:  time.Now().Add(cacheTTL),
	}
	m.mu.Unlock()
}

// RefreshAll iterates every stored user and refreshes if needed, swallowing
// per-user errors (spec §4.3 background refresh).
func (m *Manager) RefreshAll(ctx context.Context) {
	toks, err := m.store.ListAllOAuthTokens(ctx)
	if err != nil {
		m.logger.Error("background refresh: failed to list oauth tokens", zap.Error(err))
		return
	}
	for _, tok := range toks {
		if tok.ExpiresAt == nil || time.Now().Before(tok.ExpiresAt.Add(-expiryGuardWindow)) {
			continue
		}
		if _, err := m.refresh(ctx, tok.UserID); err != nil {
			m.logger.Warn("background refresh failed", zap.String("userId", tok.UserID), zap.Error(err))
		}
	}
}

// StartBackgroundRefresh launches the periodic refresh task; call Stop to
// end it.
func (m *Manager) StartBackgroundRefresh(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(backgroundInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RefreshAll(ctx)
			}
		}
	}()
}

func (m *Manager) Stop() { close(m.stop) }

// ---- PKCE (authorization-code path) ----

// PKCEState is the transient per-login state parked in a signed cookie.
type PKCEState struct {
	Verifier    string
	Challenge   string
	State       string
	UserID      string
	RedirectURI string
}

// NewPKCEState issues a fresh verifier/challenge/state triple using
// golang.org/x/oauth2's PKCE helpers.
func NewPKCEState(userID, redirectURI string) (*PKCEState, error) {
	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, err
	}

	return &PKCEState{
		Verifier:    verifier,
		Challenge:   challenge,
		State:       hex.EncodeToString(stateBytes),
		UserID:      userID,
		RedirectURI: redirectURI,
	}, nil
}

// ExchangeCode performs the authorization-code + PKCE verifier exchange and
// stores the resulting tokens.
func (m *Manager) ExchangeCode(ctx context.Context, userID, code, verifier, redirectURI string) error {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"client_id":     {ClientID},
		"redirect_uri":  {redirectURI},
	}
	access, refresh, expiresIn, err := m.postToken(ctx, form)
	if err != nil {
		return err
	}
	return m.StoreTokens(ctx, userID, access, refresh, &expiresIn)
}

