package store

import "context"

// Store is the persistent store contract (spec §6.4). All non-core
// subsystems (dashboard, OAuth exchange, usage logging) talk to it through
// this interface; the request plane never depends on a concrete driver.
type Store interface {
	// Proxy keys.
	InsertProxyKey(ctx context.Context, key ProxyKey) error
	ByHash(ctx context.Context, hashedKey string) (*ProxyKey, error)
	ListKeys(ctx context.Context, userID string) ([]ProxyKey, error)
	TouchKeyLastUsed(ctx context.Context, keyID string) error

	// Upstream credentials.
	ListCredentials(ctx context.Context, userID string) ([]UpstreamCredential, error)
	GetCredential(ctx context.Context, userID string, providerType ProviderType) (*UpstreamCredential, error)
	UpsertCredential(ctx context.Context, cred UpstreamCredential) error
	DeleteCredential(ctx context.Context, userID string, providerType ProviderType) error

	// OAuth tokens.
	UpsertOAuthTokens(ctx context.Context, tok OAuthTokens) error
	GetOAuthTokens(ctx context.Context, userID string) (*OAuthTokens, error)
	DeleteOAuthTokens(ctx context.Context, userID string) error
	ListAllOAuthTokens(ctx context.Context) ([]OAuthTokens, error)

	// Usage.
	InsertUsageLog(ctx context.Context, entry UsageLogEntry) error

	// System prompt presets.
	GetSystemPromptForModel(ctx context.Context, userID, model string) (*SystemPromptPreset, error)
}

// ErrNotFound is a "not found" sentinel. GormStore's lookups do not return
// it: they report "none" as a nil record with a nil error.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store: not found" }
