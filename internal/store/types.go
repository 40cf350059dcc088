// Package store defines the persistent store contract (spec §6.4) and a
// GORM-backed reference implementation, following the entity/TableName
// conventions used throughout the donor's llm/types.go.
package store

import "time"

// ProviderType enumerates the upstream provider kinds a credential can be
// stored for.
type ProviderType string

const (
	ProviderAnthropicAgent ProviderType = "anthropic-agent"
	ProviderGemini         ProviderType = "gemini"
	ProviderVertexAI       ProviderType = "vertex-ai"
	ProviderOpenRouter     ProviderType = "openrouter"
)

// ProxyKey is the caller-facing bearer credential record (I1: raw key is
// never stored).
type ProxyKey struct {
	KeyID              string     `gorm:"column:key_id;primaryKey" json:"keyId"`
	UserID             string     `gorm:"column:user_id;index" json:"userId"`
	HashedKey          string     `gorm:"column:hashed_key;uniqueIndex" json:"-"`
	KeyPrefix          string     `gorm:"column:key_prefix" json:"keyPrefix"`
	Name               string     `gorm:"column:name" json:"name"`
	IsActive           bool       `gorm:"column:is_active" json:"isActive"`
	RateLimitPerMinute *int       `gorm:"column:rate_limit_per_minute" json:"rateLimitPerMinute,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"createdAt"`
	LastUsedAt         *time.Time `gorm:"column:last_used_at" json:"lastUsedAt,omitempty"`
}

func (ProxyKey) TableName() string { return "proxy_keys" }

// UpstreamCredential is a per-user per-provider encrypted secret (I2: unique
// on (userId, providerType)).
type UpstreamCredential struct {
	UserID         string       `gorm:"column:user_id;uniqueIndex:idx_user_provider" json:"userId"`
	ProviderType   ProviderType `gorm:"column:provider_type;uniqueIndex:idx_user_provider" json:"providerType"`
	EncryptedAPIKey string      `gorm:"column:encrypted_api_key" json:"-"`
	IV             string       `gorm:"column:iv" json:"-"`
	CreatedAt      time.Time    `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt      time.Time    `gorm:"column:updated_at" json:"updatedAt"`
}

func (UpstreamCredential) TableName() string { return "upstream_credentials" }

// OAuthTokens holds the Anthropic per-user OAuth token pair (I4: always
// stored encrypted).
type OAuthTokens struct {
	UserID                string     `gorm:"column:user_id;uniqueIndex" json:"userId"`
	EncryptedAccessToken  string     `gorm:"column:encrypted_access_token" json:"-"`
	AccessTokenIV         string     `gorm:"column:access_token_iv" json:"-"`
	EncryptedRefreshToken string     `gorm:"column:encrypted_refresh_token" json:"-"`
	RefreshTokenIV        string     `gorm:"column:refresh_token_iv" json:"-"`
	ExpiresAt             *time.Time `gorm:"column:expires_at" json:"expiresAt,omitempty"`
	CreatedAt             time.Time  `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt             time.Time  `gorm:"column:updated_at" json:"updatedAt"`
}

func (OAuthTokens) TableName() string { return "oauth_tokens" }

// SystemPromptPreset is an optional injected system message (I3: at most one
// default-with-no-models preset per user).
type SystemPromptPreset struct {
	ID               string    `gorm:"column:id;primaryKey" json:"id"`
	UserID           string    `gorm:"column:user_id;index" json:"userId"`
	Name             string    `gorm:"column:name" json:"name"`
	Content          string    `gorm:"column:content" json:"content"`
	IsDefault        bool      `gorm:"column:is_default" json:"isDefault"`
	AssociatedModels []string  `gorm:"column:associated_models;serializer:json" json:"associatedModels,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (SystemPromptPreset) TableName() string { return "system_prompt_presets" }

// UsageLogEntry is an append-only record of one completed request (I5).
type UsageLogEntry struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	UserID        string    `gorm:"column:user_id;index" json:"userId"`
	KeyID         string    `gorm:"column:key_id;index" json:"keyId"`
	ProviderType  string    `gorm:"column:provider_type" json:"providerType"`
	Model         string    `gorm:"column:model" json:"model"`
	InputTokens   *int      `gorm:"column:input_tokens" json:"inputTokens,omitempty"`
	OutputTokens  *int      `gorm:"column:output_tokens" json:"outputTokens,omitempty"`
	LatencyMs     int64     `gorm:"column:latency_ms" json:"latencyMs"`
	StatusCode    int       `gorm:"column:status_code" json:"statusCode"`
	ErrorMessage  string    `gorm:"column:error_message" json:"errorMessage,omitempty"`
	Endpoint      string    `gorm:"column:endpoint" json:"endpoint,omitempty"`
	Streamed      bool      `gorm:"column:streamed" json:"streamed,omitempty"`
	MessageCount  *int      `gorm:"column:message_count" json:"messageCount,omitempty"`
	HasTools      bool      `gorm:"column:has_tools" json:"hasTools,omitempty"`
	Temperature   *float64  `gorm:"column:temperature" json:"temperature,omitempty"`
	MaxTokens     *int      `gorm:"column:max_tokens" json:"maxTokens,omitempty"`
	StopReason    string    `gorm:"column:stop_reason" json:"stopReason,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"createdAt"`
}

func (UsageLogEntry) TableName() string { return "usage_log_entries" }
