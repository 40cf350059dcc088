package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormStore is the reference Store implementation, backed by GORM the way
// the donor's llm package persists its entities (struct + gorm tags +
// TableName()). Any GORM dialector works; production wires
// gorm.io/driver/postgres.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore wraps an already-opened *gorm.DB and ensures the schema
// exists (AutoMigrate), mirroring the donor's llm.InitDatabase call in
// cmd/agentflow/main.go.
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(
		&ProxyKey{},
		&UpstreamCredential{},
		&OAuthTokens{},
		&SystemPromptPreset{},
		&UsageLogEntry{},
	); err != nil {
		return nil, err
	}
	return &GormStore{db: db, logger: logger.With(zap.String("component", "store"))}, nil
}

func (s *GormStore) InsertProxyKey(ctx context.Context, key ProxyKey) error {
	return s.db.WithContext(ctx).Create(&key).Error
}

func (s *GormStore) ByHash(ctx context.Context, hashedKey string) (*ProxyKey, error) {
	var key ProxyKey
	err := s.db.WithContext(ctx).Where("hashed_key = ?", hashedKey).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *GormStore) ListKeys(ctx context.Context, userID string) ([]ProxyKey, error) {
	var keys []ProxyKey
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&keys).Error
	return keys, err
}

func (s *GormStore) TouchKeyLastUsed(ctx context.Context, keyID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&ProxyKey{}).
		Where("key_id = ?", keyID).
		Update("last_used_at", now).Error
}

func (s *GormStore) ListCredentials(ctx context.Context, userID string) ([]UpstreamCredential, error) {
	var creds []UpstreamCredential
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&creds).Error
	return creds, err
}

func (s *GormStore) GetCredential(ctx context.Context, userID string, providerType ProviderType) (*UpstreamCredential, error) {
	var cred UpstreamCredential
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider_type = ?", userID, providerType).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *GormStore) UpsertCredential(ctx context.Context, cred UpstreamCredential) error {
	cred.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).
		Where("user_id = ? AND provider_type = ?", cred.UserID, cred.ProviderType).
		Assign(cred).
		FirstOrCreate(&UpstreamCredential{}).Error
}

func (s *GormStore) DeleteCredential(ctx context.Context, userID string, providerType ProviderType) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND provider_type = ?", userID, providerType).
		Delete(&UpstreamCredential{}).Error
}

func (s *GormStore) UpsertOAuthTokens(ctx context.Context, tok OAuthTokens) error {
	tok.UpdatedAt = time.Now()
	return s.db.WithContext(ctx).
		Where("user_id = ?", tok.UserID).
		Assign(tok).
		FirstOrCreate(&OAuthTokens{}).Error
}

func (s *GormStore) GetOAuthTokens(ctx context.Context, userID string) (*OAuthTokens, error) {
	var tok OAuthTokens
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&tok).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *GormStore) DeleteOAuthTokens(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&OAuthTokens{}).Error
}

func (s *GormStore) ListAllOAuthTokens(ctx context.Context) ([]OAuthTokens, error) {
	var toks []OAuthTokens
	err := s.db.WithContext(ctx).Find(&toks).Error
	return toks, err
}

func (s *GormStore) InsertUsageLog(ctx context.Context, entry UsageLogEntry) error {
	return s.db.WithContext(ctx).Create(&entry).Error
}

func (s *GormStore) GetSystemPromptForModel(ctx context.Context, userID, model string) (*SystemPromptPreset, error) {
	var candidates []SystemPromptPreset
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&candidates).Error; err != nil {
		return nil, err
	}

	// (a) a preset whose associatedModels contains the exact model.
	for i := range candidates {
		for _, m := range candidates[i].AssociatedModels {
			if m == model {
				return &candidates[i], nil
			}
		}
	}
	// (b) the global default: isDefault and no/empty associatedModels.
	for i := range candidates {
		if candidates[i].IsDefault && len(candidates[i].AssociatedModels) == 0 {
			return &candidates[i], nil
		}
	}
	return nil, nil
}
