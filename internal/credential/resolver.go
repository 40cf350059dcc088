// Package credential resolves a (userId, providerType) pair into a usable
// upstream credential: for non-Anthropic providers this is decrypt-and-
// return; for Anthropic it delegates to the OAuth token manager (spec §4.2).
package credential

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nullroute-dev/llmgateway/internal/crypto"
	"github.com/nullroute-dev/llmgateway/internal/gwerr"
	"github.com/nullroute-dev/llmgateway/internal/oauth"
	"github.com/nullroute-dev/llmgateway/internal/store"
)

const defaultVertexRegion = "asia-northeast1"

// VertexCredential is the structured credential stored for the Vertex-AI
// provider type: JSON with apiKey/projectId/region.
type VertexCredential struct {
	APIKey    string `json:"apiKey"`
	ProjectID string `json:"projectId"`
	Region    string `json:"region"`
}

// Credential is the resolved, decrypted material handed to a provider
// adapter. Exactly one of APIKey/Vertex/AccessToken is meaningful,
// depending on ProviderType.
type Credential struct {
	ProviderType store.ProviderType
	APIKey       string
	Vertex       *VertexCredential
	AccessToken  string // anthropic-agent only
}

// Resolver resolves upstream credentials.
type Resolver struct {
	store      store.Store
	key        *crypto.Key
	oauthMgr   *oauth.Manager
}

func New(st store.Store, key *crypto.Key, oauthMgr *oauth.Manager) *Resolver {
	return &Resolver{store: st, key: key, oauthMgr: oauthMgr}
}

// Resolve returns the decrypted credential for userID/providerType. For
// non-Anthropic providers with no stored credential it returns nil, nil; a
// store, decrypt or Vertex-JSON failure returns a gwerr. The Anthropic path
// returns whatever error the OAuth manager reports.
func (r *Resolver) Resolve(ctx context.Context, userID string, providerType store.ProviderType) (*Credential, error) {
	if providerType == store.ProviderAnthropicAgent {
		token, err := r.oauthMgr.GetAccessToken(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &Credential{ProviderType: providerType, AccessToken: token}, nil
	}

	rec, err := r.store.GetCredential(ctx, userID, providerType)
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, "failed to load credential").WithCause(err).WithHTTPStatus(500)
	}
	if rec == nil {
		return nil, nil
	}

	plaintext, err := r.key.Decrypt(crypto.Encrypted{Blob: rec.EncryptedAPIKey, IV: rec.IV})
	if err != nil {
		return nil, gwerr.New(gwerr.CodeProviderError, "failed to decrypt credential").WithCause(err).WithHTTPStatus(500)
	}

	if providerType == store.ProviderVertexAI {
		var vc VertexCredential
		if jsonErr := json.Unmarshal([]byte(plaintext), &vc); jsonErr != nil {
			return nil, gwerr.New(gwerr.CodeInvalidRequest, "Invalid Vertex AI credentials")
		}
		if strings.TrimSpace(vc.Region) == "" {
			vc.Region = defaultVertexRegion
		}
		return &Credential{ProviderType: providerType, Vertex: &vc}, nil
	}

	return &Credential{ProviderType: providerType, APIKey: plaintext}, nil
}
