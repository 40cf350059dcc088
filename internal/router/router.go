// Package router maps a model name to an ordered list of candidate
// providerTypes (spec §4.4).
package router

import (
	"strings"

	"github.com/nullroute-dev/llmgateway/internal/store"
)

// Candidates returns the ordered providerType candidates for model.
func Candidates(model string) []store.ProviderType {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return []store.ProviderType{store.ProviderAnthropicAgent}
	case strings.HasPrefix(model, "gemini-"):
		return []store.ProviderType{store.ProviderVertexAI, store.ProviderGemini}
	}

	// `provider:model` colon form — an optional enhancement per spec §9;
	// handled here too, alongside prefix and slash routing, as the spec
	// recommends.
	if idx := strings.Index(model, ":"); idx > 0 {
		return []store.ProviderType{store.ProviderType(model[:idx])}
	}

	if strings.Contains(model, "/") {
		return []store.ProviderType{store.ProviderOpenRouter}
	}

	return nil
}

// StripColonProvider returns the model name with a leading "provider:"
// prefix removed, for the colon routing form.
func StripColonProvider(model string) string {
	if idx := strings.Index(model, ":"); idx > 0 {
		return model[idx+1:]
	}
	return model
}
