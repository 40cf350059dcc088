package canonical

import (
	"crypto/rand"
	"encoding/hex"
)

// NewChatCompletionID returns an id of the form "chatcmpl-" + 24 hex chars
// (spec §4.6).
func NewChatCompletionID() string {
	return "chatcmpl-" + randomHex(12)
}

// NewToolCallID returns an id of the form "call_" + 24 hex chars (spec
// §4.13's "allocating ids of form call_<24hex>").
func NewToolCallID() string {
	return "call_" + randomHex(12)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
