package crypto_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nullroute-dev/llmgateway/internal/crypto"
)

func randomHexKey(t *rapid.T) string {
	b := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "key")
	return hex.EncodeToString(b)
}

// P1: Decrypt(Encrypt(x)) == x for any utf-8 string x using a fresh 32-byte key.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key, err := crypto.NewKey(randomHexKey(t))
		require.NoError(t, err)

		plaintext := rapid.String().Draw(t, "plaintext")

		enc, err := key.Encrypt(plaintext)
		require.NoError(t, err)
		require.Contains(t, enc.Blob, ".")

		got, err := key.Decrypt(enc)
		require.NoError(t, err)
		require.Equal(t, plaintext, got)
	})
}

func TestDecryptRejectsMissingSeparator(t *testing.T) {
	key, err := crypto.NewKey(strings.Repeat("ab", 32))
	require.NoError(t, err)

	_, err = key.Decrypt(crypto.Encrypted{Blob: "nodotinhere", IV: "AAAAAAAAAAAAAAAA"})
	require.ErrorIs(t, err, crypto.ErrMalformedBlob)
}

func TestNewKeyRejectsWrongSize(t *testing.T) {
	_, err := crypto.NewKey("abcd")
	require.Error(t, err)
}

// P2: Hash(raw) is deterministic.
func TestHashHexDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.String().Draw(t, "raw")
		require.Equal(t, crypto.HashHex(raw), crypto.HashHex(raw))
	})
}
