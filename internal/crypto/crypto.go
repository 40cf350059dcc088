// Package crypto implements authenticated symmetric encryption for upstream
// credential values at rest, and the SHA-256 hashing used for proxy key
// lookups. The AES-256-GCM mechanics follow the pattern used elsewhere in
// the example pack for at-rest secrets; the wire format here is the
// gateway's own: ciphertext and auth tag are base64-encoded separately and
// joined with "." into one blob, and the nonce is stored alongside as iv.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const keySize = 32
const nonceSize = 12

var (
	ErrInvalidKeySize = errors.New("crypto: encryption key must be 32 bytes")
	ErrMalformedBlob  = errors.New("crypto: ciphertext blob is missing the '.' separator")
)

// Key is the process-wide immutable 32-byte AEAD key, decoded once at
// startup from the 64-hex-char ENCRYPTION_KEY environment variable.
type Key struct {
	raw []byte
}

// NewKey decodes a 64-character hex string into a 32-byte AEAD key.
func NewKey(hexKey string) (*Key, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid hex encryption key: %w", err)
	}
	if len(raw) != keySize {
		return nil, ErrInvalidKeySize
	}
	return &Key{raw: raw}, nil
}

// Encrypted is the stored representation of an encrypted secret: the
// ciphertext+tag blob and the nonce, each independently base64-encoded.
type Encrypted struct {
	Blob string // base64(ciphertext) + "." + base64(authTag)
	IV   string // base64(nonce)
}

// Encrypt seals plaintext under k, returning the blob/iv pair described in
// spec §6.5.
func (k *Key) Encrypt(plaintext string) (Encrypted, error) {
	block, err := aes.NewCipher(k.raw)
	if err != nil {
		return Encrypted{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Encrypted{}, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Encrypted{}, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	tagSize := gcm.Overhead()
	ciphertext := sealed[:len(sealed)-tagSize]
	authTag := sealed[len(sealed)-tagSize:]

	return Encrypted{
		Blob: base64.StdEncoding.EncodeToString(ciphertext) + "." + base64.StdEncoding.EncodeToString(authTag),
		IV:   base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Decrypt opens an Encrypted value, returning the original plaintext.
// Decryption rejects any blob without the dot separator (§6.5).
func (k *Key) Decrypt(enc Encrypted) (string, error) {
	parts := strings.SplitN(enc.Blob, ".", 2)
	if len(parts) != 2 {
		return "", ErrMalformedBlob
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("crypto: invalid ciphertext encoding: %w", err)
	}
	authTag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("crypto: invalid auth tag encoding: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(enc.IV)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid iv encoding: %w", err)
	}

	block, err := aes.NewCipher(k.raw)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: unexpected nonce size %d", len(nonce))
	}

	sealed := append(append([]byte{}, ciphertext...), authTag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return string(plaintext), nil
}

// HashHex returns the lowercase-hex SHA-256 digest of raw, used both for
// proxy key lookups (hashedKey) and as a general content hash.
func HashHex(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
