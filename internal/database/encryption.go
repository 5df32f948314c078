package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"furnidesk/internal/constants"

	"golang.org/x/crypto/pbkdf2"
)

const (
	envEnableEncryption = "FURNIDESK_ENABLE_ENCRYPTION"
	envEncryptionSecret = "FURNIDESK_ENCRYPTION_SECRET"
)

var errSealedTooShort = errors.New("sealed value shorter than its nonce")

// fieldCipher seals message content and external identifiers at rest.
// The zero value passes every value through unchanged.
type fieldCipher struct {
	aead cipher.AEAD
}

// cipherFromEnv returns a pass-through cipher unless encryption is enabled
// in the environment.
func cipherFromEnv() (*fieldCipher, error) {
	if os.Getenv(envEnableEncryption) != "true" {
		return &fieldCipher{}, nil
	}
	return newFieldCipher(os.Getenv(envEncryptionSecret))
}

func newFieldCipher(secret string) (*fieldCipher, error) {
	switch {
	case secret == "":
		return nil, fmt.Errorf("%s is required when encryption is enabled", envEncryptionSecret)
	case len(secret) < constants.MinEncryptionSecretLength:
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", constants.MinEncryptionSecretLength)
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), constants.EncryptionIterations, constants.EncryptionKeySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &fieldCipher{aead: aead}, nil
}

func (c *fieldCipher) active() bool {
	return c != nil && c.aead != nil
}

// Seal encrypts with a random nonce.
func (c *fieldCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" || !c.active() {
		return plaintext, nil
	}
	nonce := make([]byte, constants.EncryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	return c.seal(nonce, plaintext), nil
}

// SealLookup encrypts with a nonce derived from the plaintext, so a value
// always seals to the same text and indexed columns can be queried.
// #nosec G407 - deterministic nonce is intended for lookup columns
func (c *fieldCipher) SealLookup(plaintext string) (string, error) {
	if plaintext == "" || !c.active() {
		return plaintext, nil
	}
	sum := sha256.Sum256([]byte(plaintext + constants.EncryptionLookupSalt))
	return c.seal(sum[:constants.EncryptionNonceSize], plaintext), nil
}

func (c *fieldCipher) seal(nonce []byte, plaintext string) string {
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out)
}

// Open reverses Seal and SealLookup.
func (c *fieldCipher) Open(sealed string) (string, error) {
	if sealed == "" || !c.active() {
		return sealed, nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < constants.EncryptionNonceSize {
		return "", errSealedTooShort
	}
	plain, err := c.aead.Open(nil, raw[:constants.EncryptionNonceSize], raw[constants.EncryptionNonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}
