// Package cryptosvc encrypts tenant secrets at rest with AES-256-GCM.
package cryptosvc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"

	"github.com/ellahos/ellahos/core"
)

// AESCipher seals values as base64(nonce + ciphertext + tag).
type AESCipher struct {
	gcm cipher.AEAD
}

// DeriveKey decodes a 64 hex chars key.
func DeriveKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex key")
	}
	if len(key) != 32 {
		return nil, errors.Errorf("key must be exactly 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// NewAESCipher uses Integrations.EncryptionKey, or a key derived from SecretKey when it is not set.
func NewAESCipher(conf *core.Config) (*AESCipher, error) {
	var key []byte
	if conf.Integrations.EncryptionKey != "" {
		k, err := DeriveKey(conf.Integrations.EncryptionKey)
		if err != nil {
			return nil, err
		}
		key = k
	} else {
		sum := sha256.Sum256([]byte("ellahos.tenant_secrets." + conf.SecretKey))
		key = sum[:]
	}
	return newAESCipher(key)
}

func newAESCipher(key []byte) (*AESCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "aes.NewCipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "cipher.NewGCM")
	}
	return &AESCipher{gcm: gcm}, nil
}

func (c *AESCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "generating nonce")
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *AESCipher) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Wrap(err, "base64 decode")
	}
	nonceSize := c.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := c.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", errors.Wrap(err, "decrypting (wrong key or corrupted data)")
	}
	return string(plaintext), nil
}
