package cryptosvc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ellahos/ellahos/core"
)

func TestAESCipher(t *testing.T) {
	c, err := NewAESCipher(&core.Config{SecretKey: "secret"})
	require.NoError(t, err)

	enc1, err := c.Encrypt("evo-api-key")
	require.NoError(t, err)
	enc2, err := c.Encrypt("evo-api-key")
	require.NoError(t, err)
	assert.NotEqual(t, enc1, enc2, "nonce must differ")

	dec, err := c.Decrypt(enc1)
	require.NoError(t, err)
	assert.Equal(t, "evo-api-key", dec)

	other, err := NewAESCipher(&core.Config{SecretKey: "other"})
	require.NoError(t, err)
	_, err = other.Decrypt(enc1)
	assert.Error(t, err)

	_, err = c.Decrypt("AAAA")
	assert.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	_, err := DeriveKey("zz")
	assert.Error(t, err)
	_, err = DeriveKey(strings.Repeat("ab", 16))
	assert.Error(t, err)
	key, err := DeriveKey(strings.Repeat("ab", 32))
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = NewAESCipher(&core.Config{Integrations: core.IntegrationsConfig{EncryptionKey: strings.Repeat("0f", 32)}})
	assert.NoError(t, err)
}
