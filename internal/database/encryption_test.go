package database

import (
	"encoding/base64"
	"testing"

	"furnidesk/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-very-long-test-secret-key-for-encryption-testing"

func enableEncryption(t *testing.T) {
	t.Helper()
	t.Setenv(envEnableEncryption, "true")
	t.Setenv(envEncryptionSecret, testSecret)
}

func testCipher(t *testing.T) *fieldCipher {
	t.Helper()
	c, err := newFieldCipher(testSecret)
	require.NoError(t, err)
	return c
}

func TestFieldCipher_RoundTrip(t *testing.T) {
	c := testCipher(t)

	for _, plaintext := range []string{
		"Is my sofa ready?",
		"Cadeira de jacarandá, 2 unidades 🪑",
		`{"id":"c1-m1","content":"quote","senderName":"Marina"}`,
	} {
		t.Run(plaintext, func(t *testing.T) {
			sealed, err := c.Seal(plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, plaintext, sealed)

			opened, err := c.Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, plaintext, opened)
		})
	}

	empty, err := c.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFieldCipher_LookupIsDeterministic(t *testing.T) {
	c := testCipher(t)
	const id = "false_5511999990000@c.us_AAA"

	a, err := c.Seal(id)
	require.NoError(t, err)
	b, err := c.Seal(id)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	l1, err := c.SealLookup(id)
	require.NoError(t, err)
	l2, err := c.SealLookup(id)
	require.NoError(t, err)
	assert.Equal(t, l1, l2)

	other, err := c.SealLookup(id + "B")
	require.NoError(t, err)
	assert.NotEqual(t, l1, other)

	plain, err := c.Open(l1)
	require.NoError(t, err)
	assert.Equal(t, id, plain)
}

func TestFieldCipher_OpenRejectsGarbage(t *testing.T) {
	c := testCipher(t)

	_, err := c.Open("not base64!")
	assert.ErrorContains(t, err, "decode sealed value")

	_, err = c.Open(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, errSealedTooShort)

	sealed, err := c.Seal("Delivery on Friday")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	raw[constants.EncryptionNonceSize] ^= 0x01
	_, err = c.Open(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorContains(t, err, "open sealed value")
}

func TestFieldCipher_KeysDifferPerSecret(t *testing.T) {
	a := testCipher(t)
	b, err := newFieldCipher("this-is-a-different-very-long-secret-key-for-testing")
	require.NoError(t, err)

	sealed, err := a.Seal("walnut")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestNewFieldCipher_Secret(t *testing.T) {
	_, err := newFieldCipher("")
	assert.ErrorContains(t, err, envEncryptionSecret)

	_, err = newFieldCipher("too-short")
	assert.ErrorContains(t, err, "at least 32 characters")
}

func TestCipherFromEnv(t *testing.T) {
	t.Run("disabled passes through", func(t *testing.T) {
		t.Setenv(envEnableEncryption, "false")
		c, err := cipherFromEnv()
		require.NoError(t, err)

		for _, fn := range []func(string) (string, error){c.Seal, c.SealLookup, c.Open} {
			out, err := fn("plain")
			require.NoError(t, err)
			assert.Equal(t, "plain", out)
		}
	})

	t.Run("enabled without secret", func(t *testing.T) {
		t.Setenv(envEnableEncryption, "true")
		t.Setenv(envEncryptionSecret, "")
		_, err := cipherFromEnv()
		assert.Error(t, err)
	})

	t.Run("enabled", func(t *testing.T) {
		t.Setenv(envEnableEncryption, "true")
		t.Setenv(envEncryptionSecret, testSecret)
		c, err := cipherFromEnv()
		require.NoError(t, err)
		assert.True(t, c.active())
	})
}
