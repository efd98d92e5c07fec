package encryption

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESEncryption_RoundTrip(t *testing.T) {
	enc, err := NewAESEncryption("ledger-at-rest-key")
	require.NoError(t, err)

	plaintext := []byte(`{"index":1,"payload":{"kind":"patient"}}`)
	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "patient")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestAESEncryption_NonceIsRandom(t *testing.T) {
	enc, err := NewAESEncryption("ledger-at-rest-key")
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestAESEncryption_WrongKeyFails(t *testing.T) {
	enc, err := NewAESEncryption("key-one")
	require.NoError(t, err)
	other, err := NewAESEncryption("key-two")
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err)

	_, err = enc.Decrypt([]byte("short"))
	assert.Error(t, err)
}

func TestNewAESEncryption_EmptyKey(t *testing.T) {
	_, err := NewAESEncryption("")
	assert.Error(t, err)
}

func TestHashData(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashData([]byte("abc")))
}
