package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcrypt_HashAndCompare(t *testing.T) {
	h := NewBcrypt()

	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, h.Compare(hash, "secret1"))
	assert.False(t, h.Compare(hash, "wrong"))
}

func TestBcrypt_CompareGarbageHash(t *testing.T) {
	h := NewBcrypt()

	// a mismatch or unreadable hash is a plain false, never a panic
	assert.False(t, h.Compare([]byte("not-a-bcrypt-hash"), "secret1"))
}
