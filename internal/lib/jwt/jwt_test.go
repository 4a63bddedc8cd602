package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestMintVerify_Roundtrip(t *testing.T) {
	codec := NewCodec(testSecret)
	subject := uuid.New()

	token, err := codec.Mint(subject, 5*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, subject, claims.Subject)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt, 5*time.Second)
}

func TestVerify_Expired(t *testing.T) {
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mintClock := issued
	codec := NewCodecWithClock(testSecret, func() time.Time { return mintClock })

	token, err := codec.Mint(uuid.New(), 5*time.Minute)
	require.NoError(t, err)

	// move past expiry
	mintClock = issued.Add(6 * time.Minute)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_BadSignature(t *testing.T) {
	codec := NewCodec(testSecret)
	other := NewCodec([]byte("another-secret"))

	token, err := other.Mint(uuid.New(), 5*time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestVerify_Malformed(t *testing.T) {
	codec := NewCodec(testSecret)

	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		_, err := codec.Verify(token)
		assert.ErrorIs(t, err, ErrTokenMalformed, "token %q", token)
	}
}

func TestVerify_Tampered(t *testing.T) {
	codec := NewCodec(testSecret)

	token, err := codec.Mint(uuid.New(), 5*time.Minute)
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"

	_, err = codec.Verify(tampered)
	assert.Error(t, err)
}
