package token

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func TestHMACEncoder(t *testing.T) {
	_, err := NewHMACEncoder([]byte("short"))
	assert.Error(t, err)

	enc, err := NewHMACEncoder(testKey())
	require.NoError(t, err)

	data, err := enc.Encode([]byte("user=robin"))
	require.NoError(t, err)
	assert.Len(t, data, len("user=robin")+32)

	_, original, err := enc.Decode(context.Background(), data)
	assert.NoError(t, err)
	assert.Equal(t, []byte("user=robin"), original)

	data[0] = 'U'
	_, original, err = enc.Decode(context.Background(), data)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Nil(t, original)

	_, _, err = enc.Decode(context.Background(), []byte("tiny"))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	other, err := NewHMACEncoder([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	data, err = enc.Encode([]byte("user=robin"))
	require.NoError(t, err)
	_, _, err = other.Decode(context.Background(), data)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestChainedEncoder(t *testing.T) {
	signer, err := NewHMACEncoder(testKey())
	require.NoError(t, err)

	enc := NewChainedEncoder(signer, NewBase64UrlEncoder())
	data, err := enc.Encode([]byte("When morality comes up against profit, it is seldom that profit loses."))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "=")
	assert.NotContains(t, string(data), "/")

	_, original, err := enc.Decode(context.Background(), data)
	assert.NoError(t, err)
	assert.Equal(t, "When morality comes up against profit, it is seldom that profit loses.", string(original))

	_, _, err = enc.Decode(context.Background(), []byte("!!not base64!!"))
	assert.Error(t, err)
}

func TestBase64Encoder(t *testing.T) {
	enc := NewBase64UrlEncoder()
	for _, input := range []string{"", "a", "ab", "abc", "abcd"} {
		data, err := enc.Encode([]byte(input))
		assert.NoError(t, err)
		_, original, err := enc.Decode(context.Background(), data)
		assert.NoError(t, err)
		assert.Equal(t, input, string(original))
	}
}

func TestReadOrGenerateKey(t *testing.T) {
	k1, err := ReadOrGenerateKey("")
	require.NoError(t, err)
	k2, err := ReadOrGenerateKey("")
	require.NoError(t, err)
	assert.Len(t, k1, MinKeySize)
	assert.NotEqual(t, k1, k2)

	path := t.TempDir() + "/cookie.key"
	k1, err = ReadOrGenerateKey(path)
	require.NoError(t, err)
	k2, err = ReadOrGenerateKey(path)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}
