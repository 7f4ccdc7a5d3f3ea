package token

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
)

// MinKeySize is the minimum size in bytes of an HMAC key.
const MinKeySize = 32

var ErrInvalidSignature = errors.New("invalid signature")

// HMACEncoder appends an HMAC-SHA256 of the data on Encode, and verifies
// and strips it on Decode.
//
// The data is not encrypted: anyone can read it, nobody without the key
// can modify it.
type HMACEncoder struct {
	key []byte
}

func NewHMACEncoder(key []byte) (*HMACEncoder, error) {
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("hmac key is too short: %d bytes, need at least %d", len(key), MinKeySize)
	}
	return &HMACEncoder{key: append([]byte{}, key...)}, nil
}

// GenerateKey returns a random key suitable for NewHMACEncoder.
func GenerateKey() ([]byte, error) {
	key := make([]byte, MinKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("could not generate key: %w", err)
	}
	return key, nil
}

// ReadOrGenerateKey reads a key from path, or generates a new one and
// stores it in path if the file does not exist.
//
// With an empty path, a new random key is returned every time.
func ReadOrGenerateKey(path string) ([]byte, error) {
	if path == "" {
		return GenerateKey()
	}

	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) < MinKeySize {
			return nil, fmt.Errorf("key in %s is too short: %d bytes", path, len(key))
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("could not store key: %w", err)
	}
	return key, nil
}

func (h *HMACEncoder) sum(data []byte) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (h *HMACEncoder) Encode(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data)+sha256.Size)
	result = append(result, data...)
	return append(result, h.sum(data)...), nil
}

func (h *HMACEncoder) Decode(ctx context.Context, data []byte) (context.Context, []byte, error) {
	if len(data) < sha256.Size {
		return ctx, nil, fmt.Errorf("%w: data too short", ErrInvalidSignature)
	}

	payload, signature := data[:len(data)-sha256.Size], data[len(data)-sha256.Size:]
	if !hmac.Equal(signature, h.sum(payload)) {
		return ctx, nil, ErrInvalidSignature
	}
	return ctx, payload, nil
}
