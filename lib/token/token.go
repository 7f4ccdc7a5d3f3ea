// Package token provides primitives to create and verify tamper proof tokens,
// like the values of signed cookies.
//
// The library is built around the concept of Encoders: objects capable of turning
// a byte array into another, by, for example, adding a cryptographic signature,
// adding an expiry time, or by chaining multiple encoders together.
//
// For example, by using something like:
//
//	signer, err := token.NewHMACEncoder(key)
//	if err ...
//
//	encoder := token.NewChainedEncoder(
//	    token.NewExpireEncoder(nil, time.Hour), signer, token.NewBase64UrlEncoder())
//
// you will get an encoder that prepends the expiry time to the data, signs all
// with the key, and then converts the result to base64, safe to use in a cookie.
//
// On Decode(), the original array will be returned after applying all the necessary
// transformations and verifications. For example, Decode() will error out if the
// signature does not match, or if the data is expired.
package token

import (
	"context"
	"encoding/base64"
)

// Used internally to define keys exported via context.
type contextKey string

// BinaryEncoders convert an array of bytes into another by applying binary
// transformations.
//
// For example: they can sign the data, encode it, augment it with metadata
// (like an expiration time), and so on.
type BinaryEncoder interface {
	// Encode will transform the input array of bytes into the returned one.
	Encode([]byte) ([]byte, error)

	// Decode will return the original array of bytes after decoding it.
	//
	// The context can be used to access additional metadata, like the
	// expiry time extracted by ExpireEncoder.
	Decode(context.Context, []byte) (context.Context, []byte, error)
}

// ChainedEncoder is a set of BinaryEncoders to be applied in sequence.
//
// Decode applies the encoders in reverse order.
type ChainedEncoder []BinaryEncoder

func NewChainedEncoder(enc ...BinaryEncoder) *ChainedEncoder {
	return (*ChainedEncoder)(&enc)
}

func (ce *ChainedEncoder) Encode(data []byte) ([]byte, error) {
	for _, enc := range *ce {
		var err error
		data, err = enc.Encode(data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Decode returns the first error encountered.
//
// Decoding continues after an error as long as the failing encoder returned
// data, so callers can still inspect metadata of expired tokens.
func (ce *ChainedEncoder) Decode(ctx context.Context, data []byte) (context.Context, []byte, error) {
	encs := *ce
	var first error
	for ix := range encs {
		enc := encs[len(encs)-ix-1]

		var err error
		ctx, data, err = enc.Decode(ctx, data)
		if err != nil {
			if first == nil {
				first = err
			}
			if data == nil {
				break
			}
		}
	}
	return ctx, data, first
}

// Base64Encoder turns binary data into a string safe for urls and cookies.
type Base64Encoder struct {
	enc *base64.Encoding
}

// NewBase64UrlEncoder returns an encoder using url safe base64, without padding.
func NewBase64UrlEncoder() *Base64Encoder {
	return &Base64Encoder{
		enc: base64.RawURLEncoding,
	}
}

func (e *Base64Encoder) Encode(data []byte) ([]byte, error) {
	dst := make([]byte, e.enc.EncodedLen(len(data)))
	e.enc.Encode(dst, data)
	return dst, nil
}

func (e *Base64Encoder) Decode(ctx context.Context, data []byte) (context.Context, []byte, error) {
	dst := make([]byte, e.enc.DecodedLen(len(data)))
	n, err := e.enc.Decode(dst, data)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, dst[:n], nil
}
