package token

import (
	"context"
	"encoding/binary"
	"errors"
	"time"
)

// TimeSource is a function that returns the current time.
type TimeSource func() time.Time

var (
	ErrExpired          = errors.New("token expired")
	ErrInvalidTimestamp = errors.New("invalid timestamp in buffer")
)

// ExpiresTimeKey allows to access the expiry time extracted by
// ExpireEncoder.Decode.
//
// Example:
//
//	ctx, data, err := enc.Decode(context.Background(), original)
//	...
//	expires, ok := ctx.Value(token.ExpiresTimeKey).(time.Time)
var ExpiresTimeKey = contextKey("expires")

// ExpireEncoder prepends the time the data expires on Encode, and fails
// Decode with ErrExpired once that time has passed.
//
// The expiry is decided by whoever encodes the data.
type ExpireEncoder struct {
	validity time.Duration
	now      TimeSource
}

// NewExpireEncoder creates a new ExpireEncoder.
//
// source is used to read the current time, time.Now if nil.
// validity is the lifetime of the data from the time Encode is called.
func NewExpireEncoder(source TimeSource, validity time.Duration) *ExpireEncoder {
	if source == nil {
		source = time.Now
	}

	return &ExpireEncoder{
		validity: validity,
		now:      source,
	}
}

func (t *ExpireEncoder) Encode(data []byte) ([]byte, error) {
	expires := t.now().Add(t.validity).Unix()

	timedata := make([]byte, binary.MaxVarintLen64, binary.MaxVarintLen64+len(data))
	written := binary.PutVarint(timedata, expires)
	return append(timedata[:written], data...), nil
}

// Decode returns the data even if expired, together with ErrExpired, so
// callers can tell the user when the data expired.
func (t *ExpireEncoder) Decode(ctx context.Context, data []byte) (context.Context, []byte, error) {
	expires, parsed := binary.Varint(data)
	if parsed <= 0 {
		return ctx, nil, ErrInvalidTimestamp
	}

	expirest := time.Unix(expires, 0)
	ctx = context.WithValue(ctx, ExpiresTimeKey, expirest)

	if expires <= 0 || expirest.Before(t.now()) {
		return ctx, data[parsed:], ErrExpired
	}
	return ctx, data[parsed:], nil
}
