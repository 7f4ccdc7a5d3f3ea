// Collection of utilities to more easily compose, parse and sign cookies.
package kcookie

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/enfabrica/nucleus/lib/khttp/kheader"
	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/token"
)

type Modifier func(*http.Cookie)

func WithSecure(value bool) Modifier {
	return func(cookie *http.Cookie) {
		cookie.Secure = value
	}
}

func WithHttpOnly(value bool) Modifier {
	return func(cookie *http.Cookie) {
		cookie.HttpOnly = value
	}
}

func WithPath(path string) Modifier {
	return func(cookie *http.Cookie) {
		cookie.Path = path
	}
}

func WithDomain(domain string) Modifier {
	return func(cookie *http.Cookie) {
		cookie.Domain = domain
	}
}

func WithExpires(when time.Time) Modifier {
	return func(cookie *http.Cookie) {
		cookie.Expires = when
	}
}

func WithSameSite(same http.SameSite) Modifier {
	return func(cookie *http.Cookie) {
		cookie.SameSite = same
	}
}

type Modifiers []Modifier

func (cg Modifiers) Apply(base *http.Cookie) *http.Cookie {
	for _, cm := range cg {
		cm(base)
	}
	return base
}

// Cookie is a cookie to send to the client, with a Set-Cookie header.
type Cookie struct {
	http.Cookie
}

// New returns a cookie that is Secure, HttpOnly, SameSite=Strict, valid
// for the whole site, unless changed by the modifiers.
func New(name, value string, co ...Modifier) *Cookie {
	cookie := Modifiers(co).Apply(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return &Cookie{Cookie: *cookie}
}

// Delete makes the cookie expire, so the client drops it.
func (c *Cookie) Delete() *Cookie {
	c.Expires = time.Unix(0, 0)
	return c
}

// Header returns the Set-Cookie header for the cookie.
func (c *Cookie) Header() kheader.Header {
	return kheader.New("Set-Cookie", c.Cookie.String())
}

// FromRequest parses the Cookie header of a request.
//
// Returns an empty map if the request carries no cookies. When the same
// name appears multiple times, the first value wins.
func FromRequest(req *krequest.Request) (map[string]string, error) {
	result := map[string]string{}
	line, found := req.Headers().Lookup("cookie")
	if !found {
		return result, nil
	}

	cookies, err := http.ParseCookie(line)
	if err != nil {
		return result, fmt.Errorf("invalid cookie header %q: %w", line, err)
	}
	for _, cookie := range cookies {
		if _, found := result[cookie.Name]; !found {
			result[cookie.Name] = cookie.Value
		}
	}
	return result, nil
}

var ErrNotFound = errors.New("cookie not found")

// Signer creates cookies whose values cannot be modified by the client.
//
// The value is readable by the client: it is not encrypted.
type Signer struct {
	enc  token.BinaryEncoder
	mods []Modifier
}

// NewSigner returns a Signer using key to sign values.
//
// A validity > 0 makes signed values expire after the duration, enforced by
// the server, and sets the Expires attribute of the cookies. mods are applied
// to every cookie created.
func NewSigner(key []byte, validity time.Duration, mods ...Modifier) (*Signer, error) {
	hmac, err := token.NewHMACEncoder(key)
	if err != nil {
		return nil, err
	}

	encoders := []token.BinaryEncoder{hmac, token.NewBase64UrlEncoder()}
	if validity > 0 {
		encoders = append([]token.BinaryEncoder{token.NewExpireEncoder(nil, validity)}, encoders...)
		mods = append([]Modifier{func(cookie *http.Cookie) {
			cookie.Expires = time.Now().Add(validity)
		}}, mods...)
	}
	return &Signer{enc: token.NewChainedEncoder(encoders...), mods: mods}, nil
}

// New returns a cookie carrying a signed value.
func (s *Signer) New(name, value string, co ...Modifier) (*Cookie, error) {
	signed, err := s.enc.Encode([]byte(name + "=" + value))
	if err != nil {
		return nil, err
	}
	return New(name, string(signed), append(append([]Modifier{}, s.mods...), co...)...), nil
}

// Verify returns the value of a signed cookie.
//
// The name is part of what is signed: a value cannot be moved to a
// different cookie.
func (s *Signer) Verify(name, signed string) (string, error) {
	_, data, err := s.enc.Decode(context.Background(), []byte(signed))
	if err != nil {
		return "", fmt.Errorf("cookie %s: %w", name, err)
	}

	prefix := name + "="
	if len(data) < len(prefix) || string(data[:len(prefix)]) != prefix {
		return "", fmt.Errorf("cookie %s: %w", name, token.ErrInvalidSignature)
	}
	return string(data[len(prefix):]), nil
}

// FromRequest returns the verified value of the named cookie of a request.
func (s *Signer) FromRequest(req *krequest.Request, name string) (string, error) {
	cookies, err := FromRequest(req)
	if err != nil {
		return "", err
	}
	signed, found := cookies[name]
	if !found {
		return "", fmt.Errorf("cookie %s: %w", name, ErrNotFound)
	}
	return s.Verify(name, signed)
}
