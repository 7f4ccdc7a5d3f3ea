// Package kheader parses and formats single HTTP header lines.
//
// Keys are always normalized to lower case: lookups in Headers are case
// insensitive as long as they go through Get, Set and Has.
package kheader

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingColon = errors.New("header line has no ':' separator")
	ErrEmptyKey     = errors.New("header line has an empty key")
)

// Header is a single key: value pair.
type Header struct {
	Key   string
	Value string
}

// Into is implemented by anything that can be turned into a header,
// like a cookie.
type Into interface {
	Header() Header
}

// New returns a Header with the key lower cased and both key and value trimmed.
func New(key, value string) Header {
	return Header{
		Key:   strings.ToLower(strings.TrimSpace(key)),
		Value: strings.TrimSpace(value),
	}
}

// Parse parses a line in the form "key: value".
//
// The line is split on the first ':', so values can contain colons.
// The line must not contain the trailing \r\n.
func Parse(line []byte) (Header, error) {
	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		return Header{}, ErrMissingColon
	}
	h := New(string(line[:colon]), string(line[colon+1:]))
	if h.Key == "" {
		return Header{}, ErrEmptyKey
	}
	return h, nil
}

func (h Header) Header() Header {
	return h
}

// String returns the header in wire format, without the trailing \r\n.
func (h Header) String() string {
	return fmt.Sprintf("%s: %s", h.Key, h.Value)
}

// Headers maps lower case keys to values. Only the last value of a
// duplicated header is retained.
type Headers map[string]string

func (h Headers) Get(key string) string {
	return h[strings.ToLower(key)]
}

func (h Headers) Lookup(key string) (string, bool) {
	value, found := h[strings.ToLower(key)]
	return value, found
}

func (h Headers) Has(key string) bool {
	_, found := h[strings.ToLower(key)]
	return found
}

func (h Headers) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Add stores an already normalized header, replacing any previous value.
func (h Headers) Add(header Header) {
	h[header.Key] = header.Value
}
