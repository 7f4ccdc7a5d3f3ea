package kresponse

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/enfabrica/nucleus/lib/khttp/kheader"
	"github.com/stretchr/testify/assert"
)

func TestEncodeOrder(t *testing.T) {
	e := NewEncoder(
		WithDefaultHeaders(kheader.New("Server", "nucleus")),
		WithMimeHeaders(HTML, kheader.New("X-Frame-Options", "DENY")),
	)

	r := New(StatusOK, []byte("<p>hi</p>"), HTML,
		WithHeader(kheader.New("set-cookie", "a=b")),
		WithHeader(kheader.New("Cache-Control", "no-cache")),
	)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n"+
		"Content-Length: 9\r\n"+
		"Content-Type: text/html; charset=utf-8\r\n"+
		"Server: nucleus\r\n"+
		"X-Frame-Options: DENY\r\n"+
		"Set-Cookie: a=b\r\n"+
		"Cache-Control: no-cache\r\n"+
		"\r\n"+
		"<p>hi</p>", string(e.Encode(r)))

	// Mime specific headers only apply to their Mime.
	r = Error(StatusNotFound, "404 not found")
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n"+
		"Content-Length: 13\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"Server: nucleus\r\n"+
		"\r\n"+
		"404 not found", string(e.Encode(r)))
}

func TestEncodeNewlines(t *testing.T) {
	r := Redirect(StatusFound, "/next\r\nSet-Cookie: session=stolen").
		AddHeader(kheader.New("X-Bad\nKey", "one\r\n\r\n<html>"))
	assert.Equal(t, "HTTP/1.1 302 Found\r\n"+
		"Content-Length: 0\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"Location: /next  Set-Cookie: session=stolen\r\n"+
		"X-Bad Key: one    <html>\r\n"+
		"\r\n", string(NewEncoder().Encode(r)))
}

func TestEncodeWrite(t *testing.T) {
	var buffer bytes.Buffer
	r := Redirect(StatusMovedPermanently, "https://example.com/").With(WithVersion(kheader.Version10))
	n, err := NewEncoder().Write(&buffer, r)
	assert.NoError(t, err)
	assert.Equal(t, buffer.Len(), n)
	assert.Equal(t, "HTTP/1.0 301 Moved Permanently\r\n"+
		"Content-Length: 0\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"Location: https://example.com/\r\n"+
		"\r\n", buffer.String())

	location, found := r.Header("LOCATION")
	assert.True(t, found)
	assert.Equal(t, "https://example.com/", location)
	_, found = r.Header("Server")
	assert.False(t, found)

	empty := New(StatusOK, nil, "")
	assert.Contains(t, string(NewEncoder().Encode(empty)), "Content-Type: application/octet-stream\r\n")
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "404 Not Found", StatusNotFound.String())
	assert.Equal(t, "Request Header Fields Too Large", StatusHeaderFieldsTooLarge.Reason())
	assert.True(t, StatusFound.Valid())
	assert.False(t, Status(418).Valid())
}

func TestMime(t *testing.T) {
	assert.Equal(t, HTML, FromExtension("index.html"))
	assert.Equal(t, HTML, FromExtension("/a/b/INDEX.HTM"))
	assert.Equal(t, CSS, FromExtension(".css"))
	assert.Equal(t, PNG, FromExtension("logo.png"))
	assert.Equal(t, OctetStream, FromExtension("README"))
	assert.Equal(t, OctetStream, FromExtension("archive.nucleus-unknown"))
	assert.Equal(t, Mime("text/markdown"), Custom("text/markdown"))
}

func TestInto(t *testing.T) {
	for _, tc := range []struct {
		into   Into
		status Status
		mime   Mime
		body   string
	}{
		{Text("hello"), StatusOK, PlainText, "hello"},
		{HTMLText("<b>hello</b>"), StatusOK, HTML, "<b>hello</b>"},
		{NotFound(), StatusNotFound, PlainText, "404 not found"},
		{Forbidden(), StatusForbidden, PlainText, "403 forbidden"},
		{InternalError(), StatusInternalServerError, PlainText, "500 internal server error"},
		{NewStatusError(StatusUnauthorized, "login first", errors.New("no cookie")), StatusUnauthorized, PlainText, "login first"},
	} {
		r := tc.into.IntoResponse()
		assert.Equal(t, tc.status, r.Status())
		assert.Equal(t, tc.mime, r.Mime())
		assert.Equal(t, tc.body, string(r.Body()))
	}

	base := errors.New("no cookie")
	err := error(NewStatusError(StatusUnauthorized, "login first", base))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "401 Unauthorized: login first: no cookie", err.Error())

	var into Into
	assert.True(t, errors.As(fmt.Errorf("handler: %w", err), &into))
	assert.Equal(t, StatusUnauthorized, into.IntoResponse().Status())
}

func TestClone(t *testing.T) {
	original := New(StatusOK, []byte("shared"), PlainText, WithHeader(kheader.New("X-One", "1")))
	clone := original.Clone().AddHeader(kheader.New("Connection", "close"))

	assert.Len(t, original.Headers(), 1)
	assert.Len(t, clone.Headers(), 2)
	_, found := original.Header("connection")
	assert.False(t, found)
	assert.Equal(t, original.Body(), clone.Body())
	assert.Equal(t, original.Status(), clone.Status())
}
