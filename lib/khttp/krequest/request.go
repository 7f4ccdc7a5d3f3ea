// Package krequest turns the raw bytes received on a connection into requests.
//
// Parsing is incremental: the caller accumulates bytes in a buffer and invokes
// Parse after every read. Until the request is complete, Parse returns one of
// the two retryable errors, ErrMissingBlankLine or a *WaitingOnBodyError, telling
// the caller to read more. Any other error means the bytes can never become a
// valid request.
package krequest

import (
	"strings"

	"github.com/enfabrica/nucleus/lib/khttp/kform"
	"github.com/enfabrica/nucleus/lib/khttp/kheader"
)

// Request is a fully parsed request. It is never modified after Parse returns it.
type Request struct {
	method    kheader.Method
	path      string
	query     string
	hasQuery  bool
	version   kheader.Version
	host      string
	headers   kheader.Headers
	body      []byte
	form      kform.Data
	keepAlive bool
}

func (r *Request) Method() kheader.Method {
	return r.method
}

// Path is the request target up to the first '?', not unescaped.
func (r *Request) Path() string {
	return r.path
}

// Query returns the query string following the '?' in the request target.
// The boolean is false if the target had no '?' at all.
func (r *Request) Query() (string, bool) {
	return r.query, r.hasQuery
}

func (r *Request) Version() kheader.Version {
	return r.version
}

// Host is the value of the Host header without port. It is never empty.
func (r *Request) Host() string {
	return r.host
}

func (r *Request) Headers() kheader.Headers {
	return r.headers
}

func (r *Request) Header(key string) string {
	return r.headers.Get(key)
}

func (r *Request) Body() []byte {
	return r.body
}

func (r *Request) Form() kform.Data {
	return r.form
}

// KeepAlive returns true if the connection should be kept open after the response.
func (r *Request) KeepAlive() bool {
	return r.keepAlive
}

// QueryValues decodes the query string as an url encoded form.
func (r *Request) QueryValues() (map[string]string, error) {
	return kform.DecodeURLEncoded([]byte(r.query))
}

// String returns a short description of the request, suitable for logs.
func (r *Request) String() string {
	target := r.path
	if r.hasQuery {
		target += "?" + r.query
	}
	return strings.Join([]string{r.method.String(), r.host, target, r.version.String()}, " ")
}
