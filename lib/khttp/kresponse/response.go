// Package kresponse models the responses returned by the router, and their
// serialization on the wire.
//
// A Response never stores Content-Length or Content-Type as headers: both
// are computed from the body and the Mime when the response is encoded.
package kresponse

import (
	"fmt"

	"github.com/enfabrica/nucleus/lib/khttp/kheader"
)

// Into is implemented by anything that can be returned to a client, like
// the values and errors returned by handlers.
type Into interface {
	IntoResponse() *Response
}

type Response struct {
	version kheader.Version
	status  Status
	body    []byte
	mime    Mime
	headers []kheader.Header
}

type Modifier func(*Response)

// WithHeader appends a header, serialized after the default ones.
func WithHeader(h kheader.Into) Modifier {
	return func(r *Response) {
		r.headers = append(r.headers, h.Header())
	}
}

func WithVersion(v kheader.Version) Modifier {
	return func(r *Response) {
		r.version = v
	}
}

// New creates a new HTTP/1.1 Response.
func New(status Status, body []byte, mime Mime, mods ...Modifier) *Response {
	r := &Response{
		version: kheader.Version11,
		status:  status,
		body:    body,
		mime:    mime,
	}
	return r.With(mods...)
}

// Error returns a text/plain response with the specified status.
func Error(status Status, message string) *Response {
	return New(status, []byte(message), PlainText)
}

// Redirect returns a response sending the client to location.
func Redirect(status Status, location string) *Response {
	return New(status, []byte{}, PlainText, WithHeader(kheader.New("Location", location)))
}

// NotFound is the generic response returned for anything that does not exist.
func NotFound() *Response {
	return Error(StatusNotFound, "404 not found")
}

// Forbidden is the generic response returned when access is denied.
func Forbidden() *Response {
	return Error(StatusForbidden, "403 forbidden")
}

// InternalError is the generic response returned when a handler fails.
func InternalError() *Response {
	return Error(StatusInternalServerError, "500 internal server error")
}

// With applies the modifiers to the response, and returns it.
func (r *Response) With(mods ...Modifier) *Response {
	for _, m := range mods {
		m(r)
	}
	return r
}

// AddHeader appends a header, like a cookie.
func (r *Response) AddHeader(h kheader.Into) *Response {
	return r.With(WithHeader(h))
}

func (r *Response) IntoResponse() *Response {
	return r
}

// Clone returns a copy of the response that can be modified without
// affecting the original. The body is shared.
func (r *Response) Clone() *Response {
	c := *r
	c.headers = append([]kheader.Header(nil), r.headers...)
	return &c
}

func (r *Response) Version() kheader.Version {
	return r.version
}

func (r *Response) Status() Status {
	return r.status
}

func (r *Response) Body() []byte {
	return r.body
}

func (r *Response) Mime() Mime {
	return r.mime
}

// Headers returns the extra headers, in the order they were added.
func (r *Response) Headers() []kheader.Header {
	return r.headers
}

// Header returns the value of the last extra header with the specified key.
func (r *Response) Header(key string) (string, bool) {
	key = kheader.New(key, "").Key
	for i := len(r.headers) - 1; i >= 0; i-- {
		if r.headers[i].Key == key {
			return r.headers[i].Value, true
		}
	}
	return "", false
}

// Text is a handler result sent as a 200 text/plain response.
type Text string

func (t Text) IntoResponse() *Response {
	return New(StatusOK, []byte(t), PlainText)
}

// HTMLText is a handler result sent as a 200 text/html response.
type HTMLText string

func (h HTMLText) IntoResponse() *Response {
	return New(StatusOK, []byte(h), HTML)
}

// StatusError is an error that turns into a text/plain response with the
// specified status and message. The wrapped error is only logged.
type StatusError struct {
	Status  Status
	Message string
	Err     error
}

func NewStatusError(status Status, message string, err error) *StatusError {
	return &StatusError{Status: status, Message: message, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Status, e.Message, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) IntoResponse() *Response {
	return Error(e.Status, e.Message)
}
