package krouter

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/enfabrica/nucleus/lib/khttp/kheader"
	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
)

// Handler computes the response to a request.
//
// state is a copy of the state passed to the Router, or the value returned
// by the StateFunc configured. Both the value and the error are turned into
// a response: errors not implementing kresponse.Into become a generic 500.
type Handler[S any] func(ctx context.Context, state S, req *krequest.Request) (kresponse.Into, error)

type Kind int

const (
	KindStatic Kind = iota
	KindRedirect
	KindFunction
	KindEmbed
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindRedirect:
		return "redirect"
	case KindFunction:
		return "function"
	case KindEmbed:
		return "embed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// CatchAll is the pattern of the route used for the root path when
// nothing else matches.
const CatchAll = "*"

// Route maps a method and a path pattern to a resolver.
//
// The pattern is either an exact path like /hello, a wildcard like /hello/*,
// matching anything below /hello/, or CatchAll.
type Route[S any] struct {
	method kheader.Method
	path   string
	kind   Kind

	file     string
	target   string
	handler  Handler[S]
	embed    []byte
	mime     kresponse.Mime
	blocking bool
}

type routeOptions struct {
	blocking bool
}

type RouteOption func(*routeOptions)

// Blocking runs the handler in the worker pool of the router, rather than
// in the goroutine serving the connection. Use it for handlers that block
// or perform expensive computations.
func Blocking() RouteOption {
	return func(o *routeOptions) {
		o.blocking = true
	}
}

func newFunction[S any](method kheader.Method, path string, handler Handler[S], opts ...RouteOption) Route[S] {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return Route[S]{method: method, path: path, kind: KindFunction, handler: handler, blocking: o.blocking}
}

// Get invokes handler for GET requests matching path.
func Get[S any](path string, handler Handler[S], opts ...RouteOption) Route[S] {
	return newFunction(kheader.MethodGet, path, handler, opts...)
}

// Post invokes handler for POST requests matching path.
func Post[S any](path string, handler Handler[S], opts ...RouteOption) Route[S] {
	return newFunction(kheader.MethodPost, path, handler, opts...)
}

// GetStatic serves file, relative to the root of the virtual host, for GET
// requests matching path.
func GetStatic[S any](path, file string) Route[S] {
	return Route[S]{method: kheader.MethodGet, path: path, kind: KindStatic, file: file}
}

// Redirect permanently redirects GET requests matching path to target.
func Redirect[S any](path, target string) Route[S] {
	return Route[S]{method: kheader.MethodGet, path: path, kind: KindRedirect, target: target}
}

// RedirectAll permanently redirects GET requests for the root path to target,
// unless a more specific route matches.
func RedirectAll[S any](target string) Route[S] {
	return Redirect[S](CatchAll, target)
}

// Embed serves the bytes provided for GET requests matching path.
func Embed[S any](path string, content []byte, mime kresponse.Mime) Route[S] {
	return Route[S]{method: kheader.MethodGet, path: path, kind: KindEmbed, embed: content, mime: mime}
}

// EmbedFile reads name from fsys, normally an embed.FS, and serves it with
// Embed, guessing the mime type from the extension.
func EmbedFile[S any](path string, fsys fs.FS, name string) (Route[S], error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return Route[S]{}, fmt.Errorf("route %s: %w", path, err)
	}
	return Embed[S](path, content, kresponse.FromExtension(name)), nil
}

func (r Route[S]) Method() kheader.Method {
	return r.method
}

func (r Route[S]) Path() string {
	return r.path
}

func (r Route[S]) Kind() Kind {
	return r.kind
}

func (r Route[S]) String() string {
	return fmt.Sprintf("%s %s (%s)", r.method, r.path, r.kind)
}

// validate checks the pattern and resolver of the route.
func (r Route[S]) validate() error {
	if r.path != CatchAll {
		if !strings.HasPrefix(r.path, "/") {
			return fmt.Errorf("path must be %s or start with /", CatchAll)
		}
		if star := strings.IndexByte(r.path, '*'); star >= 0 && (star != len(r.path)-1 || !strings.HasSuffix(r.path, "/*")) {
			return fmt.Errorf("wildcard only allowed as the last element, like /path/*")
		}
	}

	switch r.kind {
	case KindStatic:
		if !fs.ValidPath(r.file) {
			return fmt.Errorf("invalid file path %q - must be relative, with no . or .. elements", r.file)
		}
	case KindRedirect:
		if r.target == "" {
			return fmt.Errorf("empty redirect target")
		}
	case KindFunction:
		if r.handler == nil {
			return fmt.Errorf("nil handler")
		}
	case KindEmbed:
	default:
		return fmt.Errorf("unknown route kind %s", r.kind)
	}
	return nil
}
