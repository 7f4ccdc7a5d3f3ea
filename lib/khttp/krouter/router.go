// Package krouter maps requests to handlers, redirects, embedded assets or
// files of a virtual host.
//
// For a request, the first match wins, in this order:
//
//  1. a route registered for the exact method and path,
//  2. a wildcard route registered on an ancestor of the path, most specific
//     first: /a/b/c is matched by /a/b/*, then /a/*, then /*,
//  3. for the root path only, the catch all route *,
//  4. a file in the root of the virtual host, index.html for directories,
//  5. a 404 response.
//
// Routing never fails: every error is turned into a response.
package krouter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/enfabrica/nucleus/lib/khttp/kheader"
	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
	"github.com/enfabrica/nucleus/lib/khttp/workpool"
	"github.com/enfabrica/nucleus/lib/logger"
)

// StateFunc derives the state passed to a handler from the state of the Router.
type StateFunc[S any] func(state S, req *krequest.Request) S

// Router holds the route table and the state shared by all handlers.
//
// S is passed by value to each handler: use pointers, maps or channels within
// S to share mutable data, protected by your own locks.
type Router[S any] struct {
	log  logger.Logger
	pool *workpool.WorkPool

	state     S
	stateFunc StateFunc[S]

	lock   sync.RWMutex
	routes map[kheader.Method]map[string]Route[S]
}

type options struct {
	log  logger.Logger
	pool *workpool.WorkPool
}

type Modifier func(*options) error

type Modifiers []Modifier

func (mods Modifiers) Apply(o *options) error {
	for _, m := range mods {
		if err := m(o); err != nil {
			return err
		}
	}
	return nil
}

func WithLogger(log logger.Logger) Modifier {
	return func(o *options) error {
		o.log = log
		return nil
	}
}

// WithWorkPool configures the pool used to run Blocking routes.
//
// Without a pool, Blocking routes run in the goroutine serving the connection.
func WithWorkPool(pool *workpool.WorkPool) Modifier {
	return func(o *options) error {
		o.pool = pool
		return nil
	}
}

func New[S any](state S, mods ...Modifier) (*Router[S], error) {
	o := options{log: logger.Nil}
	if err := Modifiers(mods).Apply(&o); err != nil {
		return nil, err
	}

	return &Router[S]{
		log:    o.log,
		pool:   o.pool,
		state:  state,
		routes: map[kheader.Method]map[string]Route[S]{},
	}, nil
}

// WithStateFunc configures a function invoked to derive the state of each
// request. Must be called before the router starts serving requests.
func (r *Router[S]) WithStateFunc(fn StateFunc[S]) *Router[S] {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.stateFunc = fn
	return r
}

// AddRoute registers a route.
//
// An error is returned if the route is invalid, or if another route was
// already registered with the same method and pattern.
func (r *Router[S]) AddRoute(route Route[S]) error {
	if err := route.validate(); err != nil {
		return fmt.Errorf("route %s: %w", route, err)
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	table := r.routes[route.method]
	if table == nil {
		table = map[string]Route[S]{}
		r.routes[route.method] = table
	}
	if _, found := table[route.path]; found {
		return fmt.Errorf("route %s: already registered", route)
	}
	table[route.path] = route
	return nil
}

// AddRoutes registers multiple routes, stopping at the first error.
func (r *Router[S]) AddRoutes(routes ...Route[S]) error {
	for _, route := range routes {
		if err := r.AddRoute(route); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the route matching method and path, if any.
func (r *Router[S]) Lookup(method kheader.Method, upath string) (Route[S], bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	table := r.routes[method]
	if route, found := table[upath]; found {
		return route, true
	}
	if upath == "/" {
		route, found := table[CatchAll]
		return route, found
	}
	if !strings.HasPrefix(upath, "/") {
		return Route[S]{}, false
	}

	for dir := path.Dir(upath); ; dir = path.Dir(dir) {
		pattern := dir + "/*"
		if dir == "/" {
			pattern = "/*"
		}
		if route, found := table[pattern]; found {
			return route, true
		}
		if dir == "/" {
			return Route[S]{}, false
		}
	}
}

// Route computes the response for a request.
//
// hosts is used to find the root directory for static files, and may be nil.
func (r *Router[S]) Route(ctx context.Context, req *krequest.Request, hosts *VirtualHosts) *kresponse.Response {
	route, found := r.Lookup(req.Method(), req.Path())
	if !found {
		name, ok := strings.CutPrefix(req.Path(), "/")
		if !ok {
			r.log.Debugf("%s: path does not start with /", req)
			return kresponse.NotFound()
		}
		return r.serveFile(req, hosts.Root(req.Host()), name)
	}

	switch route.kind {
	case KindStatic:
		return r.serveFile(req, hosts.Root(req.Host()), route.file)
	case KindRedirect:
		return kresponse.Redirect(kresponse.StatusMovedPermanently, route.target)
	case KindEmbed:
		return kresponse.New(kresponse.StatusOK, route.embed, route.mime)
	case KindFunction:
		return r.call(ctx, route, req)
	}
	r.log.Errorf("%s: route %s has unknown kind", req, route)
	return kresponse.InternalError()
}

// serveFile reads name, relative to the root of a virtual host.
func (r *Router[S]) serveFile(req *krequest.Request, root fs.FS, name string) *kresponse.Response {
	if root == nil {
		r.log.Debugf("%s: no route and no root directory for host", req)
		return kresponse.NotFound()
	}
	if name == "" || strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	if !fs.ValidPath(name) {
		r.log.Infof("%s: rejected invalid path %q", req, name)
		return kresponse.NotFound()
	}

	content, err := fs.ReadFile(root, name)
	switch {
	case err == nil:
		return kresponse.New(kresponse.StatusOK, content, kresponse.FromExtension(name))
	case errors.Is(err, fs.ErrNotExist):
		r.log.Debugf("%s: %s", req, err)
		return kresponse.NotFound()
	case errors.Is(err, fs.ErrPermission):
		r.log.Infof("%s: %s", req, err)
		return kresponse.Forbidden()
	}
	r.log.Warnf("%s: reading %s failed: %s", req, name, err)
	return kresponse.NotFound()
}

func (r *Router[S]) call(ctx context.Context, route Route[S], req *krequest.Request) *kresponse.Response {
	r.lock.RLock()
	state, stateFunc := r.state, r.stateFunc
	r.lock.RUnlock()

	invoke := func() (resp *kresponse.Response, err error) {
		defer func() {
			if v := recover(); v != nil {
				err = &workpool.PanicError{Value: v}
			}
		}()

		if stateFunc != nil {
			state = stateFunc(state, req)
		}
		into, err := route.handler(ctx, state, req)
		if err != nil {
			return nil, err
		}
		if into == nil {
			return kresponse.New(kresponse.StatusOK, []byte{}, kresponse.PlainText), nil
		}
		return into.IntoResponse(), nil
	}

	var resp *kresponse.Response
	var err error
	if route.blocking && r.pool != nil {
		resp, err = workpool.Call(ctx, r.pool, invoke)
	} else {
		resp, err = invoke()
	}

	if err != nil {
		var perr *workpool.PanicError
		if errors.As(err, &perr) {
			r.log.Errorf("%s: handler for %s panicked: %v", req, route, perr.Value)
			return kresponse.InternalError()
		}

		r.log.Warnf("%s: handler for %s failed: %s", req, route, err)
		var into kresponse.Into
		if errors.As(err, &into) {
			if resp := into.IntoResponse(); resp != nil {
				return resp
			}
		}
		return kresponse.InternalError()
	}
	if resp == nil {
		r.log.Errorf("%s: handler for %s returned a nil response", req, route)
		return kresponse.InternalError()
	}
	return resp
}
