package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/enfabrica/nucleus/lib/khttp/kcookie"
	"github.com/enfabrica/nucleus/lib/khttp/kform"
	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
	"github.com/enfabrica/nucleus/lib/khttp/krouter"
)

const visitorCookie = "visitor"

type names struct {
	lock  sync.RWMutex
	first string
	last  string
}

func (n *names) Set(first, last string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.first, n.last = first, last
}

func (n *names) Get() (string, string) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return n.first, n.last
}

// appState is passed by value to every handler. Anything mutable is
// behind a pointer, and safe for concurrent use.
type appState struct {
	greeting string
	bye      string

	views   *atomic.Int64
	names   *names
	visitor *kcookie.Signer
}

func newState(signer *kcookie.Signer) appState {
	return appState{
		greeting: "Hi",
		bye:      "bye",
		views:    &atomic.Int64{},
		names:    &names{},
		visitor:  signer,
	}
}

// Routes returns the routes served by nucleus, in addition to the
// assets and the routes from the configuration.
func Routes() []krouter.Route[appState] {
	return []krouter.Route[appState]{
		krouter.Get[appState]("/hello", hello),
		krouter.Get[appState]("/hi/*", hi),
		krouter.Get[appState]("/state/*", greet),
		krouter.Post[appState]("/handle_form", handleForm),
		krouter.Get[appState]("/success", success),
		krouter.Post[appState]("/multipart_form", upload, krouter.Blocking()),
		krouter.Get[appState]("/visit", visit),
		krouter.Get[appState]("/forget", forget),
	}
}

func hello(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
	return kresponse.Text("Hello from nucleus"), nil
}

func hi(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
	return kresponse.Text("Hello from URL: " + req.Path()), nil
}

func greet(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
	views := state.views.Add(1) - 1
	return kresponse.Text(fmt.Sprintf("%s %s and %s, viewed: %d", state.greeting, req.Path(), state.bye, views)), nil
}

func handleForm(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
	form := req.Form()
	if form.Kind != kform.URLEncoded {
		return nil, kresponse.NewStatusError(kresponse.StatusBadRequest, "expected an url encoded form", nil)
	}
	state.names.Set(form.URLEncoded["fname"], form.URLEncoded["lname"])
	return kresponse.Redirect(kresponse.StatusFound, "/success"), nil
}

func success(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
	first, last := state.names.Get()
	return kresponse.Text(fmt.Sprintf("Hello %s %s", first, last)), nil
}

func upload(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
	form := req.Form()
	if form.Kind != kform.Multipart {
		return nil, kresponse.NewStatusError(kresponse.StatusBadRequest, "expected a multipart form", nil)
	}
	entry, found := form.Multipart["cover_image"]
	if !found || entry.FileName == "" {
		return nil, kresponse.NewStatusError(kresponse.StatusBadRequest, "no cover_image file uploaded", nil)
	}
	return kresponse.Text(fmt.Sprintf("Got file: %s (%s)", entry.FileName, humanize.Bytes(uint64(len(entry.Value))))), nil
}

func visit(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
	id, err := state.visitor.FromRequest(req, visitorCookie)
	if err == nil {
		return kresponse.Text("Welcome back, visitor " + id), nil
	}

	// Missing, expired or tampered with: a new visitor.
	id = uuid.NewString()
	cookie, err := state.visitor.New(visitorCookie, id)
	if err != nil {
		return nil, err
	}
	return kresponse.Text("Hello, new visitor "+id).IntoResponse().AddHeader(cookie), nil
}

func forget(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
	return kresponse.Redirect(kresponse.StatusFound, "/visit").AddHeader(kcookie.New(visitorCookie, "").Delete()), nil
}
