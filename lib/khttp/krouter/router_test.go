package krouter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/enfabrica/nucleus/lib/khttp/kheader"
	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
	"github.com/enfabrica/nucleus/lib/khttp/workpool"
	"github.com/enfabrica/nucleus/lib/logger"
	"github.com/enfabrica/nucleus/lib/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appState struct {
	greeting string
	views    *int64
}

func newRequest(t *testing.T, method, target, host string) *krequest.Request {
	t.Helper()
	req, err := krequest.Parse([]byte(fmt.Sprintf("%s %s HTTP/1.1\r\nHost: %s\r\n\r\n", method, target, host)))
	require.NoError(t, err)
	return req
}

func echo(name string) Handler[appState] {
	return func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
		return kresponse.Text(name + " " + req.Path()), nil
	}
}

func newRouter(t *testing.T, routes ...Route[appState]) (*Router[appState], *logger.Accumulator) {
	t.Helper()
	log := logger.NewAccumulator()
	views := int64(0)
	r, err := New(appState{greeting: "hi", views: &views}, WithLogger(log))
	require.NoError(t, err)
	require.NoError(t, r.AddRoutes(routes...))
	return r, log
}

func TestWildcardPrecedence(t *testing.T) {
	r, _ := newRouter(t,
		Get[appState]("/hi/*", echo("wildcard")),
		Get[appState]("/hi/there", echo("exact")),
		Get[appState]("/*", echo("root-wildcard")),
		Get[appState]("/a/b/*", echo("deep-wildcard")),
	)
	ctx := context.Background()

	for target, expected := range map[string]string{
		"/hi/there":         "exact /hi/there",
		"/hi/you":           "wildcard /hi/you",
		"/hi/anything/else": "wildcard /hi/anything/else",
		"/hi":               "root-wildcard /hi",
		"/a/b/c/d?x=1":      "deep-wildcard /a/b/c/d",
		"/a/c":              "root-wildcard /a/c",
	} {
		resp := r.Route(ctx, newRequest(t, "GET", target, "localhost"), nil)
		assert.Equal(t, kresponse.StatusOK, resp.Status(), "%s", target)
		assert.Equal(t, expected, string(resp.Body()), "%s", target)
	}

	// Routes are per method.
	resp := r.Route(ctx, newRequest(t, "POST", "/hi/there", "localhost"), nil)
	assert.Equal(t, kresponse.StatusNotFound, resp.Status())
}

func TestCatchAll(t *testing.T) {
	r, _ := newRouter(t, RedirectAll[appState]("/index.html"))
	ctx := context.Background()

	resp := r.Route(ctx, newRequest(t, "GET", "/", "localhost"), nil)
	assert.Equal(t, kresponse.StatusMovedPermanently, resp.Status())
	location, found := resp.Header("Location")
	assert.True(t, found)
	assert.Equal(t, "/index.html", location)

	// The catch all only applies to the root path.
	resp = r.Route(ctx, newRequest(t, "GET", "/index.html", "localhost"), nil)
	assert.Equal(t, kresponse.StatusNotFound, resp.Status())
}

func TestStaticFallback(t *testing.T) {
	site := testutil.NewFS(t, map[string][]byte{
		"index.html":      []byte("<h1>home</h1>"),
		"docs/index.html": []byte("<h1>docs</h1>"),
		"style.css":       []byte("h1 {}"),
		"secret.txt":      []byte("secret"),
		"broken.txt":      []byte("broken"),
	})
	site.Deny("secret.txt").Fail(errors.New("input/output error"), "broken.txt")
	other := testutil.NewFS(t, map[string][]byte{"index.html": []byte("other")})

	hosts, err := NewVirtualHosts(VirtualHost{Hostname: "Example.com.", Root: site})
	require.NoError(t, err)
	hosts.SetDefault(other)

	r, log := newRouter(t, GetStatic[appState]("/about", "docs/index.html"))
	ctx := context.Background()

	for _, tc := range []struct {
		target string
		host   string
		status kresponse.Status
		mime   kresponse.Mime
		body   string
	}{
		{"/", "example.com", kresponse.StatusOK, kresponse.HTML, "<h1>home</h1>"},
		{"/", "EXAMPLE.COM", kresponse.StatusOK, kresponse.HTML, "<h1>home</h1>"},
		{"/docs/", "example.com", kresponse.StatusOK, kresponse.HTML, "<h1>docs</h1>"},
		{"/about", "example.com", kresponse.StatusOK, kresponse.HTML, "<h1>docs</h1>"},
		{"/style.css", "example.com:8080", kresponse.StatusOK, kresponse.CSS, "h1 {}"},
		{"/missing.html", "example.com", kresponse.StatusNotFound, kresponse.PlainText, "404 not found"},
		{"/secret.txt", "example.com", kresponse.StatusForbidden, kresponse.PlainText, "403 forbidden"},
		{"/broken.txt", "example.com", kresponse.StatusNotFound, kresponse.PlainText, "404 not found"},
		{"/../index.html", "example.com", kresponse.StatusNotFound, kresponse.PlainText, "404 not found"},
		{"/", "unknown.org", kresponse.StatusOK, kresponse.HTML, "other"},
	} {
		resp := r.Route(ctx, newRequest(t, "GET", tc.target, tc.host), hosts)
		assert.Equal(t, tc.status, resp.Status(), "%s%s", tc.host, tc.target)
		assert.Equal(t, tc.mime, resp.Mime(), "%s%s", tc.host, tc.target)
		assert.Equal(t, tc.body, string(resp.Body()), "%s%s", tc.host, tc.target)
	}

	// The OS error is logged, never returned to the client.
	assert.True(t, log.Contains(logger.WarnPriority, "input/output error"))

	// Without any virtual host, there is nothing to serve.
	resp := r.Route(ctx, newRequest(t, "GET", "/index.html", "example.com"), nil)
	assert.Equal(t, kresponse.StatusNotFound, resp.Status())
}

func TestMissingFile(t *testing.T) {
	hosts, err := NewVirtualHosts(VirtualHost{Hostname: "localhost", Root: testutil.NewFS(t, map[string][]byte{"index.html": nil})})
	require.NoError(t, err)
	r, _ := newRouter(t)

	resp := r.Route(context.Background(), newRequest(t, "GET", "/missing.html", "localhost"), hosts)
	assert.Equal(t, kresponse.StatusNotFound, resp.Status())
	assert.Equal(t, kresponse.PlainText, resp.Mime())
}

func TestEmbedAndRedirect(t *testing.T) {
	site := testutil.NewFS(t, map[string][]byte{"favicon.ico": []byte{0, 1, 2}})
	favicon, err := EmbedFile[appState]("/favicon.ico", site, "favicon.ico")
	require.NoError(t, err)
	_, err = EmbedFile[appState]("/robots.txt", site, "robots.txt")
	assert.Error(t, err)

	r, _ := newRouter(t,
		favicon,
		Embed[appState]("/hello.json", []byte(`{"hello":"world"}`), kresponse.JSON),
		Redirect[appState]("/old", "https://example.com/new"),
	)
	ctx := context.Background()

	resp := r.Route(ctx, newRequest(t, "GET", "/favicon.ico", "localhost"), nil)
	assert.Equal(t, kresponse.StatusOK, resp.Status())
	assert.Equal(t, kresponse.Icon, resp.Mime())
	assert.Equal(t, []byte{0, 1, 2}, resp.Body())

	resp = r.Route(ctx, newRequest(t, "GET", "/hello.json", "localhost"), nil)
	assert.Equal(t, kresponse.JSON, resp.Mime())
	assert.Equal(t, `{"hello":"world"}`, string(resp.Body()))

	resp = r.Route(ctx, newRequest(t, "GET", "/old", "localhost"), nil)
	assert.Equal(t, kresponse.StatusMovedPermanently, resp.Status())
	location, _ := resp.Header("location")
	assert.Equal(t, "https://example.com/new", location)
}

func TestHandlerState(t *testing.T) {
	counter := func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
		views := atomic.AddInt64(state.views, 1)
		return kresponse.Text(fmt.Sprintf("%s %s, viewed: %d", state.greeting, req.Path(), views-1)), nil
	}
	r, _ := newRouter(t, Get[appState]("/state/*", counter))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp := r.Route(ctx, newRequest(t, "GET", "/state/test", "localhost"), nil)
		assert.Equal(t, fmt.Sprintf("hi /state/test, viewed: %d", i), string(resp.Body()))
	}

	r.WithStateFunc(func(state appState, req *krequest.Request) appState {
		state.greeting = "hello " + req.Host()
		return state
	})
	resp := r.Route(ctx, newRequest(t, "GET", "/state/test", "nucleus"), nil)
	assert.Equal(t, "hello nucleus /state/test, viewed: 3", string(resp.Body()))
}

func TestHandlerFailures(t *testing.T) {
	r, log := newRouter(t,
		Get[appState]("/fail", func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
			return nil, errors.New("database password is hunter2")
		}),
		Get[appState]("/denied", func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
			return nil, fmt.Errorf("checking: %w", kresponse.NewStatusError(kresponse.StatusUnauthorized, "login first", nil))
		}),
		Get[appState]("/panic", func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
			var m map[string]int
			m["boom"]++
			return nil, nil
		}),
		Get[appState]("/empty", func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
			return nil, nil
		}),
		Get[appState]("/typed-nil", func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
			var resp *kresponse.Response
			return resp, nil
		}),
	)
	ctx := context.Background()

	resp := r.Route(ctx, newRequest(t, "GET", "/fail", "localhost"), nil)
	assert.Equal(t, kresponse.StatusInternalServerError, resp.Status())
	assert.NotContains(t, string(resp.Body()), "hunter2")
	assert.True(t, log.Contains(logger.WarnPriority, "hunter2"))

	resp = r.Route(ctx, newRequest(t, "GET", "/denied", "localhost"), nil)
	assert.Equal(t, kresponse.StatusUnauthorized, resp.Status())
	assert.Equal(t, "login first", string(resp.Body()))

	resp = r.Route(ctx, newRequest(t, "GET", "/panic", "localhost"), nil)
	assert.Equal(t, kresponse.StatusInternalServerError, resp.Status())
	assert.True(t, log.Contains(logger.ErrorPriority, "panicked"))

	resp = r.Route(ctx, newRequest(t, "GET", "/empty", "localhost"), nil)
	assert.Equal(t, kresponse.StatusOK, resp.Status())
	assert.Empty(t, resp.Body())

	resp = r.Route(ctx, newRequest(t, "GET", "/typed-nil", "localhost"), nil)
	assert.Equal(t, kresponse.StatusInternalServerError, resp.Status())
}

func TestBlocking(t *testing.T) {
	pool, err := workpool.New(workpool.WithWorkers(2))
	require.NoError(t, err)
	defer pool.Done()

	views := int64(0)
	r, err := New(appState{views: &views}, WithWorkPool(pool))
	require.NoError(t, err)

	require.NoError(t, r.AddRoute(Post[appState]("/compute", func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
		atomic.AddInt64(state.views, 1)
		return kresponse.Text("done"), nil
	}, Blocking())))
	require.NoError(t, r.AddRoute(Get[appState]("/crash", func(ctx context.Context, state appState, req *krequest.Request) (kresponse.Into, error) {
		panic("blocking handler crashed")
	}, Blocking())))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := r.Route(context.Background(), newRequest(t, "POST", "/compute", "localhost"), nil)
			assert.Equal(t, "done", string(resp.Body()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), atomic.LoadInt64(&views))

	resp := r.Route(context.Background(), newRequest(t, "GET", "/crash", "localhost"), nil)
	assert.Equal(t, kresponse.StatusInternalServerError, resp.Status())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp = r.Route(ctx, newRequest(t, "POST", "/compute", "localhost"), nil)
	assert.Equal(t, kresponse.StatusInternalServerError, resp.Status())
}

func TestAddRoute(t *testing.T) {
	r, _ := newRouter(t)

	assert.NoError(t, r.AddRoute(Get[appState]("/hi/*", echo("a"))))
	assert.ErrorContains(t, r.AddRoute(Get[appState]("/hi/*", echo("b"))), "already registered")
	assert.NoError(t, r.AddRoute(Post[appState]("/hi/*", echo("b"))))

	for _, route := range []Route[appState]{
		Get("hi", echo("a")),
		Get[appState]("/hi/*/there", echo("a")),
		Get[appState]("/hi*", echo("a")),
		Get[appState]("/nil", nil),
		GetStatic[appState]("/etc", "../etc/passwd"),
		GetStatic[appState]("/abs", "/etc/passwd"),
		Redirect[appState]("/nowhere", ""),
	} {
		assert.Error(t, r.AddRoute(route), "%s", route)
	}

	route, found := r.Lookup(kheader.MethodPost, "/hi/there")
	assert.True(t, found)
	assert.Equal(t, "/hi/*", route.Path())
	assert.Equal(t, KindFunction, route.Kind())
	assert.Equal(t, "POST /hi/* (function)", route.String())

	_, found = r.Lookup(kheader.MethodGet, "*")
	assert.False(t, found)
}

func TestVirtualHosts(t *testing.T) {
	root := testutil.NewFS(t, map[string][]byte{"index.html": []byte("a")})
	hosts, err := NewVirtualHosts(
		VirtualHost{Hostname: "a.example.com", Root: root},
		VirtualHost{Hostname: "A.example.com.", Root: root},
		VirtualHost{Hostname: "b.example.com:8080", Root: root},
		VirtualHost{Hostname: "", Root: root},
		VirtualHost{Hostname: "c.example.com"},
	)
	assert.Error(t, err)
	assert.ErrorContains(t, err, "entry 1")
	assert.ErrorContains(t, err, "entry 3")
	assert.ErrorContains(t, err, "entry 4")

	list := hosts.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a.example.com", list[0].Hostname)
	assert.Equal(t, "b.example.com", list[1].Hostname)

	assert.NotNil(t, hosts.Root("B.EXAMPLE.COM"))
	assert.Nil(t, hosts.Root("c.example.com"))
	assert.Nil(t, hosts.Root("[::1"))

	var nilHosts *VirtualHosts
	assert.Nil(t, nilHosts.Root("a.example.com"))

	vh := NewVirtualHost("localhost", t.TempDir())
	assert.NoError(t, hosts.Add(vh))
	assert.NotNil(t, hosts.Root("localhost"))
}
