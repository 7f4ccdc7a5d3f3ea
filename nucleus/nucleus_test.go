package main

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/enfabrica/nucleus/lib/knetwork"
	"github.com/enfabrica/nucleus/lib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type tester struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (ts *tester) do(req *http.Request) (*http.Response, string) {
	ts.t.Helper()
	resp, err := ts.client.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp, string(body)
}

func (ts *tester) get(path string, headers ...string) (*http.Response, string) {
	ts.t.Helper()
	req, err := http.NewRequest("GET", ts.base+path, nil)
	require.NoError(ts.t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return ts.do(req)
}

func (ts *tester) post(path, ctype string, body []byte) (*http.Response, string) {
	ts.t.Helper()
	req, err := http.NewRequest("POST", ts.base+path, bytes.NewReader(body))
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", ctype)
	return ts.do(req)
}

func TestNucleus(t *testing.T) {
	defer goleak.VerifyNone(t)

	flags := DefaultFlags()
	flags.CookieKeyFile = filepath.Join(t.TempDir(), "cookie.key")
	log := logger.NewAccumulator()
	n, err := New(log, flags)
	require.NoError(t, err)
	defer n.Close()
	assert.False(t, n.TLS())

	port, err := knetwork.AllocatePort()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- n.Serve(ctx, port)
	}()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	transport := &http.Transport{}
	defer transport.CloseIdleConnections()
	ts := &tester{
		t:    t,
		base: "http://" + port.Addr().String(),
		client: &http.Client{
			Transport: transport,
			Timeout:   5 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	resp, body := ts.get("/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<h1>nucleus</h1>")
	_, embedded := ts.get(AssetsPrefix + "/")
	assert.Equal(t, body, embedded)

	resp, body = ts.get("/forms")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "/handle_form")

	resp, _ = ts.get("/home")
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp, _ = ts.get("/missing.html")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))

	_, body = ts.get("/hi/there")
	assert.Equal(t, "Hello from URL: /hi/there", body)
	_, body = ts.get("/state/one")
	assert.Equal(t, "Hi /state/one and bye, viewed: 0", body)
	_, body = ts.get("/state/two")
	assert.Equal(t, "Hi /state/two and bye, viewed: 1", body)

	form := url.Values{"fname": {"Ada"}, "lname": {"Lovelace"}}
	resp, _ = ts.post("/handle_form", "application/x-www-form-urlencoded", []byte(form.Encode()))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/success", resp.Header.Get("Location"))
	_, body = ts.get("/success")
	assert.Equal(t, "Hello Ada Lovelace", body)

	var upload bytes.Buffer
	writer := multipart.NewWriter(&upload)
	part, err := writer.CreateFormFile("cover_image", "cover.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	resp, body = ts.post("/multipart_form", writer.FormDataContentType(), upload.Bytes())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Got file: cover.png (3 B)", body)

	resp, _ = ts.post("/multipart_form", "application/x-www-form-urlencoded", []byte("a=b"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVisitorCookie(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, err := New(logger.Nil, DefaultFlags())
	require.NoError(t, err)
	defer n.Close()

	port, err := knetwork.AllocatePort()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- n.Serve(ctx, port)
	}()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	transport := &http.Transport{}
	defer transport.CloseIdleConnections()
	ts := &tester{t: t, base: "http://" + port.Addr().String(), client: &http.Client{Transport: transport, Timeout: 5 * time.Second}}

	resp, body := ts.get("/visit")
	require.True(t, strings.HasPrefix(body, "Hello, new visitor "), "%s", body)
	id := strings.TrimPrefix(body, "Hello, new visitor ")
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, visitorCookie, cookies[0].Name)
	// Without TLS, the cookie cannot be Secure.
	assert.False(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)

	_, body = ts.get("/visit", "Cookie", visitorCookie+"="+cookies[0].Value)
	assert.Equal(t, "Welcome back, visitor "+id, body)

	// A cookie that was tampered with is ignored.
	_, body = ts.get("/visit", "Cookie", visitorCookie+"=x"+cookies[0].Value)
	assert.True(t, strings.HasPrefix(body, "Hello, new visitor "), "%s", body)
}
