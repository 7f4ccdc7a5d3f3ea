package kassets

import (
	"context"
	"embed"
	"fmt"
	"testing"

	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
	"github.com/enfabrica/nucleus/lib/khttp/krouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/*
var testdataFS embed.FS

func TestMapFromFS(t *testing.T) {
	subdir, err := EmbedSubdir(testdataFS, "testdata")
	require.NoError(t, err)
	assetMap, err := MapFromFS(subdir)
	require.NoError(t, err)

	names := []string{}
	for name := range assetMap {
		names = append(names, name)
	}
	assert.ElementsMatch(t, names, []string{"css/site.css", "heroes.txt", "index.html"})
	assert.Equal(t, "heroes\n", string(assetMap["heroes.txt"]))

	assert.Panics(t, func() {
		MustEmbedSubdir(testdataFS, "../invalid")
	})
}

func TestMappers(t *testing.T) {
	assert.Equal(t, []string{"/index.html", "/"}, BasicMapper("/index.html"))
	assert.Equal(t, []string{"/docs/index.html", "/docs/"}, BasicMapper("/docs/index.html"))
	assert.Equal(t, []string{"/site.css"}, BasicMapper("/site.css"))

	prefixed := PrefixMapper("static", BasicMapper)
	assert.Equal(t, []string{"/static/index.html", "/static/"}, prefixed("/index.html"))
}

func TestRegister(t *testing.T) {
	router, err := krouter.New(struct{}{})
	require.NoError(t, err)

	assets := loadTestdata(t)
	assets["empty.txt"] = nil

	stats := &AssetStats{}
	require.NoError(t, Register(router, stats, assets, BasicMapper))
	assert.Len(t, stats.Mapped, 3)
	assert.Len(t, stats.Skipped, 1)
	assert.Equal(t, uint64(len("heroes\n")+len(assets["index.html"])+len(assets["css/site.css"])), stats.Total)

	lines := []string{}
	stats.Log(func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	assert.Contains(t, lines, "    - re-mapped as /")

	for path, expected := range map[string]kresponse.Mime{
		"/":             kresponse.HTML,
		"/index.html":   kresponse.HTML,
		"/css/site.css": kresponse.CSS,
		"/heroes.txt":   kresponse.PlainText,
	} {
		req, err := krequest.Parse([]byte("GET " + path + " HTTP/1.1\r\nHost: localhost\r\n\r\n"))
		require.NoError(t, err)
		resp := router.Route(context.Background(), req, nil)
		assert.Equal(t, kresponse.StatusOK, resp.Status(), "%s", path)
		assert.Equal(t, expected, resp.Mime(), "%s", path)
	}

	// Registering the same assets twice fails on the first duplicate.
	assert.Error(t, Register(router, nil, assets, BasicMapper))
}

func loadTestdata(t *testing.T) map[string][]byte {
	assets, err := MapFromFS(MustEmbedSubdir(testdataFS, "testdata"))
	require.NoError(t, err)
	return assets
}
