package directory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDir(t *testing.T) {
	hd := OpenDir(t.TempDir(), "acme")

	confs, err := hd.List()
	assert.NoError(t, err)
	assert.Equal(t, 0, len(confs))

	data, err := hd.Read("test")
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, 0, len(data))

	quote := []byte("the burden of proof has to be placed on authority, and that it should be dismantled if that burden cannot be met")
	require.NoError(t, hd.Write("test", quote))

	data, err = hd.Read("test")
	assert.NoError(t, err)
	assert.Equal(t, quote, data)

	require.NoError(t, hd.Write("test", []byte("replaced")))
	data, err = hd.Read("test")
	assert.NoError(t, err)
	assert.Equal(t, []byte("replaced"), data)

	confs, err = hd.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"test"}, confs)

	assert.NoError(t, hd.Delete("test"))
	confs, err = hd.List()
	assert.NoError(t, err)
	assert.Equal(t, 0, len(confs))
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir("nucleus", "acme")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.Equal(t, filepath.Join("nucleus", "acme"), filepath.Join(filepath.Base(filepath.Dir(dir)), filepath.Base(dir)))
}
