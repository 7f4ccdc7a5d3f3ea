package kcobra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/enfabrica/nucleus/lib/kflags"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulateFromEnv(t *testing.T) {
	set := pflag.NewFlagSet("nucleus", pflag.ContinueOnError)
	fs := &FlagSet{FlagSet: set}

	var _ kflags.FlagSet = fs

	address := ":8080"
	timeout := time.Second
	connections := 0
	fs.StringVar(&address, "http-address", address, "address")
	fs.DurationVar(&timeout, "http-read-timeout", timeout, "timeout")
	fs.IntVar(&connections, "max-connections", connections, "connections")

	assert.NoError(t, set.Parse([]string{"--max-connections", "5"}))

	env := map[string]string{
		"NUCLEUS_HTTP_ADDRESS":      "127.0.0.1:9000",
		"NUCLEUS_HTTP_READ_TIMEOUT": "3s",
		"NUCLEUS_MAX_CONNECTIONS":   "100",
	}
	getenv := func(name string) (string, bool) {
		value, found := env[name]
		return value, found
	}
	assert.NoError(t, PopulateFromEnv(set, "nucleus", getenv))
	assert.Equal(t, "127.0.0.1:9000", address)
	assert.Equal(t, 3*time.Second, timeout)
	// Set on the command line, the environment does not override it.
	assert.Equal(t, 5, connections)

	env["NUCLEUS_HTTP_READ_TIMEOUT"] = "forever"
	set = pflag.NewFlagSet("nucleus", pflag.ContinueOnError)
	set.DurationVar(&timeout, "http-read-timeout", timeout, "timeout")
	err := PopulateFromEnv(set, "nucleus", getenv)
	var ue *kflags.UsageError
	assert.True(t, errors.As(err, &ue))
}

func TestWithEnvFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.env")
	second := filepath.Join(dir, "second.env")
	require.NoError(t, os.WriteFile(first, []byte("NUCLEUS_ROOT=/srv/first\n"), 0600))
	require.NoError(t, os.WriteFile(second, []byte("# defaults\nNUCLEUS_ROOT=/srv/second\nNUCLEUS_HTTP_ADDRESS=:9000\nNUCLEUS_CONFIG=sites.toml\n"), 0600))

	env := map[string]string{"NUCLEUS_CONFIG": "from-env.toml"}
	o := options{getenv: func(name string) (string, bool) {
		value, found := env[name]
		return value, found
	}}
	cmd := &cobra.Command{}
	require.NoError(t, WithEnvFiles(first, filepath.Join(dir, "missing.env"), second)(cmd, &o))

	for name, expected := range map[string]string{
		"NUCLEUS_ROOT":         "/srv/first",
		"NUCLEUS_HTTP_ADDRESS": ":9000",
		"NUCLEUS_CONFIG":       "from-env.toml",
	} {
		value, found := o.getenv(name)
		assert.True(t, found, "%s", name)
		assert.Equal(t, expected, value, "%s", name)
	}
	_, found := o.getenv("NUCLEUS_UNKNOWN")
	assert.False(t, found)

	broken := filepath.Join(dir, "broken.env")
	require.NoError(t, os.WriteFile(broken, []byte("NUCLEUS_ROOT='unterminated\n"), 0600))
	err := WithEnvFiles(broken)(cmd, &o)
	var ue *kflags.UsageError
	assert.True(t, errors.As(err, &ue), "%v", err)
}
