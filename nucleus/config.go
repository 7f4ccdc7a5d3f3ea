package main

import (
	"embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/enfabrica/nucleus/lib/config/marshal"
	"github.com/enfabrica/nucleus/lib/khttp/kassets"
	"github.com/enfabrica/nucleus/lib/khttp/krouter"
	"github.com/enfabrica/nucleus/lib/multierror"
	"github.com/mitchellh/go-homedir"
)

//go:embed defaults
var defaults embed.FS

// Host maps a hostname to the directory its files are served from.
type Host struct {
	Hostname string
	Root     string
}

// Config describes what nucleus serves, beyond the built in routes.
type Config struct {
	// Directory served for hostnames not listed in Hosts.
	Root string
	// Virtual hosts.
	Hosts []Host
	// Path -> target, returned as a 301.
	Redirects map[string]string
	// Path -> file, read from the root of the virtual host of the request.
	Statics map[string]string
}

// DefaultConfig returns the configuration compiled in the binary.
func DefaultConfig() (*Config, error) {
	assets, err := kassets.MapFromFS(kassets.MustEmbedSubdir(defaults, "defaults"))
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := marshal.UnmarshalAsset("nucleus", assets, config); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	return config, nil
}

// LoadConfig decodes a configuration file, in the format matching the
// extension of its name.
//
// Relative directories in the configuration are relative to the directory
// of the file.
func LoadConfig(name string, data []byte) (*Config, error) {
	config := &Config{}
	err := marshal.Unmarshal(name, data, config)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(name)
	var errs []error
	config.Root, err = resolve(base, config.Root)
	errs = append(errs, err)
	for i := range config.Hosts {
		config.Hosts[i].Root, err = resolve(base, config.Hosts[i].Root)
		errs = append(errs, err)
	}
	return config, multierror.New(errs)
}

// resolve expands ~ to the home directory, and makes dir relative to base.
func resolve(base, dir string) (string, error) {
	dir, err := homedir.Expand(dir)
	if err != nil {
		return "", err
	}
	if dir == "" || filepath.IsAbs(dir) {
		return dir, nil
	}
	return filepath.Join(base, dir), nil
}

// VirtualHosts returns the table of virtual hosts to serve.
func (c *Config) VirtualHosts() (*krouter.VirtualHosts, error) {
	hosts, err := krouter.NewVirtualHosts()
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, host := range c.Hosts {
		if host.Root == "" {
			errs = append(errs, fmt.Errorf("host %q: no root directory", host.Hostname))
			continue
		}
		if err := hosts.Add(krouter.VirtualHost{Hostname: host.Hostname, Root: os.DirFS(host.Root)}); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Root != "" {
		hosts.SetDefault(os.DirFS(c.Root))
	}
	return hosts, multierror.New(errs)
}

// AddRoutes adds the redirects and the static files to router.
func AddRoutes[S any](c *Config, router *krouter.Router[S]) error {
	var errs []error
	for _, path := range slices.Sorted(maps.Keys(c.Redirects)) {
		target := c.Redirects[path]
		if err := router.AddRoute(krouter.Redirect[S](path, target)); err != nil {
			errs = append(errs, fmt.Errorf("redirect %s: %w", path, err))
		}
	}
	for _, path := range slices.Sorted(maps.Keys(c.Statics)) {
		file := c.Statics[path]
		if err := router.AddRoute(krouter.GetStatic[S](path, file)); err != nil {
			errs = append(errs, fmt.Errorf("static %s: %w", path, err))
		}
	}
	return multierror.New(errs)
}
