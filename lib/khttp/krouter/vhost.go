package krouter

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/enfabrica/nucleus/lib/khttp"
	"github.com/enfabrica/nucleus/lib/multierror"
)

// VirtualHost maps a hostname to the root of the files served for it.
type VirtualHost struct {
	// Hostname the client has to request in the Host header.
	//
	// Matching is case insensitive. Hostnames with a period appended are
	// considered equivalent to hostnames without. A port, if specified, is ignored,
	// as the request Host is always stripped of the port.
	Hostname string

	// Root is the directory static files are read from.
	Root fs.FS
}

// NewVirtualHost returns a VirtualHost serving the files in the root directory.
func NewVirtualHost(hostname, root string) VirtualHost {
	return VirtualHost{Hostname: hostname, Root: os.DirFS(root)}
}

// VirtualHosts is the table of virtual hosts known to a server.
//
// Safe for concurrent use. Normally populated before starting the server,
// and only read afterward.
type VirtualHosts struct {
	lock  sync.RWMutex
	hosts map[string]VirtualHost
	def   fs.FS
}

// NewVirtualHosts creates a table from a list of hosts.
//
// All the hosts are validated, the returned error lists every invalid or
// duplicated entry. The returned table is always usable, and contains all
// the valid entries.
func NewVirtualHosts(hosts ...VirtualHost) (*VirtualHosts, error) {
	vh := &VirtualHosts{hosts: map[string]VirtualHost{}}

	var errs []error
	for ix, host := range hosts {
		if err := vh.Add(host); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", ix, err))
		}
	}
	return vh, multierror.New(errs)
}

func normalizeHostname(hostname string) (string, error) {
	host, _, err := khttp.SplitHostPort(hostname)
	if err != nil {
		return "", err
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return "", fmt.Errorf("empty hostname in %q", hostname)
	}
	return host, nil
}

// Add registers a new virtual host.
func (vh *VirtualHosts) Add(host VirtualHost) error {
	name, err := normalizeHostname(host.Hostname)
	if err != nil {
		return fmt.Errorf("host %s: %w", host.Hostname, err)
	}
	if host.Root == nil {
		return fmt.Errorf("host %s: no root directory", host.Hostname)
	}

	vh.lock.Lock()
	defer vh.lock.Unlock()
	if vh.hosts == nil {
		vh.hosts = map[string]VirtualHost{}
	}
	if _, found := vh.hosts[name]; found {
		return fmt.Errorf("host %s: already mapped", host.Hostname)
	}
	vh.hosts[name] = VirtualHost{Hostname: name, Root: host.Root}
	return nil
}

// SetDefault configures the root used for requests not matching any host.
// A nil root means that those requests get a 404, unless a route matches.
func (vh *VirtualHosts) SetDefault(root fs.FS) {
	vh.lock.Lock()
	defer vh.lock.Unlock()
	vh.def = root
}

// Root returns the root directory to use for the specified host, falling
// back to the default root. Returns nil if there is none.
func (vh *VirtualHosts) Root(hostname string) fs.FS {
	if vh == nil {
		return nil
	}

	name, err := normalizeHostname(hostname)
	vh.lock.RLock()
	defer vh.lock.RUnlock()
	if err == nil {
		if host, found := vh.hosts[name]; found {
			return host.Root
		}
	}
	return vh.def
}

// List returns the configured hosts, sorted by hostname.
func (vh *VirtualHosts) List() []VirtualHost {
	vh.lock.RLock()
	defer vh.lock.RUnlock()

	result := make([]VirtualHost, 0, len(vh.hosts))
	for _, host := range vh.hosts {
		result = append(result, host)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Hostname < result[j].Hostname
	})
	return result
}
