package ktls

import (
	"context"
	"crypto/tls"
	"errors"
	"os"

	"github.com/enfabrica/nucleus/lib/config/directory"
	"github.com/enfabrica/nucleus/lib/kflags"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

type AcmeFlags struct {
	Domains      []string
	Email        string
	CacheDir     string
	DirectoryURL string
}

func DefaultAcmeFlags() *AcmeFlags {
	return &AcmeFlags{}
}

func (fl *AcmeFlags) Register(set kflags.FlagSet, prefix string) *AcmeFlags {
	set.StringArrayVar(&fl.Domains, prefix+"acme-domain", fl.Domains,
		"Obtain a certificate for the domain from an ACME provider - can be repeated, enables TLS")
	set.StringVar(&fl.Email, prefix+"acme-email", fl.Email,
		"Contact email to register with the ACME provider")
	set.StringVar(&fl.CacheDir, prefix+"acme-cache-dir", fl.CacheDir,
		"Directory where to store ACME certificates and keys - defaults to a directory in the user config dir")
	set.StringVar(&fl.DirectoryURL, prefix+"acme-directory-url", fl.DirectoryURL,
		"URL of the ACME directory - defaults to Let's Encrypt production")
	return fl
}

func (fl *AcmeFlags) Enabled() bool {
	return fl != nil && len(fl.Domains) > 0
}

// FromAcmeFlags configures the certificates to be obtained via ACME.
func FromAcmeFlags(fl *AcmeFlags) Modifier {
	return func(c *tls.Config) error {
		var dir *directory.Directory
		if fl.CacheDir != "" {
			dir = directory.OpenDir(fl.CacheDir)
		} else {
			var err error
			dir, err = directory.OpenHomeDir("nucleus", "acme")
			if err != nil {
				return err
			}
		}

		manager := NewAutocertManager(NewDirectoryCache(dir), fl.Email, fl.DirectoryURL, fl.Domains...)
		return WithAutocert(manager)(c)
	}
}

// NewAutocertManager returns a manager obtaining certificates for the domains
// specified, and for no other domain.
//
// An empty directoryURL uses Let's Encrypt.
func NewAutocertManager(cache autocert.Cache, email, directoryURL string, domains ...string) *autocert.Manager {
	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      cache,
		Email:      email,
	}
	if directoryURL != "" {
		manager.Client = &acme.Client{DirectoryURL: directoryURL}
	}
	return manager
}

// WithAutocert uses the manager to obtain certificates, answering TLS-ALPN-01
// challenges in the handshake.
func WithAutocert(manager *autocert.Manager) Modifier {
	return func(c *tls.Config) error {
		if err := WithGetCertificate(manager.GetCertificate)(c); err != nil {
			return err
		}
		return WithALPNChallenge()(c)
	}
}

// DirectoryCache stores ACME certificates and account keys in a Directory.
type DirectoryCache struct {
	dir *directory.Directory
}

func NewDirectoryCache(dir *directory.Directory) *DirectoryCache {
	return &DirectoryCache{dir: dir}
}

func (dc *DirectoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := dc.dir.Read(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil, autocert.ErrCacheMiss
	}
	return data, err
}

func (dc *DirectoryCache) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return dc.dir.Write(key, data)
}

func (dc *DirectoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := dc.dir.Delete(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
