package ktls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/enfabrica/nucleus/lib/config/directory"
	"github.com/enfabrica/nucleus/lib/kflags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

func TestSelfSigned(t *testing.T) {
	_, _, err := SelfSigned()
	assert.Error(t, err)

	certPEM, keyPEM, err := SelfSigned("localhost", "127.0.0.1")
	require.NoError(t, err)

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost"}, cert.DNSNames)
	require.Len(t, cert.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", cert.IPAddresses[0].String())
	assert.NoError(t, cert.VerifyHostname("localhost"))

	config, err := NewConfig(WithCert(certPEM, keyPEM))
	require.NoError(t, err)
	assert.Len(t, config.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), config.MinVersion)
	assert.Equal(t, []string{"http/1.1"}, config.NextProtos)
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig()
	assert.Error(t, err)

	_, err = NewConfig(WithCert([]byte("invalid"), []byte("invalid")))
	assert.Error(t, err)

	certPEM, _, err := SelfSigned("localhost")
	require.NoError(t, err)
	config, err := NewConfig(WithSelfSigned("localhost"), WithClientCAPEM(certPEM))
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, config.ClientAuth)

	_, err = NewConfig(WithSelfSigned("localhost"), WithClientCAPEM([]byte("garbage")))
	assert.Error(t, err)
}

func TestFromFlags(t *testing.T) {
	flags := DefaultFlags()
	assert.False(t, flags.Enabled())

	flags.CertKey = []byte("key")
	assert.True(t, flags.Enabled())
	_, err := NewConfig(FromFlags(flags))
	var ue *kflags.UsageError
	assert.True(t, errors.As(err, &ue))

	certPEM, keyPEM, err := SelfSigned("localhost")
	require.NoError(t, err)
	flags.CertData, flags.CertKey = certPEM, keyPEM
	config, err := NewConfig(FromFlags(flags))
	require.NoError(t, err)
	assert.Len(t, config.Certificates, 1)

	flags.SelfSigned = []string{"localhost"}
	_, err = NewConfig(FromFlags(flags))
	assert.True(t, errors.As(err, &ue))

	flags.CertData, flags.CertKey = nil, nil
	config, err = NewConfig(FromFlags(flags))
	require.NoError(t, err)
	assert.Len(t, config.Certificates, 1)

	flags.SelfSigned = nil
	flags.Acme.Domains = []string{"example.com"}
	flags.Acme.CacheDir = t.TempDir()
	assert.True(t, flags.Enabled())
	config, err = NewConfig(FromFlags(flags))
	require.NoError(t, err)
	assert.NotNil(t, config.GetCertificate)
	assert.Equal(t, []string{"http/1.1", acme.ALPNProto}, config.NextProtos)
}

func TestAutocert(t *testing.T) {
	cache := NewDirectoryCache(directory.OpenDir(t.TempDir()))
	manager := NewAutocertManager(cache, "admin@example.com", "https://acme.invalid/directory", "example.com")
	assert.Equal(t, "https://acme.invalid/directory", manager.Client.DirectoryURL)

	ctx := context.Background()
	assert.NoError(t, manager.HostPolicy(ctx, "example.com"))
	assert.Error(t, manager.HostPolicy(ctx, "other.com"))

	config, err := NewConfig(WithAutocert(manager), WithALPNChallenge())
	require.NoError(t, err)
	assert.Equal(t, []string{"http/1.1", acme.ALPNProto}, config.NextProtos)
}

func TestDirectoryCache(t *testing.T) {
	cache := NewDirectoryCache(directory.OpenDir(t.TempDir(), "acme"))
	ctx := context.Background()

	_, err := cache.Get(ctx, "example.com")
	assert.ErrorIs(t, err, autocert.ErrCacheMiss)

	require.NoError(t, cache.Put(ctx, "example.com", []byte("certificate")))
	data, err := cache.Get(ctx, "example.com")
	assert.NoError(t, err)
	assert.Equal(t, []byte("certificate"), data)

	assert.NoError(t, cache.Delete(ctx, "example.com"))
	assert.NoError(t, cache.Delete(ctx, "example.com"))
	_, err = cache.Get(ctx, "example.com")
	assert.ErrorIs(t, err, autocert.ErrCacheMiss)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, cache.Put(canceled, "example.com", nil), context.Canceled)
}
