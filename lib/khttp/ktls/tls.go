// Package ktls provides modifiers to create the tls.Config used by a server.
//
// Certificates can be loaded from files, generated on the fly for
// development, or obtained from an ACME provider like Let's Encrypt using
// the TLS-ALPN-01 challenge, which is answered on the same port as the
// rest of the traffic.
//
// For example, to serve a certificate from files, you can invoke:
//
//	tlsConfig, err := ktls.NewConfig(ktls.WithCertFile("/etc/site.crt", "/etc/site.key"))
package ktls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/enfabrica/nucleus/lib/kflags"
	"golang.org/x/crypto/acme"
)

type Modifier func(c *tls.Config) error

type Modifiers []Modifier

// Apply applies the set of modifiers to the specified config.
func (mods Modifiers) Apply(c *tls.Config) error {
	for _, m := range mods {
		if err := m(c); err != nil {
			return err
		}
	}
	return nil
}

// NewConfig creates a new tls config with the specified modifiers.
//
// The config requires at least TLS 1.2, and advertises http/1.1 with ALPN.
func NewConfig(mods ...Modifier) (*tls.Config, error) {
	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
		NextProtos: []string{"http/1.1"},
	}
	if err := Modifiers(mods).Apply(config); err != nil {
		return nil, err
	}
	if len(config.Certificates) == 0 && config.GetCertificate == nil {
		return nil, fmt.Errorf("no certificate configured")
	}
	return config, nil
}

type Flags struct {
	CertData []byte
	CertKey  []byte
	ClientCA []byte

	SelfSigned []string

	Acme *AcmeFlags
}

func DefaultFlags() *Flags {
	return &Flags{Acme: DefaultAcmeFlags()}
}

func (fl *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.ByteFileVar(&fl.CertData, prefix+"tls-cert-data", "",
		"Path to a PEM certificate (.crt) - presented to clients, enables TLS")
	set.ByteFileVar(&fl.CertKey, prefix+"tls-cert-key", "",
		"Path to a PEM certificate key (.key) - key to the certificate presented with --tls-cert-data")
	set.ByteFileVar(&fl.ClientCA, prefix+"tls-client-ca", "",
		"Path to a PEM encoded CA - if set, clients must present a certificate signed by this CA")
	set.StringArrayVar(&fl.SelfSigned, prefix+"tls-self-signed", fl.SelfSigned,
		"Generate a self signed certificate valid for the hostnames or IPs specified - for development only")
	fl.Acme.Register(set, prefix)
	return fl
}

// Enabled returns true if the flags configure a certificate, and TLS
// should be used.
func (fl *Flags) Enabled() bool {
	return fl != nil && (len(fl.CertData) > 0 || len(fl.CertKey) > 0 || len(fl.SelfSigned) > 0 || fl.Acme.Enabled())
}

func FromFlags(fl *Flags) Modifier {
	return func(c *tls.Config) error {
		if fl == nil {
			return nil
		}
		if len(fl.CertKey) > 0 && len(fl.CertData) <= 0 {
			return kflags.NewUsageErrorf("Specifying a TLS cert key requires specifying a TLS certificate as well (--tls-cert-key and --tls-cert-data)")
		}
		sources := 0
		for _, enabled := range []bool{len(fl.CertData) > 0, len(fl.SelfSigned) > 0, fl.Acme.Enabled()} {
			if enabled {
				sources++
			}
		}
		if sources > 1 {
			return kflags.NewUsageErrorf("--tls-cert-data, --tls-self-signed and --acme-domain are mutually exclusive")
		}

		mods := []Modifier{}
		if len(fl.CertData) > 0 {
			mods = append(mods, WithCert(fl.CertData, fl.CertKey))
		}
		if len(fl.SelfSigned) > 0 {
			mods = append(mods, WithSelfSigned(fl.SelfSigned...))
		}
		if fl.Acme.Enabled() {
			mods = append(mods, FromAcmeFlags(fl.Acme))
		}
		if len(fl.ClientCA) > 0 {
			mods = append(mods, WithClientCAPEM(fl.ClientCA))
		}

		if err := Modifiers(mods).Apply(c); err != nil {
			return kflags.NewUsageErrorf("invalid --tls-... flags: %w", err)
		}
		return nil
	}
}

// WithCert adds a certificate to present to the clients.
//
// Multiple certificates are supported, the one matching the server name
// requested by the client is used.
func WithCert(certf, keyf []byte) Modifier {
	return func(c *tls.Config) error {
		cert, err := tls.X509KeyPair(certf, keyf)
		if err != nil {
			return err
		}

		c.Certificates = append(c.Certificates, cert)
		return nil
	}
}

// WithCertFile adds a certificate from files.
//
// Just like WithCert, but loads the certificates from a file.
//
// The cert file is typically a file with .crt extension, while the key file
// typically as a .key extension.
func WithCertFile(certf, keyf string) Modifier {
	return func(c *tls.Config) error {
		cert, err := tls.LoadX509KeyPair(certf, keyf)
		if err != nil {
			return err
		}

		c.Certificates = append(c.Certificates, cert)
		return nil
	}
}

// WithClientCAPEM requires clients to present a certificate signed by the
// PEM encoded CA. Can be invoked multiple times to accept multiple CAs.
func WithClientCAPEM(cert []byte) Modifier {
	return func(c *tls.Config) error {
		if c.ClientCAs == nil {
			c.ClientCAs = x509.NewCertPool()
		}
		if !c.ClientCAs.AppendCertsFromPEM(cert) {
			return fmt.Errorf("failed to add client CA - invalid data?")
		}
		c.ClientAuth = tls.RequireAndVerifyClientCert
		return nil
	}
}

// WithClientCAFile is just like WithClientCAPEM, but reads the CA from a file.
func WithClientCAFile(path string) Modifier {
	return func(c *tls.Config) error {
		bytes, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if err := WithClientCAPEM(bytes)(c); err != nil {
			return fmt.Errorf("processing certificate in %s - %w", path, err)
		}
		return nil
	}
}

// WithGetCertificate configures a GetCertificate callback on the TLS config.
func WithGetCertificate(getter func(*tls.ClientHelloInfo) (*tls.Certificate, error)) Modifier {
	return func(c *tls.Config) error {
		c.GetCertificate = getter
		return nil
	}
}

// WithALPNChallenge advertises the ACME TLS-ALPN-01 protocol, so the
// certificate callback can answer challenges.
func WithALPNChallenge() Modifier {
	return func(c *tls.Config) error {
		for _, proto := range c.NextProtos {
			if proto == acme.ALPNProto {
				return nil
			}
		}
		c.NextProtos = append(c.NextProtos, acme.ALPNProto)
		return nil
	}
}
