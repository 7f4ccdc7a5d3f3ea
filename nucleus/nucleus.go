package main

import (
	"embed"
	"fmt"
	"time"

	"github.com/enfabrica/nucleus/lib/kflags"
	"github.com/enfabrica/nucleus/lib/khttp/kassets"
	"github.com/enfabrica/nucleus/lib/khttp/kcookie"
	"github.com/enfabrica/nucleus/lib/khttp/krouter"
	"github.com/enfabrica/nucleus/lib/khttp/kserver"
	"github.com/enfabrica/nucleus/lib/khttp/workpool"
	"github.com/enfabrica/nucleus/lib/logger"
	"github.com/enfabrica/nucleus/lib/logger/klog"
	"github.com/enfabrica/nucleus/lib/retry"
	"github.com/enfabrica/nucleus/lib/token"
	"github.com/mitchellh/go-homedir"
)

//go:embed assets
var assets embed.FS

// AssetsPrefix is the path the compiled in assets are always served at.
const AssetsPrefix = "/_nucleus"

type Flags struct {
	Log    *klog.Flags
	Server *kserver.TLSFlags
	Pool   *workpool.Flags
	Accept *retry.Flags

	Address        string
	MetricsAddress string
	Root           string

	Config     []byte
	ConfigName string

	CookieKeyFile  string
	CookieValidity time.Duration
}

func DefaultFlags() *Flags {
	accept := retry.DefaultFlags()
	accept.AtMost = 0
	accept.Wait = 5 * time.Millisecond
	accept.MaxWait = time.Second
	accept.Fuzzy = 0

	return &Flags{
		Log:    klog.DefaultFlags(),
		Server: kserver.DefaultTLSFlags(),
		Pool:   workpool.DefaultFlags(),
		Accept: accept,

		Address:        ":7878",
		CookieValidity: 24 * time.Hour,
	}
}

func (fl *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	fl.Log.Register(set, prefix)
	fl.Server.Register(set, prefix)
	fl.Pool.Register(set, prefix)
	fl.Accept.Register(set, prefix+"accept-")

	set.StringVar(&fl.Address, prefix+"http-address", fl.Address,
		"Address to listen on - the port defaults to 443 with TLS, 80 otherwise")
	set.StringVar(&fl.MetricsAddress, prefix+"metrics-address", fl.MetricsAddress,
		"Address to export prometheus metrics on, at /metrics - empty disables metrics")
	set.StringVar(&fl.Root, prefix+"root", fl.Root,
		"Directory to serve files from for hosts not in the config - overrides Root in the config")
	set.ByteFileVar(&fl.Config, prefix+"config", "",
		"Configuration file with virtual hosts, redirects and static routes - toml, json or yaml",
		kflags.WithFilename(&fl.ConfigName))
	set.StringVar(&fl.CookieKeyFile, prefix+"cookie-key-file", fl.CookieKeyFile,
		"File with the key to sign cookies with, created if it does not exist - empty uses a random key")
	set.DurationVar(&fl.CookieValidity, prefix+"cookie-validity", fl.CookieValidity,
		"How long signed cookies are valid for - 0 means forever")
	return fl
}

// Nucleus is a configured server, ready to serve.
type Nucleus struct {
	*kserver.Server
	Router *krouter.Router[appState]
	pool   *workpool.WorkPool
}

// Close terminates the workers running blocking handlers, once the
// server has stopped.
func (n *Nucleus) Close() {
	n.pool.Done()
}

func loadConfig(fl *Flags) (*Config, error) {
	var config *Config
	var err error
	if len(fl.Config) > 0 {
		config, err = LoadConfig(fl.ConfigName, fl.Config)
	} else {
		config, err = DefaultConfig()
	}
	if err != nil {
		return nil, kflags.NewUsageErrorf("invalid --config: %w", err)
	}
	if fl.Root != "" {
		config.Root, err = homedir.Expand(fl.Root)
		if err != nil {
			return nil, kflags.NewUsageErrorf("invalid --root: %w", err)
		}
	}
	return config, nil
}

// New creates the server described by the flags.
func New(log logger.Logger, fl *Flags) (*Nucleus, error) {
	config, err := loadConfig(fl)
	if err != nil {
		return nil, err
	}
	hosts, err := config.VirtualHosts()
	if err != nil {
		return nil, kflags.NewUsageErrorf("invalid virtual hosts: %w", err)
	}

	assetsFS := kassets.MustEmbedSubdir(assets, "assets")
	if config.Root == "" {
		hosts.SetDefault(assetsFS)
	}

	key, err := token.ReadOrGenerateKey(fl.CookieKeyFile)
	if err != nil {
		return nil, fmt.Errorf("cookie key: %w", err)
	}
	signer, err := kcookie.NewSigner(key, fl.CookieValidity, kcookie.WithSecure(fl.Server.TLS.Enabled()))
	if err != nil {
		return nil, err
	}

	pool, err := workpool.New(workpool.FromFlags(fl.Pool))
	if err != nil {
		return nil, err
	}
	n := &Nucleus{pool: pool}
	if err := n.setup(log, fl, config, hosts, newState(signer), assetsFS); err != nil {
		pool.Done()
		return nil, err
	}
	return n, nil
}

func (n *Nucleus) setup(log logger.Logger, fl *Flags, config *Config, hosts *krouter.VirtualHosts, state appState, assetsFS kassets.FS) error {
	router, err := krouter.New(state, krouter.WithLogger(log), krouter.WithWorkPool(n.pool))
	if err != nil {
		return err
	}
	if err := router.AddRoutes(Routes()...); err != nil {
		return err
	}
	if err := AddRoutes(config, router); err != nil {
		return kflags.NewUsageErrorf("invalid routes in config: %w", err)
	}

	content, err := kassets.MapFromFS(assetsFS)
	if err != nil {
		return err
	}
	stats := &kassets.AssetStats{}
	if err := kassets.Register(router, stats, content, kassets.PrefixMapper(AssetsPrefix, kassets.BasicMapper)); err != nil {
		return err
	}
	stats.Log(log.Debugf)

	accept := retry.New(retry.FromFlags(fl.Accept), retry.WithLogger(log), retry.WithDescription("accept"))
	server, err := kserver.New(router,
		kserver.WithLogger(log),
		kserver.WithVirtualHosts(hosts),
		kserver.WithAcceptRetry(accept),
		kserver.FromTLSFlags(fl.Server),
	)
	if err != nil {
		return err
	}

	n.Server = server
	n.Router = router
	return nil
}
