// Package kserver accepts connections and serves HTTP/1.x requests on them.
//
// Each connection is served by its own goroutine, which reads the request in
// chunks, parses it with krequest, hands it to a Dispatcher (normally a
// krouter.Router), and writes back the response. Requests on a connection
// are processed strictly in order.
//
// Basic usage:
//
//	router, err := krouter.New(state)
//	...
//	server, err := kserver.New(router, kserver.WithLogger(log))
//	...
//	err = server.ListenAndServe(ctx, ":8080")
package kserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"sync"
	"time"

	"github.com/enfabrica/nucleus/lib/kflags"
	"github.com/enfabrica/nucleus/lib/khttp"
	"github.com/enfabrica/nucleus/lib/khttp/kheader"
	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
	"github.com/enfabrica/nucleus/lib/khttp/krouter"
	"github.com/enfabrica/nucleus/lib/khttp/ktls"
	"github.com/enfabrica/nucleus/lib/logger"
	"github.com/enfabrica/nucleus/lib/retry"
	"golang.org/x/sync/semaphore"
)

// Dispatcher computes the response to a request. It must always return a
// response, turning any error into one.
type Dispatcher interface {
	Route(ctx context.Context, req *krequest.Request, hosts *krouter.VirtualHosts) *kresponse.Response
}

type options struct {
	log     logger.Logger
	tls     *tls.Config
	encoder *kresponse.Encoder
	retry   *retry.Options
	hosts   *krouter.VirtualHosts

	readTimeout      time.Duration
	idleTimeout      time.Duration
	writeTimeout     time.Duration
	handshakeTimeout time.Duration

	maxHeaderBytes int
	maxBodyBytes   int64
	readChunkSize  int
	maxConnections int
}

type Modifier func(o *options) error

type Modifiers []Modifier

// Apply applies the set of modifiers to the specified config.
func (mods Modifiers) Apply(o *options) error {
	for _, m := range mods {
		if err := m(o); err != nil {
			return err
		}
	}
	return nil
}

type Flags struct {
	ReadTimeout      time.Duration
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration

	MaxHeaderBytes int
	MaxBodyBytes   int
	ReadChunkSize  int
	MaxConnections int
}

func DefaultFlags() *Flags {
	return &Flags{
		ReadTimeout:      30 * time.Second,
		IdleTimeout:      2 * time.Minute,
		WriteTimeout:     30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxHeaderBytes:   1 << 16,
		MaxBodyBytes:     10 << 20,
		ReadChunkSize:    1024,
		MaxConnections:   0,
	}
}

func (fl *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.DurationVar(&fl.ReadTimeout, prefix+"http-read-timeout", fl.ReadTimeout,
		"Maximum time to receive a request, from its first byte - 0 means no limit")
	set.DurationVar(&fl.IdleTimeout, prefix+"http-idle-timeout", fl.IdleTimeout,
		"Maximum time to wait for the next request on a connection - 0 means no limit")
	set.DurationVar(&fl.WriteTimeout, prefix+"http-write-timeout", fl.WriteTimeout,
		"Maximum time to write a response - 0 means no limit")
	set.DurationVar(&fl.HandshakeTimeout, prefix+"http-handshake-timeout", fl.HandshakeTimeout,
		"Maximum time to complete a TLS handshake - 0 means no limit")
	set.IntVar(&fl.MaxHeaderBytes, prefix+"http-max-header-bytes", fl.MaxHeaderBytes,
		"Maximum size of the request line and headers - larger requests get a 431")
	set.IntVar(&fl.MaxBodyBytes, prefix+"http-max-body-bytes", fl.MaxBodyBytes,
		"Maximum size of a request body - larger requests get a 413")
	set.IntVar(&fl.ReadChunkSize, prefix+"http-read-chunk-size", fl.ReadChunkSize,
		"Size of each read from a connection")
	set.IntVar(&fl.MaxConnections, prefix+"http-max-connections", fl.MaxConnections,
		"Maximum number of connections served at once - 0 means no limit")
	return fl
}

type TLSFlags struct {
	TLS *ktls.Flags
	*Flags
}

func DefaultTLSFlags() *TLSFlags {
	return &TLSFlags{
		TLS:   ktls.DefaultFlags(),
		Flags: DefaultFlags(),
	}
}

func (fl *TLSFlags) Register(set kflags.FlagSet, prefix string) *TLSFlags {
	fl.TLS.Register(set, prefix)
	fl.Flags.Register(set, prefix)

	return fl
}

func FromFlags(fl *Flags) Modifier {
	return func(o *options) error {
		if fl.ReadChunkSize <= 0 {
			return kflags.NewUsageErrorf("--http-read-chunk-size must be > 0, it is %d", fl.ReadChunkSize)
		}
		if fl.MaxConnections < 0 {
			return kflags.NewUsageErrorf("--http-max-connections must be >= 0, it is %d", fl.MaxConnections)
		}
		return Modifiers{
			WithReadTimeout(fl.ReadTimeout),
			WithIdleTimeout(fl.IdleTimeout),
			WithWriteTimeout(fl.WriteTimeout),
			WithHandshakeTimeout(fl.HandshakeTimeout),
			WithMaxHeaderBytes(fl.MaxHeaderBytes),
			WithMaxBodyBytes(int64(fl.MaxBodyBytes)),
			WithReadChunkSize(fl.ReadChunkSize),
			WithMaxConnections(fl.MaxConnections),
		}.Apply(o)
	}
}

// FromTLSFlags configures the server from flags, enabling TLS only if
// the flags configure a certificate.
func FromTLSFlags(fl *TLSFlags) Modifier {
	return func(o *options) error {
		if fl.TLS.Enabled() {
			if err := WithTLSOptions(ktls.FromFlags(fl.TLS))(o); err != nil {
				return err
			}
		}

		return FromFlags(fl.Flags)(o)
	}
}

func WithLogger(log logger.Logger) Modifier {
	return func(o *options) error {
		o.log = log
		return nil
	}
}

// WithReadTimeout limits the time to receive a request, from its first byte.
func WithReadTimeout(timeout time.Duration) Modifier {
	return func(o *options) error {
		o.readTimeout = timeout
		return nil
	}
}

// WithIdleTimeout limits the time waiting for the next request on a connection.
func WithIdleTimeout(timeout time.Duration) Modifier {
	return func(o *options) error {
		o.idleTimeout = timeout
		return nil
	}
}

// WithWriteTimeout limits the time to write a response.
func WithWriteTimeout(timeout time.Duration) Modifier {
	return func(o *options) error {
		o.writeTimeout = timeout
		return nil
	}
}

// WithHandshakeTimeout limits the time to complete a TLS handshake.
func WithHandshakeTimeout(timeout time.Duration) Modifier {
	return func(o *options) error {
		o.handshakeTimeout = timeout
		return nil
	}
}

func WithMaxHeaderBytes(size int) Modifier {
	return func(o *options) error {
		o.maxHeaderBytes = size
		return nil
	}
}

func WithMaxBodyBytes(size int64) Modifier {
	return func(o *options) error {
		o.maxBodyBytes = size
		return nil
	}
}

func WithReadChunkSize(size int) Modifier {
	return func(o *options) error {
		if size <= 0 {
			return fmt.Errorf("read chunk size must be > 0, got %d", size)
		}
		o.readChunkSize = size
		return nil
	}
}

// WithMaxConnections limits the number of connections served at once.
// Connections above the limit wait in the listener backlog. 0 means no limit.
func WithMaxConnections(max int) Modifier {
	return func(o *options) error {
		o.maxConnections = max
		return nil
	}
}

// WithEncoder configures the encoder used to serialize responses, to add
// default headers, for example.
func WithEncoder(encoder *kresponse.Encoder) Modifier {
	return func(o *options) error {
		o.encoder = encoder
		return nil
	}
}

// WithAcceptRetry configures how to retry when accepting a connection fails
// with a temporary error, like running out of file descriptors.
func WithAcceptRetry(accept *retry.Options) Modifier {
	return func(o *options) error {
		o.retry = accept
		return nil
	}
}

// WithVirtualHosts configures the table of virtual hosts to serve.
func WithVirtualHosts(hosts *krouter.VirtualHosts) Modifier {
	return func(o *options) error {
		o.hosts = hosts
		return nil
	}
}

// WithTLSOptions applies the tls modifiers to the server configuration,
// enabling TLS.
func WithTLSOptions(mods ...ktls.Modifier) Modifier {
	return func(o *options) error {
		config, err := ktls.NewConfig(mods...)
		if err != nil {
			return err
		}
		o.tls = config
		return nil
	}
}

// WithTLSConfig enables TLS with the specified configuration.
func WithTLSConfig(config *tls.Config) Modifier {
	return func(o *options) error {
		o.tls = config
		return nil
	}
}

// Server serves requests on the connections accepted from a listener.
type Server struct {
	options
	dispatcher Dispatcher
	parser     *krequest.Parser
	limit      *semaphore.Weighted
}

// DefaultEncoder adds a Server header to every response.
func DefaultEncoder() *kresponse.Encoder {
	return kresponse.NewEncoder(kresponse.WithDefaultHeaders(kheader.New("Server", "nucleus")))
}

func New(dispatcher Dispatcher, mods ...Modifier) (*Server, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("a dispatcher is required")
	}

	flags := DefaultFlags()
	o := options{log: logger.Nil}
	if err := FromFlags(flags)(&o); err != nil {
		return nil, err
	}
	if err := Modifiers(mods).Apply(&o); err != nil {
		return nil, err
	}
	if o.encoder == nil {
		o.encoder = DefaultEncoder()
	}
	if o.hosts == nil {
		o.hosts, _ = krouter.NewVirtualHosts()
	}
	if o.retry == nil {
		o.retry = retry.New(retry.WithWait(5*time.Millisecond), retry.WithMaxWait(time.Second),
			retry.WithFuzzy(0), retry.WithAttempts(0), retry.WithLogger(o.log), retry.WithDescription("accept"))
	}

	s := &Server{
		options:    o,
		dispatcher: dispatcher,
		parser:     krequest.NewParser(krequest.WithMaxHeaderBytes(o.maxHeaderBytes), krequest.WithMaxBodyBytes(o.maxBodyBytes)),
	}
	if o.maxConnections > 0 {
		s.limit = semaphore.NewWeighted(int64(o.maxConnections))
	}
	return s, nil
}

// AddVirtualHost serves the files in root for requests to hostname.
func (s *Server) AddVirtualHost(hostname string, root fs.FS) error {
	return s.hosts.Add(krouter.VirtualHost{Hostname: hostname, Root: root})
}

// VirtualHosts returns the table of virtual hosts of the server.
func (s *Server) VirtualHosts() *krouter.VirtualHosts {
	return s.hosts
}

// TLS returns true if connections are served over TLS.
func (s *Server) TLS() bool {
	return s.tls != nil
}

// ListenAndServe listens on address and calls Serve.
//
// The port in the address defaults to 443 with TLS, 80 otherwise.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	port := 80
	if s.TLS() {
		port = 443
	}
	address, err := khttp.AddDefaultPort(address, port)
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return err
	}
	s.log.Infof("listening on %s (tls: %t)", listener.Addr(), s.TLS())
	return s.Serve(ctx, listener)
}

type temporary interface {
	Temporary() bool
}

func (s *Server) accept(ctx context.Context, listener net.Listener) (net.Conn, error) {
	var conn net.Conn
	err := s.retry.Run(ctx, func() error {
		var err error
		conn, err = listener.Accept()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return retry.Fatal(ctx.Err())
		}
		var te temporary
		if errors.As(err, &te) && te.Temporary() {
			metricAcceptErrors.Inc()
			return err
		}
		return retry.Fatal(err)
	})
	return conn, err
}

// Serve accepts connections from listener until ctx is canceled, or an
// error that is not temporary occurs.
//
// Returns nil when ctx is canceled, the accept error otherwise. In both
// cases, the listener is closed, and Serve waits for every connection to
// be closed before returning. Canceling ctx closes all connections.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	stop := context.AfterFunc(ctx, func() {
		listener.Close()
	})
	defer func() {
		if stop() {
			listener.Close()
		}
	}()

	for {
		if s.limit != nil {
			if err := s.limit.Acquire(ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := s.accept(ctx, listener)
		if err != nil {
			if s.limit != nil {
				s.limit.Release(1)
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept on %s failed: %w", listener.Addr(), err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.limit != nil {
				defer s.limit.Release(1)
			}
			s.serveConn(ctx, conn)
		}()
	}
}
