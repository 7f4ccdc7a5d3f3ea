package kserver

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"slices"
	"time"

	"github.com/enfabrica/nucleus/lib/khttp/kheader"
	"github.com/enfabrica/nucleus/lib/khttp/krequest"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
	"github.com/enfabrica/nucleus/lib/knetwork"
	"github.com/enfabrica/nucleus/lib/logger"
)

// A buffer larger than this many read chunks is released after each request.
const maxRetainedChunks = 4

// connection is the state of a connection being served.
type connection struct {
	*Server
	conn net.Conn
	log  logger.Logger

	// Bytes received for the request being parsed.
	buffer []byte
	// When the first byte of the request being parsed was received.
	started time.Time
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	metricConnections.Inc()
	metricActiveConnections.Inc()
	defer metricActiveConnections.Dec()

	c := &connection{
		Server: s,
		conn:   raw,
		log:    logger.Prefixed(s.log, raw.RemoteAddr().String()+": "),
		buffer: make([]byte, 0, s.readChunkSize),
	}
	defer func() {
		c.conn.Close()
	}()

	// Interrupts any read or write in progress once ctx is canceled.
	stop := context.AfterFunc(ctx, func() {
		raw.Close()
	})
	defer stop()

	if s.tls != nil {
		if !c.handshake(ctx) {
			return
		}
	}
	c.log.Debugf("connection opened")
	c.serve(ctx)
}

func (c *connection) handshake(ctx context.Context) bool {
	if c.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.handshakeTimeout)
		defer cancel()
	}

	tconn := tls.Server(c.conn, c.tls)
	if err := tconn.HandshakeContext(ctx); err != nil {
		metricHandshakeErrors.Inc()
		c.log.Infof("TLS handshake failed: %s", err)
		return false
	}
	c.conn = tconn
	return true
}

// setReadDeadline applies the idle timeout while waiting for a new request,
// and the read timeout once its first byte has been received.
func (c *connection) setReadDeadline() error {
	var deadline time.Time
	switch {
	case len(c.buffer) == 0 && c.idleTimeout > 0:
		deadline = time.Now().Add(c.idleTimeout)
	case len(c.buffer) > 0 && c.readTimeout > 0:
		deadline = c.started.Add(c.readTimeout)
	}
	return c.conn.SetReadDeadline(deadline)
}

func (c *connection) serve(ctx context.Context) {
	chunk := make([]byte, c.readChunkSize)
	for {
		if err := c.setReadDeadline(); err != nil {
			c.log.Infof("setting deadline failed: %s", err)
			return
		}

		read, err := c.conn.Read(chunk)
		if read > 0 {
			if len(c.buffer) == 0 {
				c.started = time.Now()
			}
			c.buffer = append(c.buffer, chunk[:read]...)
			if !c.process(ctx) {
				return
			}
		}

		if err != nil {
			switch {
			case ctx.Err() != nil:
				c.log.Debugf("connection closed by shutdown")
			case errors.Is(err, io.EOF):
				c.log.Debugf("connection closed by peer")
			default:
				c.log.Infof("read failed: %s", err)
			}
			return
		}
	}
}

// process parses the data received so far, and sends back a response if
// the request is complete or invalid.
//
// Returns false if the connection must be closed.
func (c *connection) process(ctx context.Context) bool {
	req, err := c.parser.Parse(c.buffer)
	if err == nil {
		return c.dispatch(ctx, req)
	}

	if krequest.IsIncomplete(err) {
		if remaining, ok := krequest.Remaining(err); ok {
			c.buffer = slices.Grow(c.buffer, remaining)
		}
		return true
	}

	metricParseErrors.WithLabelValues(errorLabel(err)).Inc()
	c.log.Infof("invalid request: %s", err)
	c.log.Debugf("request received:\n%s", logger.IndentAndQuoteLines(string(c.buffer), "  > "))

	resp, fatal := badRequest(err)
	if fatal {
		resp.AddHeader(kheader.New("Connection", "close"))
	}
	if !c.write(resp) {
		return false
	}
	metricResponses.WithLabelValues("invalid", statusLabel(resp.Status())).Inc()
	c.reset()
	if fatal {
		c.closeWrite()
		return false
	}
	return true
}

func (c *connection) dispatch(ctx context.Context, req *krequest.Request) bool {
	start := time.Now()
	resp := c.dispatcher.Route(ctx, req, c.hosts)
	if resp == nil {
		c.log.Errorf("%s: dispatcher returned no response", req)
		resp = kresponse.InternalError()
	}

	switch {
	case !req.KeepAlive():
		resp = resp.Clone().AddHeader(kheader.New("Connection", "close"))
	case req.Version() < kheader.Version11:
		resp = resp.Clone().AddHeader(kheader.New("Connection", "keep-alive"))
	}

	if !c.write(resp) {
		return false
	}
	metricResponses.WithLabelValues(req.Method().String(), statusLabel(resp.Status())).Inc()
	metricRequestDuration.WithLabelValues(req.Method().String()).Observe(time.Since(start).Seconds())
	c.log.Debugf("%s: %s", req, resp.Status())

	if !req.KeepAlive() {
		c.closeWrite()
		return false
	}
	c.reset()
	return true
}

// reset empties the buffer for the next request. A buffer grown for a
// large body is released rather than kept for the life of the connection.
func (c *connection) reset() {
	if cap(c.buffer) > maxRetainedChunks*c.readChunkSize {
		c.buffer = make([]byte, 0, c.readChunkSize)
		return
	}
	c.buffer = c.buffer[:0]
}

// write sends the response. A failure to write is fatal for the connection.
func (c *connection) write(resp *kresponse.Response) bool {
	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.log.Infof("setting deadline failed: %s", err)
		return false
	}

	if _, err := c.encoder.Write(c.conn, resp); err != nil {
		c.log.Infof("write failed: %s", err)
		return false
	}
	return true
}

// closeWrite signals the end of the data to the peer, before the
// connection is closed.
func (c *connection) closeWrite() {
	if _, err := knetwork.CloseWrite(c.conn); err != nil {
		c.log.Debugf("half close failed: %s", err)
	}
}

// badRequest returns the response for a malformed request, and true if
// the connection must be closed after sending it.
func badRequest(err error) (*kresponse.Response, bool) {
	switch {
	case errors.Is(err, krequest.ErrHeaderTooLarge):
		return kresponse.Error(kresponse.StatusHeaderFieldsTooLarge, "431 request header fields too large: "+err.Error()), true
	case errors.Is(err, krequest.ErrBodyTooLarge):
		return kresponse.Error(kresponse.StatusPayloadTooLarge, "413 payload too large: "+err.Error()), true
	}
	return kresponse.Error(kresponse.StatusBadRequest, "400 bad request: "+err.Error()), false
}
