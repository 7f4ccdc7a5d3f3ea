package knetwork

import (
	"io"
)

// WriteOnlyCloser is any object that is capable of closing the
// write direction without closing the read direction.
//
// This is typical of eg, TCP connection where a shutdown() call
// can close one direction but not the other. Both *net.TCPConn and
// *tls.Conn implement it.
type WriteOnlyCloser interface {
	io.Writer
	CloseWrite() error
}

// CloseWrite closes the write direction of conn if supported, signaling
// the end of the data to the peer.
//
// Returns false if conn cannot be half closed.
func CloseWrite(conn io.Writer) (bool, error) {
	woc, ok := conn.(WriteOnlyCloser)
	if !ok {
		return false, nil
	}
	return true, woc.CloseWrite()
}
