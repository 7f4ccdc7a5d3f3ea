package knetwork

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseWrite(t *testing.T) {
	port, err := AllocatePort()
	require.NoError(t, err)
	defer port.Close()

	addr, err := port.Address()
	require.NoError(t, err)
	assert.True(t, addr.IP.IsLoopback())
	assert.NotZero(t, addr.Port)

	received := make(chan []byte, 1)
	go func() {
		conn, err := port.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	ok, err := CloseWrite(conn)
	assert.True(t, ok)
	assert.NoError(t, err)

	// ReadAll only returns once the write direction is closed.
	assert.Equal(t, []byte("hello"), <-received)

	ok, err = CloseWrite(&bytes.Buffer{})
	assert.False(t, ok)
	assert.NoError(t, err)
}
