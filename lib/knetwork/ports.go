package knetwork

import (
	"fmt"
	"net"
)

type PortDescriptor struct {
	net.Listener
}

// Address returns the address the port was allocated on.
func (pd *PortDescriptor) Address() (*net.TCPAddr, error) {
	allocatedPort, ok := pd.Addr().(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("shape of address %v not correct, is not a net.TCPAddr", pd.Addr())
	}
	return allocatedPort, nil
}

// AllocatePort opens a listener on a random free port of the loopback interface.
func AllocatePort() (*PortDescriptor, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &PortDescriptor{listener}, nil
}
