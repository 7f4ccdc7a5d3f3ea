package kheader

import (
	"fmt"
)

type Method int

const (
	MethodGet Method = iota
	MethodPost
)

var methodNames = map[Method]string{
	MethodGet:  "GET",
	MethodPost: "POST",
}

// ParseMethod parses the method token of a request line. Matching is case
// sensitive, as methods on the wire are.
func ParseMethod(token string) (Method, error) {
	for method, name := range methodNames {
		if name == token {
			return method, nil
		}
	}
	return 0, fmt.Errorf("unknown method %q", token)
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

type Version int

const (
	Version09 Version = iota
	Version10
	Version11
	Version20
)

var versionNames = map[Version]string{
	Version09: "HTTP/0.9",
	Version10: "HTTP/1.0",
	Version11: "HTTP/1.1",
	Version20: "HTTP/2",
}

// ParseVersion parses the protocol token of a request line.
func ParseVersion(token string) (Version, error) {
	if token == "HTTP/2.0" {
		return Version20, nil
	}
	for version, name := range versionNames {
		if name == token {
			return version, nil
		}
	}
	return 0, fmt.Errorf("unknown protocol version %q", token)
}

func (v Version) String() string {
	if name, ok := versionNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// DefaultKeepAlive returns true if connections with this protocol
// version stay open by default.
func (v Version) DefaultKeepAlive() bool {
	return v >= Version11
}
