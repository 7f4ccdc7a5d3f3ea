// Package khttp collects small helpers to deal with hosts, ports and paths
// shared by the http server packages.
package khttp

import (
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
)

// SplitHostPort splits an address in the host and port components.
//
// Differently from net.SplitHostPort, both the port and the host can be
// omitted: "1.2.3.4" returns host "1.2.3.4" and an empty port, ":53" returns
// an empty host and port "53". IPv6 addresses must be enclosed in [].
func SplitHostPort(hostport string) (string, string, error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return "", "", fmt.Errorf("address %s: missing ']'", hostport)
		}
		host, rest := hostport[1:end], hostport[end+1:]
		if rest == "" {
			return host, "", nil
		}
		if rest[0] != ':' || strings.IndexByte(rest[1:], ':') >= 0 {
			return "", "", fmt.Errorf("address %s: unexpected characters after ']'", hostport)
		}
		return host, rest[1:], nil
	}

	host, port, _ := strings.Cut(hostport, ":")
	if strings.IndexByte(port, ':') >= 0 {
		return "", "", fmt.Errorf("address %s: too many colons, IPv6 addresses must be in []", hostport)
	}
	return host, port, nil
}

// AddDefaultPort appends the specified port to the address, unless the
// address already has one.
func AddDefaultPort(address string, port int) (string, error) {
	if port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid default port %d", port)
	}
	host, aport, err := SplitHostPort(address)
	if err != nil {
		return "", err
	}
	if aport == "" {
		aport = strconv.Itoa(port)
	}
	return net.JoinHostPort(host, aport), nil
}

// CleanPreserve cleans an URL path (eg, eliminating .., //, useless . and so on) while
// preserving the '/' at the end of the path (path.Clean eliminates trailing /) and
// returning an empty string "" instead of . for an empty path.
func CleanPreserve(urlpath string) string {
	cleaned := path.Clean(urlpath)
	if cleaned == "." {
		cleaned = ""
	}

	if strings.HasSuffix(urlpath, "/") && !strings.HasSuffix(cleaned, "/") {
		return cleaned + "/"
	}
	return cleaned
}

// JoinPreserve joins multiple path fragments with one another, while preserving the final '/',
// if any. JoinPreserve internally calls path.Clean.
func JoinPreserve(add ...string) string {
	result := path.Join(add...)
	if strings.HasSuffix(add[len(add)-1], "/") && !strings.HasSuffix(result, "/") {
		return result + "/"
	}
	return result
}
