package krequest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/enfabrica/nucleus/lib/khttp"
	"github.com/enfabrica/nucleus/lib/khttp/kform"
	"github.com/enfabrica/nucleus/lib/khttp/kheader"
)

var (
	crlf      = []byte("\r\n")
	separator = []byte("\r\n\r\n")
)

// Parser parses requests enforcing size limits.
//
// The zero value is valid, and enforces no limit.
type Parser struct {
	maxHeaderBytes int
	maxBodyBytes   int64
}

type Modifier func(*Parser)

// WithMaxHeaderBytes limits the size of the request line and headers.
// 0 or negative means no limit.
func WithMaxHeaderBytes(max int) Modifier {
	return func(p *Parser) {
		p.maxHeaderBytes = max
	}
}

// WithMaxBodyBytes limits the size of the body. 0 or negative means no limit.
func WithMaxBodyBytes(max int64) Modifier {
	return func(p *Parser) {
		p.maxBodyBytes = max
	}
}

func NewParser(mods ...Modifier) *Parser {
	p := &Parser{}
	for _, m := range mods {
		m(p)
	}
	return p
}

// Parse parses a request with no size limits.
func Parse(buffer []byte) (*Request, error) {
	var p Parser
	return p.Parse(buffer)
}

// Parse parses buffer, containing all the bytes received so far for a request.
//
// The returned Request does not reference buffer, which can be reused as soon as
// Parse returns. Use IsIncomplete on the error to know if the caller should read
// more data and retry with a larger buffer.
func (p *Parser) Parse(buffer []byte) (*Request, error) {
	if len(buffer) == 0 {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidString)
	}

	end := bytes.Index(buffer, separator)
	if p.maxHeaderBytes > 0 && (end > p.maxHeaderBytes || (end < 0 && len(buffer) > p.maxHeaderBytes)) {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrHeaderTooLarge, p.maxHeaderBytes)
	}
	if end < 0 {
		return nil, ErrMissingBlankLine
	}

	lines := bytes.Split(buffer[:end], crlf)
	req := &Request{headers: kheader.Headers{}}
	if err := req.parseRequestLine(string(lines[0])); err != nil {
		return nil, err
	}

	for _, line := range lines[1:] {
		header, err := kheader.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("%w: header %q: %v", ErrInvalidString, line, err)
		}
		req.headers.Add(header)
	}

	hostport, found := req.headers.Lookup("host")
	if !found {
		return nil, ErrNoHostHeader
	}
	host, _, err := khttp.SplitHostPort(hostport)
	if err != nil || host == "" {
		return nil, fmt.Errorf("%w: invalid value %q", ErrNoHostHeader, hostport)
	}
	req.host = host

	if err := p.parseBody(req, buffer[end+len(separator):]); err != nil {
		return nil, err
	}

	req.keepAlive = req.version.DefaultKeepAlive()
	if connection, found := req.headers.Lookup("connection"); found {
		req.keepAlive = hasToken(connection, "keep-alive")
	}
	return req, nil
}

func (r *Request) parseRequestLine(line string) error {
	tokens := strings.Split(line, " ")
	if len(tokens) != 3 || tokens[1] == "" {
		return fmt.Errorf("%w: request line %q must be METHOD TARGET VERSION", ErrInvalidString, line)
	}

	method, err := kheader.ParseMethod(tokens[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMethod, err)
	}
	version, err := kheader.ParseVersion(tokens[2])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHTTPVersion, err)
	}

	r.method = method
	r.version = version
	r.path, r.query, r.hasQuery = strings.Cut(tokens[1], "?")
	return nil
}

func (p *Parser) parseBody(req *Request, body []byte) error {
	ctype := req.headers.Get("content-type")
	multipart := kform.IsMultipart(ctype)

	if clength, found := req.headers.Lookup("content-length"); found {
		length, err := strconv.ParseUint(strings.TrimSpace(clength), 10, 63)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidContentLength, clength)
		}
		if p.maxBodyBytes > 0 && length > uint64(p.maxBodyBytes) {
			return fmt.Errorf("%w: %d bytes declared, limit is %d", ErrBodyTooLarge, length, p.maxBodyBytes)
		}
		if uint64(len(body)) < length {
			return &WaitingOnBodyError{Remaining: int(length - uint64(len(body)))}
		}
		if uint64(len(body)) > length {
			return fmt.Errorf("%w: %d bytes declared, %d received", ErrBodyExceedsContentLength, length, len(body))
		}
	} else {
		if p.maxBodyBytes > 0 && int64(len(body)) > p.maxBodyBytes {
			return fmt.Errorf("%w: limit is %d", ErrBodyTooLarge, p.maxBodyBytes)
		}
		if len(body) > 0 && !multipart {
			return ErrMissingContentLength
		}
	}

	if len(body) > 0 {
		req.body = append([]byte{}, body...)
	} else {
		req.body = []byte{}
	}

	switch {
	case multipart:
		boundary, err := kform.Boundary(ctype)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMissingMultiPartBoundary, err)
		}
		entries, err := kform.DecodeMultipart(req.body, boundary)
		if err != nil {
			return &WaitingOnBodyError{Remaining: -1}
		}
		req.form = kform.NewMultipart(entries)

	case kform.IsURLEncoded(ctype):
		values, err := kform.DecodeURLEncoded(req.body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidUrlEncodedForm, err)
		}
		req.form = kform.NewURLEncoded(values)
	}
	return nil
}

func hasToken(value, token string) bool {
	for _, el := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(el), token) {
			return true
		}
	}
	return false
}
