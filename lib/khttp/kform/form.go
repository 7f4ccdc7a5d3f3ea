// Package kform decodes the body of requests submitting forms.
//
// Two encodings are supported: multipart/form-data, where each field is a
// separate part delimited by a boundary, and application/x-www-form-urlencoded,
// where fields are key=value pairs joined by '&'.
package kform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"
)

const (
	MultipartType  = "multipart/form-data"
	URLEncodedType = "application/x-www-form-urlencoded"
)

var (
	ErrNotMultipart    = errors.New("content type is not " + MultipartType)
	ErrMissingBoundary = errors.New("multipart content type has no boundary")
	ErrMissingEquals   = errors.New("url encoded pair has no '='")
	ErrNoParts         = errors.New("multipart body has no parts")
)

// Kind tags the variant held by Data.
type Kind int

const (
	None Kind = iota
	Multipart
	URLEncoded
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Multipart:
		return "multipart"
	case URLEncoded:
		return "urlencoded"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Data is the decoded form carried by a request.
//
// Only the map matching Kind is set.
type Data struct {
	Kind       Kind
	Multipart  map[string]Entry
	URLEncoded map[string]string
}

func NewMultipart(entries map[string]Entry) Data {
	return Data{Kind: Multipart, Multipart: entries}
}

func NewURLEncoded(values map[string]string) Data {
	return Data{Kind: URLEncoded, URLEncoded: values}
}

// Entry is a single field of a multipart form.
//
// FileName and ContentType are empty when the part did not declare them.
type Entry struct {
	Name        string
	FileName    string
	ContentType string
	Value       []byte
}

type EntryModifier func(*Entry)

func WithFileName(name string) EntryModifier {
	return func(e *Entry) {
		e.FileName = name
	}
}

func WithContentType(ctype string) EntryModifier {
	return func(e *Entry) {
		e.ContentType = ctype
	}
}

func NewEntry(name string, value []byte, mods ...EntryModifier) Entry {
	e := Entry{Name: name, Value: value}
	for _, m := range mods {
		m(&e)
	}
	return e
}

// Equal compares two entries field by field. A nil and an empty value are equal.
func (e Entry) Equal(o Entry) bool {
	return e.Name == o.Name && e.FileName == o.FileName && e.ContentType == o.ContentType && bytes.Equal(e.Value, o.Value)
}

// Boundary returns the boundary parameter of a multipart/form-data content type.
func Boundary(contentType string) (string, error) {
	media, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("invalid content type %q: %w", contentType, err)
	}
	if media != MultipartType {
		return "", fmt.Errorf("%w: %q", ErrNotMultipart, media)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", ErrMissingBoundary
	}
	return boundary, nil
}

// IsMultipart returns true if the content type declares a multipart form.
func IsMultipart(contentType string) bool {
	media, _, err := mime.ParseMediaType(contentType)
	return err == nil && media == MultipartType
}

// IsURLEncoded returns true if the content type declares an url encoded form.
func IsURLEncoded(contentType string) bool {
	media, _, err := mime.ParseMediaType(contentType)
	return err == nil && media == URLEncodedType
}

// DecodeMultipart splits body in the parts delimited by boundary.
//
// The body must be complete: a missing closing delimiter is an error, as is
// a body with no parts, or any part missing the name in its Content-Disposition.
func DecodeMultipart(body []byte, boundary string) (map[string]Entry, error) {
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	entries := map[string]Entry{}
	for {
		part, err := reader.NextRawPart()
		if err == io.EOF {
			// The reader also returns io.EOF when the body ends in the
			// middle of the headers of a part.
			if !hasCloseDelimiter(body, boundary) {
				return nil, fmt.Errorf("multipart body after entry %d: %w", len(entries), io.ErrUnexpectedEOF)
			}
			if len(entries) == 0 {
				return nil, ErrNoParts
			}
			return entries, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("multipart body after entry %d: %w", len(entries), io.ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, err
		}

		name := part.FormName()
		if name == "" {
			return nil, fmt.Errorf("multipart entry %d has no name", len(entries))
		}
		value, err := io.ReadAll(part)
		if err != nil {
			return nil, fmt.Errorf("multipart entry %q: %w", name, err)
		}
		entries[name] = Entry{
			Name:        name,
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Value:       value,
		}
	}
}

// hasCloseDelimiter returns true if a line of body starts with the
// --boundary-- delimiter terminating a multipart body.
func hasCloseDelimiter(body []byte, boundary string) bool {
	delimiter := []byte("--" + boundary + "--")
	for offset := 0; offset < len(body); {
		found := bytes.Index(body[offset:], delimiter)
		if found < 0 {
			return false
		}
		start := offset + found
		if start == 0 || body[start-1] == '\n' {
			return true
		}
		offset = start + len(delimiter)
	}
	return false
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeMultipart serializes the entries as a multipart/form-data body.
func EncodeMultipart(boundary string, entries ...Entry) ([]byte, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	if err := writer.SetBoundary(boundary); err != nil {
		return nil, err
	}

	for _, entry := range entries {
		disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(entry.Name))
		if entry.FileName != "" {
			disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(entry.FileName))
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", disposition)
		if entry.ContentType != "" {
			header.Set("Content-Type", entry.ContentType)
		}

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(entry.Value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// DecodeURLEncoded decodes a body of key=value pairs joined by '&'.
//
// Keys and values are unescaped, with '+' turned into a space. Every pair must
// contain a '='. An empty body returns an empty map.
func DecodeURLEncoded(body []byte) (map[string]string, error) {
	values := map[string]string{}
	if len(body) == 0 {
		return values, nil
	}

	for _, pair := range strings.Split(string(body), "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrMissingEquals, pair)
		}
		ukey, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", key, err)
		}
		uvalue, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", ukey, err)
		}
		values[ukey] = uvalue
	}
	return values, nil
}
