package kresponse

import (
	"mime"
	"path"
	"strings"
)

// Mime is the value of the Content-Type header of a response.
type Mime string

const (
	PlainText   Mime = "text/plain; charset=utf-8"
	HTML        Mime = "text/html; charset=utf-8"
	CSS         Mime = "text/css; charset=utf-8"
	JavaScript  Mime = "text/javascript; charset=utf-8"
	JSON        Mime = "application/json"
	XML         Mime = "application/xml"
	PDF         Mime = "application/pdf"
	Wasm        Mime = "application/wasm"
	OctetStream Mime = "application/octet-stream"
	PNG         Mime = "image/png"
	JPEG        Mime = "image/jpeg"
	GIF         Mime = "image/gif"
	SVG         Mime = "image/svg+xml"
	Icon        Mime = "image/x-icon"
	WebP        Mime = "image/webp"
	Woff2       Mime = "font/woff2"
)

var extensions = map[string]Mime{
	".txt":   PlainText,
	".html":  HTML,
	".htm":   HTML,
	".css":   CSS,
	".js":    JavaScript,
	".mjs":   JavaScript,
	".json":  JSON,
	".xml":   XML,
	".pdf":   PDF,
	".wasm":  Wasm,
	".png":   PNG,
	".jpg":   JPEG,
	".jpeg":  JPEG,
	".gif":   GIF,
	".svg":   SVG,
	".ico":   Icon,
	".webp":  WebP,
	".woff2": Woff2,
}

// Custom returns a Mime for a content type without a constant.
func Custom(contentType string) Mime {
	return Mime(contentType)
}

// FromExtension returns the Mime type associated with the extension of a file.
//
// name can be a path or a bare extension including the dot. Unknown extensions
// are looked up in the system tables, and default to OctetStream.
func FromExtension(name string) Mime {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return OctetStream
	}
	if m, found := extensions[ext]; found {
		return m
	}
	if ctype := mime.TypeByExtension(ext); ctype != "" {
		return Mime(ctype)
	}
	return OctetStream
}

func (m Mime) String() string {
	return string(m)
}
