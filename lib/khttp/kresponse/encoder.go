package kresponse

import (
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/enfabrica/nucleus/lib/khttp/kheader"
	"github.com/valyala/bytebufferpool"
)

// Encoder serializes responses on the wire.
//
// Headers are written in a fixed order: Content-Length, Content-Type, the
// default headers, the headers configured for the Mime of the response,
// and finally the extra headers of the response in the order they were added.
type Encoder struct {
	defaults []kheader.Header
	mime     map[Mime][]kheader.Header
}

type EncoderModifier func(*Encoder)

// WithDefaultHeaders adds headers sent with every response, like Server.
func WithDefaultHeaders(headers ...kheader.Into) EncoderModifier {
	return func(e *Encoder) {
		for _, h := range headers {
			e.defaults = append(e.defaults, h.Header())
		}
	}
}

// WithMimeHeaders adds headers sent only with responses of the specified Mime.
func WithMimeHeaders(m Mime, headers ...kheader.Into) EncoderModifier {
	return func(e *Encoder) {
		for _, h := range headers {
			e.mime[m] = append(e.mime[m], h.Header())
		}
	}
}

func NewEncoder(mods ...EncoderModifier) *Encoder {
	e := &Encoder{mime: map[Mime][]kheader.Header{}}
	for _, m := range mods {
		m(e)
	}
	return e
}

func (e *Encoder) encode(buffer *bytebufferpool.ByteBuffer, r *Response) {
	buffer.WriteString(r.version.String())
	buffer.WriteByte(' ')
	buffer.WriteString(r.status.String())
	buffer.WriteString("\r\n")

	buffer.WriteString("Content-Length: ")
	buffer.WriteString(strconv.Itoa(len(r.body)))
	buffer.WriteString("\r\n")

	mime := r.mime
	if mime == "" {
		mime = OctetStream
	}
	writeHeader(buffer, kheader.Header{Key: "content-type", Value: string(mime)})

	for _, h := range e.defaults {
		writeHeader(buffer, h)
	}
	for _, h := range e.mime[r.mime] {
		writeHeader(buffer, h)
	}
	for _, h := range r.headers {
		writeHeader(buffer, h)
	}
	buffer.WriteString("\r\n")
	buffer.Write(r.body)
}

// newlineToSpace keeps keys and values on a single line, so a value
// can't inject headers or terminate the header block.
var newlineToSpace = strings.NewReplacer("\n", " ", "\r", " ")

func writeHeader(buffer *bytebufferpool.ByteBuffer, h kheader.Header) {
	buffer.WriteString(newlineToSpace.Replace(textproto.CanonicalMIMEHeaderKey(h.Key)))
	buffer.WriteString(": ")
	buffer.WriteString(newlineToSpace.Replace(h.Value))
	buffer.WriteString("\r\n")
}

// Encode returns the serialized response.
func (e *Encoder) Encode(r *Response) []byte {
	buffer := bytebufferpool.Get()
	defer bytebufferpool.Put(buffer)

	e.encode(buffer, r)
	return append([]byte{}, buffer.B...)
}

// Write serializes the response on w with a single call to w.Write.
func (e *Encoder) Write(w io.Writer, r *Response) (int, error) {
	buffer := bytebufferpool.Get()
	defer bytebufferpool.Put(buffer)

	e.encode(buffer, r)
	return w.Write(buffer.B)
}
