package logger

import (
	"io"
)

// Logger is the interface used by the nucleus libraries to log messages.
//
// The zap SugaredLogger returned by klog satisfies it out of the box, as
// does logrus. DefaultLogger adapts any Printf like function.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})

	SetOutput(writer io.Writer)
}

// Printer is a Printf like function.
type Printer func(format string, args ...interface{})

// DefaultLogger implements the Logger interface.
//
// Printer must be provided. Use log.Printf to rely on default golang logging, with:
//
//	logger := &DefaultLogger{Printer: log.Printf}
type DefaultLogger struct {
	Printer Printer
	Setter  func(writer io.Writer)
}

func (dl DefaultLogger) Printf(format string, args ...interface{}) {
	dl.Printer(format, args...)
}
func (dl DefaultLogger) Debugf(format string, args ...interface{}) {
	dl.Printf("[debug] "+format, args...)
}
func (dl DefaultLogger) Infof(format string, args ...interface{}) {
	dl.Printf("[info] "+format, args...)
}
func (dl DefaultLogger) Errorf(format string, args ...interface{}) {
	dl.Printf("[error] "+format, args...)
}
func (dl DefaultLogger) Warnf(format string, args ...interface{}) {
	dl.Printf("[warning] "+format, args...)
}

func (dl DefaultLogger) SetOutput(output io.Writer) {
	if dl.Setter != nil {
		dl.Setter(output)
	}
}

// Nil is a pre-defined logger that will discard all the output.
var Nil Logger = &NilLogger{}

// NilLogger is a logger that discards all messages.
//
// Prefer using logger.Nil to instantiating your copy of &NilLogger{}.
type NilLogger struct{}

func (dl NilLogger) Printf(format string, args ...interface{}) {
}
func (dl NilLogger) Debugf(format string, args ...interface{}) {
}
func (dl NilLogger) Infof(format string, args ...interface{}) {
}
func (dl NilLogger) Errorf(format string, args ...interface{}) {
}
func (dl NilLogger) Warnf(format string, args ...interface{}) {
}
func (dl NilLogger) SetOutput(output io.Writer) {
}

// Prefixed returns a Logger prepending prefix to every message.
//
// Used to tag all the messages about one connection with its peer address.
func Prefixed(log Logger, prefix string) Logger {
	return &prefixed{Logger: log, prefix: prefix}
}

type prefixed struct {
	Logger
	prefix string
}

func (p *prefixed) Debugf(format string, args ...interface{}) {
	p.Logger.Debugf(p.prefix+format, args...)
}
func (p *prefixed) Infof(format string, args ...interface{}) {
	p.Logger.Infof(p.prefix+format, args...)
}
func (p *prefixed) Errorf(format string, args ...interface{}) {
	p.Logger.Errorf(p.prefix+format, args...)
}
func (p *prefixed) Warnf(format string, args ...interface{}) {
	p.Logger.Warnf(p.prefix+format, args...)
}

// IndentAndQuoteLines indents each line in the buffer with the specified string,
// converting all non-space / non-ascii printable characters to \xHH sequences.
//
// Handy to dump raw bytes received from the network, a malformed request for example.
func IndentAndQuoteLines(buffer, indent string) string {
	conv := [...]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}
	bindent := []byte(indent)
	cr := false
	result := append(make([]byte, 0, len(buffer)*2), bindent...)
	for _, ch := range []byte(buffer) {
		// Normalize \r\n to just \n.
		if cr {
			cr = false
			if ch == '\n' {
				continue
			}
		}
		switch {
		case (ch >= 0x20 && ch <= 0x7E) || ch == '\t':
			result = append(result, ch)
		case ch == '\n':
			result = append(result, ch)
			result = append(result, bindent...)
		case ch == '\r':
			result = append(result, '\n')
			result = append(result, bindent...)
			cr = true
		default:
			result = append(result, []byte("\\x")...)
			result = append(result, conv[(ch>>4)&0xf])
			result = append(result, conv[ch&0xf])
		}
	}
	return string(result)
}
