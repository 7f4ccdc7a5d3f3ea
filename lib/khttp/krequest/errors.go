package krequest

import (
	"errors"
	"fmt"
)

var (
	// Retryable: the headers are not complete yet.
	ErrMissingBlankLine = errors.New("missing blank line terminating headers")
	// Retryable: matched by every *WaitingOnBodyError.
	ErrWaitingOnBody = errors.New("waiting on body")

	ErrInvalidString            = errors.New("invalid request string")
	ErrInvalidMethod            = errors.New("invalid method")
	ErrInvalidHTTPVersion       = errors.New("invalid http version")
	ErrNoHostHeader             = errors.New("no host header")
	ErrInvalidContentLength     = errors.New("invalid content length")
	ErrMissingContentLength     = errors.New("missing content length")
	ErrMissingMultiPartBoundary = errors.New("missing multipart boundary")
	ErrInvalidUrlEncodedForm    = errors.New("invalid url encoded form")
	ErrBodyExceedsContentLength = errors.New("body exceeds content length")

	ErrHeaderTooLarge = errors.New("request headers too large")
	ErrBodyTooLarge   = errors.New("request body too large")
)

// WaitingOnBodyError is returned when the headers have been received but the
// body is not complete yet.
//
// Remaining is how many more bytes are needed, or -1 if unknown, like for
// multipart bodies without a Content-Length.
type WaitingOnBodyError struct {
	Remaining int
}

func (e *WaitingOnBodyError) Error() string {
	if e.Remaining < 0 {
		return "waiting on body: unknown number of bytes missing"
	}
	return fmt.Sprintf("waiting on body: %d bytes missing", e.Remaining)
}

func (e *WaitingOnBodyError) Is(target error) bool {
	return target == ErrWaitingOnBody
}

// IsIncomplete returns true if the error means that more data must be read
// before the request can be parsed.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrMissingBlankLine) || errors.Is(err, ErrWaitingOnBody)
}

// Remaining returns the number of bytes still missing from the body, if known.
func Remaining(err error) (int, bool) {
	var werr *WaitingOnBodyError
	if !errors.As(err, &werr) || werr.Remaining < 0 {
		return 0, false
	}
	return werr.Remaining, true
}
