package kresponse

import (
	"strconv"
)

type Status int

const (
	StatusContinue             Status = 100
	StatusOK                   Status = 200
	StatusMovedPermanently     Status = 301
	StatusFound                Status = 302
	StatusBadRequest           Status = 400
	StatusUnauthorized         Status = 401
	StatusForbidden            Status = 403
	StatusNotFound             Status = 404
	StatusPayloadTooLarge      Status = 413
	StatusHeaderFieldsTooLarge Status = 431
	StatusInternalServerError  Status = 500
)

var reasons = map[Status]string{
	StatusContinue:             "Continue",
	StatusOK:                   "OK",
	StatusMovedPermanently:     "Moved Permanently",
	StatusFound:                "Found",
	StatusBadRequest:           "Bad Request",
	StatusUnauthorized:         "Unauthorized",
	StatusForbidden:            "Forbidden",
	StatusNotFound:             "Not Found",
	StatusPayloadTooLarge:      "Payload Too Large",
	StatusHeaderFieldsTooLarge: "Request Header Fields Too Large",
	StatusInternalServerError:  "Internal Server Error",
}

// Reason returns the reason phrase sent in the status line.
func (s Status) Reason() string {
	return reasons[s]
}

// Valid returns true if the status is one of the known constants.
func (s Status) Valid() bool {
	_, found := reasons[s]
	return found
}

// String returns the code followed by the reason, like "404 Not Found".
func (s Status) String() string {
	return strconv.Itoa(int(s)) + " " + s.Reason()
}
