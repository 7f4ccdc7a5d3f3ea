// Package multierror collects several errors into one.
//
// It is used wherever a configuration is validated as a whole: rather than
// stopping at the first duplicate virtual host or malformed route, all the
// problems are reported at once.
package multierror

import (
	"strings"
)

const Separator = "\n "

// MultiError is a list of errors, itself an error.
//
// errors.Is and errors.As look through every error in the list.
type MultiError []error

var (
	_ error                         = MultiError{}
	_ interface{ Unwrap() []error } = MultiError{}
)

// New creates a MultiError from a list of errors, dropping nil entries.
//
// Returns nil if no non-nil error was supplied, so that the result can be
// returned directly:
//
//	return multierror.New(errs)
func New(errs []error) error {
	var filtered MultiError
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

// Wrap is a variadic version of New.
func Wrap(errs ...error) error {
	return New(errs)
}

// NewOr is just like New, but returns fallback instead of nil when the list is empty.
func NewOr(errs []error, fallback error) error {
	if err := New(errs); err != nil {
		return err
	}
	return fallback
}

// Unwrap returns the errors in the list.
func (multi MultiError) Unwrap() []error {
	return multi
}

func (multi MultiError) Error() string {
	messages := make([]string, 0, len(multi))
	for _, err := range multi {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, Separator)
}
