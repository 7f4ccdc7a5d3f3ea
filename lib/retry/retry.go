// A simple library to safely retry operations.
//
// Whenever you have an operation that can temporarily fail, like accepting
// a connection when the process is out of file descriptors, your code
// should have a strategy to retry the operation: wait some time before
// retrying, handle fatal and temporary errors differently, and possibly
// give up after a number of attempts.
//
// To use the retry library:
//
// 1) Create a `retry.Options` object, like:
//
//	options := retry.New(retry.WithWait(5 * time.Millisecond), retry.WithAttempts(10))
//
// 2) Run some code:
//
//	err := options.Run(ctx, func() error {
//	  ...
//	})
//
// The retry library will run your function until it succeeds, it returns
// a retry.FatalError (use retry.Fatal to create one), the attempts are
// exhausted, or the context is canceled.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/enfabrica/nucleus/lib/kflags"
	"github.com/enfabrica/nucleus/lib/logger"
	"github.com/enfabrica/nucleus/lib/multierror"
)

// Options are all the options that the Retry functions accept.
type Options struct {
	rng *rand.Rand
	// Log retries using this logger.
	logger logger.Logger
	// Description to add to log messages.
	description string

	Flags
}

type Flags struct {
	// How many times to retry the operation, at most. 0 means forever.
	AtMost int
	// How long to wait before the first retry.
	Wait time.Duration
	// Upper bound to the wait time, which doubles at each failed attempt.
	// A value <= Wait keeps the wait constant.
	MaxWait time.Duration
	// How much of a random retry time to add.
	Fuzzy time.Duration
	// How many errors to store at most.
	MaxErrors int
}

func DefaultFlags() *Flags {
	return &Flags{
		AtMost:    5,
		Wait:      1 * time.Second,
		Fuzzy:     1 * time.Second,
		MaxErrors: 10,
	}
}

func (fl *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.IntVar(&fl.AtMost, prefix+"retry-at-most", fl.AtMost, "How many time to retry the operation at most - 0 means forever")
	set.IntVar(&fl.MaxErrors, prefix+"retry-max-errors", fl.MaxErrors, "How many errors to record when retrying")
	set.DurationVar(&fl.Wait, prefix+"retry-wait", fl.Wait, "How long to wait after the first failed attempt")
	set.DurationVar(&fl.MaxWait, prefix+"retry-max-wait", fl.MaxWait, "The wait doubles at each failure, up to this value")
	set.DurationVar(&fl.Fuzzy, prefix+"retry-fuzzy", fl.Fuzzy, "How much randomized time to add to each retry-wait time")
	return fl
}

type Modifier func(*Options)

type Modifiers []Modifier

func (mods Modifiers) Apply(o *Options) *Options {
	for _, m := range mods {
		m(o)
	}
	return o
}

// WithDescription adds text used from logging, to distinguish a retry attempt from another.
//
// If you provide a description, you will get a log entry like:
//
//	attempt #1 - accept - FAILED - This is the string error received - will retry in 5ms
func WithDescription(desc string) Modifier {
	return func(o *Options) {
		o.description = desc
	}
}

// WithRng sets a random number generator to use. If not set, it just uses math.Rand.
// Convenient for testing.
func WithRng(rng *rand.Rand) Modifier {
	return func(o *Options) {
		o.rng = rng
	}
}

// WithWait sets how long to wait after the first failed attempt.
func WithWait(duration time.Duration) Modifier {
	return func(o *Options) {
		o.Wait = duration
	}
}

// WithMaxWait makes the wait double after each failed attempt, up to max.
func WithMaxWait(max time.Duration) Modifier {
	return func(o *Options) {
		o.MaxWait = max
	}
}

// WithFuzzy introduces a random offset from 0 to fuzzy time in between attempts.
func WithFuzzy(fuzzy time.Duration) Modifier {
	return func(o *Options) {
		o.Fuzzy = fuzzy
	}
}

// WithAttempts configures the number of attempts to perform. 0 means forever.
func WithAttempts(atmost int) Modifier {
	return func(o *Options) {
		o.AtMost = atmost
	}
}

// WithLogger configures a logger to send log messages to.
func WithLogger(log logger.Logger) Modifier {
	return func(o *Options) {
		o.logger = log
	}
}

// FromFlags configures a retry object from command line flags.
func FromFlags(fl *Flags) Modifier {
	return func(o *Options) {
		if fl == nil {
			return
		}

		o.Flags = *fl
	}
}

// New creates a new retry object.
func New(mods ...Modifier) *Options {
	return Modifiers(mods).Apply(&Options{
		Flags:  *DefaultFlags(),
		logger: logger.Nil,
	})
}

type FatalError struct {
	Original error
}

func (s *FatalError) Error() string {
	if s.Original != nil {
		return s.Original.Error()
	}
	return "requested to stop retrying"
}

func (s *FatalError) Unwrap() error {
	return s.Original
}

// Fatal turns a normal error into a fatal error.
//
// Fatal errors will stop the retrier immediately.
func Fatal(err error) *FatalError {
	return &FatalError{Original: err}
}

// Delay computes how long to wait after the failed attempt specified, 0 based.
//
// If Fuzzy is non 0, the delay is fuzzied by a random amount
// less than the value of fuzzy.
func (o *Options) Delay(attempt int) time.Duration {
	delay := o.Wait
	for i := 0; i < attempt && delay < o.MaxWait; i++ {
		delay *= 2
	}
	if o.MaxWait > o.Wait && delay > o.MaxWait {
		delay = o.MaxWait
	}

	if o.Fuzzy > 0 {
		r := rand.Int63n
		if o.rng != nil {
			r = o.rng.Int63n
		}
		delay += time.Duration(r(int64(o.Fuzzy)))
	}
	return delay
}

// ExaustedError is returned when the retrier has exhausted all attempts.
type ExaustedError struct {
	// Message is a human readable error message, returned by Error().
	Message string
	// Original is a multierror.MultiError containing the last MaxErrors errors.
	Original error
}

func (ee *ExaustedError) Error() string {
	return ee.Message
}

func (ee *ExaustedError) Unwrap() error {
	return ee.Original
}

// Run runs the function specified until it succeeds.
//
// Run will keep retrying running the function until either the function
// return a nil error, it returns a FatalError, all retry attempts as
// specified in Options are exhausted, or the context is canceled.
//
// A FatalError is returned unwrapped, the original error it carries.
// A canceled context returns the error of the context.
// When attempts are exhausted, the errors returned by the function are
// wrapped into an ExaustedError.
func (o *Options) Run(ctx context.Context, runner func() error) error {
	description := ""
	if o.description != "" {
		description = " - " + o.description
	}

	errs := []error{}
	for ix := 0; o.AtMost <= 0 || ix < o.AtMost; ix++ {
		err := runner()
		if err == nil {
			return nil
		}
		var stop *FatalError
		if errors.As(err, &stop) {
			return stop.Original
		}
		if len(errs) < o.MaxErrors {
			errs = append(errs, err)
		}

		delay := o.Delay(ix)
		o.logger.Infof("attempt #%d%s - FAILED - %s - will retry in %s", ix+1, description, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	err := multierror.New(errs)
	return &ExaustedError{Original: err, Message: fmt.Sprintf("gave up after %d attempts - %s", o.AtMost, err)}
}
