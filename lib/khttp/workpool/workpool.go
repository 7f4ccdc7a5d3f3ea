// Package workpool runs work on a fixed set of goroutines.
//
// It is used to run handlers that block or burn CPU away from the goroutines
// serving connections, so a slow handler cannot starve the accept loop.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/enfabrica/nucleus/lib/kflags"
)

var ErrClosed = errors.New("workpool is closed")

type Work func()

type options struct {
	workers int

	normalQueueSize    int
	immediateQueueSize int
}

func DefaultOptions() *options {
	return &options{
		workers: runtime.NumCPU(),
	}
}

type WorkPool struct {
	// nq: Normal Queue, iq: Immediate Queue.
	// The only difference is that the iq is used more rarely, and likely to be empty.
	nq, iq chan Work
	wg     sync.WaitGroup

	lock   sync.RWMutex
	closed bool
}

type Modifier func(*options) error

type Modifiers []Modifier

func (mods Modifiers) Apply(o *options) error {
	for _, m := range mods {
		if err := m(o); err != nil {
			return err
		}
	}
	return nil
}

type Flags struct {
	QueueSize          int
	ImmediateQueueSize int
	Workers            int
}

func DefaultFlags() *Flags {
	options := DefaultOptions()
	return &Flags{
		Workers: options.workers,
	}
}

func (cf *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.IntVar(&cf.QueueSize, prefix+"workpool-queue-size", cf.QueueSize, "How many blocking handlers to queue before the connection submitting them waits")
	set.IntVar(&cf.ImmediateQueueSize, prefix+"workpool-immediate-queue-size", cf.ImmediateQueueSize, "How many immediate jobs to allow in queue before blocking the connection adding them")
	set.IntVar(&cf.Workers, prefix+"workpool-workers", cf.Workers, "How many blocking handlers to run in parallel")
	return cf
}

func FromFlags(flags *Flags) Modifier {
	return func(o *options) error {
		if flags == nil {
			return nil
		}

		if flags.QueueSize < 0 {
			return kflags.NewUsageError(fmt.Errorf("invalid workpool-queue-size %d - must be >= 0", flags.QueueSize))
		}
		if flags.ImmediateQueueSize < 0 {
			return kflags.NewUsageError(fmt.Errorf("invalid workpool-immediate-queue-size %d - must be >= 0", flags.ImmediateQueueSize))
		}
		if flags.Workers <= 0 {
			return kflags.NewUsageError(fmt.Errorf("invalid workpool-workers %d - must be > 0", flags.Workers))
		}

		o.normalQueueSize = flags.QueueSize
		o.immediateQueueSize = flags.ImmediateQueueSize
		o.workers = flags.Workers
		return nil
	}
}

func WithQueueSize(size int) Modifier {
	return func(o *options) error {
		o.normalQueueSize = size
		return nil
	}
}
func WithImmediateQueueSize(size int) Modifier {
	return func(o *options) error {
		o.immediateQueueSize = size
		return nil
	}
}
func WithWorkers(size int) Modifier {
	return func(o *options) error {
		if size <= 0 {
			return fmt.Errorf("invalid number of workers %d - must be > 0", size)
		}
		o.workers = size
		return nil
	}
}

// Creates a new WorkPool.
func New(mods ...Modifier) (*WorkPool, error) {
	o := DefaultOptions()
	if err := Modifiers(mods).Apply(o); err != nil {
		return nil, err
	}

	wp := &WorkPool{
		nq: make(chan Work, o.normalQueueSize),
		iq: make(chan Work, o.immediateQueueSize),
	}

	for ix := 0; ix < o.workers; ix++ {
		go wp.Do()
	}

	return wp, nil
}

func (wp *WorkPool) add(ctx context.Context, queue chan Work, work Work) error {
	wp.lock.RLock()
	defer wp.lock.RUnlock()
	if wp.closed {
		return ErrClosed
	}

	wp.wg.Add(1)
	select {
	case queue <- work:
		return nil
	case <-ctx.Done():
		wp.wg.Done()
		return ctx.Err()
	}
}

// Add queues work to be completed from one of the goroutines managed by the WorkPool.
//
// Add blocks while the queue is full, until ctx is canceled.
func (wp *WorkPool) Add(ctx context.Context, work Work) error {
	return wp.add(ctx, wp.nq, work)
}

// AddImmediate is just like Add, but uses a separate queue that workers always
// consume first. Work added with AddImmediate bypasses any work queued by Add.
func (wp *WorkPool) AddImmediate(ctx context.Context, work Work) error {
	return wp.add(ctx, wp.iq, work)
}

// Do runs an infinite loop processing all the work requested.
//
// Normally, Do() is invoked with 'go wp.Do()' from New,
// but you can call 'go wp.Do()' manually to spawn more workers.
func (wp *WorkPool) Do() {
	var work Work
	var ok bool
	for {
		// Always tries to consume from the immediate queue first.
		select {
		case work, ok = <-wp.iq:
			if !ok {
				return
			}
			wp.run(work)
			continue
		default:
		}

		// Now consume from whichever queue.
		select {
		case work, ok = <-wp.nq:
		case work, ok = <-wp.iq:
		}
		if !ok {
			return
		}
		wp.run(work)
	}
}

func (wp *WorkPool) run(work Work) {
	defer wp.wg.Done()
	work()
}

// Wait blocks until all the work queued is completed.
func (wp *WorkPool) Wait() {
	wp.wg.Wait()
}

// Done waits for all the work queued to be completed, to then terminate all the workers.
//
// Add and AddImmediate return ErrClosed after Done is called.
func (wp *WorkPool) Done() {
	wp.lock.Lock()
	if wp.closed {
		wp.lock.Unlock()
		return
	}
	wp.closed = true
	wp.lock.Unlock()

	wp.Wait()
	close(wp.nq)
	close(wp.iq)
}
