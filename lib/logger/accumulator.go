package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Represents a logging priority.
// Logging priorities map to the Debugf, Infof, Warnf, and Errorf printers.
type Priority int

const (
	DebugPriority Priority = iota
	InfoPriority
	WarnPriority
	ErrorPriority
)

// Event represents something that was logged.
type Event struct {
	Time     time.Time
	Priority Priority
	Message  string
}

// Accumulator is a thread safe object implementing the Logger interface that
// accumulates all messages being logged.
//
// Tests use it to check what a server logged, Retrieve() or Forward() hand
// the accumulated messages over.
type Accumulator struct {
	lock  sync.Mutex
	event []Event
}

func PrintEvent(ev *Event, log Logger) {
	switch ev.Priority {
	case InfoPriority:
		log.Infof("%s", ev.Message)
	case WarnPriority:
		log.Warnf("%s", ev.Message)
	case DebugPriority:
		log.Debugf("%s", ev.Message)
	case ErrorPriority:
		log.Errorf("%s", ev.Message)
	}
}

func (dl *Accumulator) Forward(log Logger) {
	for _, ev := range dl.Retrieve() {
		PrintEvent(&ev, log)
	}
}

// Retrieve returns and forgets the accumulated events.
func (dl *Accumulator) Retrieve() []Event {
	dl.lock.Lock()
	defer dl.lock.Unlock()
	events := dl.event
	dl.event = nil
	return events
}

// Contains returns true if a message logged with at least the specified
// priority contains substring. Accumulated events are kept.
func (dl *Accumulator) Contains(min Priority, substring string) bool {
	dl.lock.Lock()
	defer dl.lock.Unlock()
	for _, ev := range dl.event {
		if ev.Priority >= min && strings.Contains(ev.Message, substring) {
			return true
		}
	}
	return false
}

func (dl *Accumulator) Add(prio Priority, format string, args ...interface{}) {
	dl.lock.Lock()
	defer dl.lock.Unlock()

	dl.event = append(dl.event, Event{
		Priority: prio,
		Message:  fmt.Sprintf(format, args...),
		Time:     time.Now(),
	})
}
func (dl *Accumulator) Debugf(format string, args ...interface{}) {
	dl.Add(DebugPriority, format, args...)
}
func (dl *Accumulator) Infof(format string, args ...interface{}) {
	dl.Add(InfoPriority, format, args...)
}
func (dl *Accumulator) Errorf(format string, args ...interface{}) {
	dl.Add(ErrorPriority, format, args...)
}
func (dl *Accumulator) Warnf(format string, args ...interface{}) {
	dl.Add(WarnPriority, format, args...)
}
func (dl *Accumulator) SetOutput(writer io.Writer) {
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}
