// Package poller abstracts the readiness notifier that drives the
// connection loops.
//
// Registrations are edge-triggered unless they include Level: once a
// descriptor is reported ready for a condition it is not reported again for
// that condition until the caller has driven it to exhaustion, i.e. read or
// written until the transport returns ErrWouldBlock. A caller that stops
// early will starve. Level registrations are reported on every Wait while
// the condition holds.
package poller

import (
	"errors"
	"time"
)

var (
	// ErrWouldBlock is the transport's signal that an operation cannot make
	// progress without blocking. It ends a drain loop and is never a failure.
	ErrWouldBlock = errors.New("operation would block")

	// ErrClosed is returned by Wait once the poller has been closed.
	ErrClosed = errors.New("poller closed")

	// ErrNotRegistered is returned by Modify and Remove for unknown descriptors.
	ErrNotRegistered = errors.New("descriptor not registered")
)

// Interest is the set of readiness conditions a descriptor is watched for.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable

	// Level switches the registration to level-triggered reporting. Use it
	// for descriptors whose drain can stop early, such as a listener that
	// runs out of descriptors while accepting.
	Level
)

// Has reports whether every condition in o is part of i.
func (i Interest) Has(o Interest) bool {
	return i&o == o
}

func (i Interest) String() string {
	var s string
	switch i &^ Level {
	case 0:
		s = "none"
	case Readable:
		s = "r"
	case Writable:
		s = "w"
	case Readable | Writable:
		s = "rw"
	default:
		return "invalid"
	}
	if i.Has(Level) {
		s += "+level"
	}
	return s
}

// Event reports the readiness of one descriptor. Hangup and error
// conditions are folded into Readable so that the read path observes the
// end of stream or the pending error itself; Hangup tells them apart from
// plain readability.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Hangup   bool
}

// Poller registers descriptors and waits for readiness.
type Poller interface {
	// Add starts watching fd for the conditions in in.
	Add(fd int, in Interest) error

	// Modify replaces the interest set of a registered fd.
	Modify(fd int, in Interest) error

	// Remove stops watching fd.
	Remove(fd int) error

	// Wait blocks until at least one registered descriptor is ready, Wake is
	// called, or timeout elapses, and fills events with the ready set. A
	// negative timeout waits indefinitely. Interrupted waits are retried
	// internally.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Wake makes a concurrent or subsequent Wait return early. It is the
	// only method that may be called from another goroutine.
	Wake() error

	// Close releases the poller.
	Close() error
}
