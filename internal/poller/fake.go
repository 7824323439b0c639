package poller

import (
	"fmt"
	"sync"
	"time"
)

// Fake is a deterministic Poller for tests. Wait replays scripted batches
// in order and reports ErrClosed once the script runs out, which ends any
// loop driving it. Fake records every interest change so tests can assert
// on transitions.
type Fake struct {
	mu       sync.Mutex
	batches  [][]Event
	interest map[int]Interest
	history  map[int][]Interest
	removed  []int
	waits    int
	wakes    int
	closed   bool
}

var _ Poller = (*Fake)(nil)

// NewFake returns a Fake that will replay batches.
func NewFake(batches ...[]Event) *Fake {
	f := &Fake{
		interest: make(map[int]Interest),
		history:  make(map[int][]Interest),
	}
	f.Script(batches...)
	return f
}

// Script appends batches to the replay queue.
func (f *Fake) Script(batches ...[]Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batches...)
}

// Add implements Poller.
func (f *Fake) Add(fd int, in Interest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.interest[fd]; ok {
		return fmt.Errorf("fake add fd %d: already registered", fd)
	}
	f.interest[fd] = in
	f.history[fd] = append(f.history[fd], in)
	return nil
}

// Modify implements Poller.
func (f *Fake) Modify(fd int, in Interest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.interest[fd]; !ok {
		return fmt.Errorf("fake mod fd %d: %w", fd, ErrNotRegistered)
	}
	f.interest[fd] = in
	f.history[fd] = append(f.history[fd], in)
	return nil
}

// Remove implements Poller.
func (f *Fake) Remove(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.interest[fd]; !ok {
		return fmt.Errorf("fake del fd %d: %w", fd, ErrNotRegistered)
	}
	delete(f.interest, fd)
	f.removed = append(f.removed, fd)
	return nil
}

// Wait implements Poller. A batch longer than events is split across calls.
func (f *Fake) Wait(events []Event, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	if f.closed || len(f.batches) == 0 {
		return 0, ErrClosed
	}
	batch := f.batches[0]
	n := copy(events, batch)
	if n < len(batch) {
		f.batches[0] = batch[n:]
	} else {
		f.batches = f.batches[1:]
	}
	return n, nil
}

// Wake implements Poller.
func (f *Fake) Wake() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakes++
	return nil
}

// Close implements Poller.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Interest returns the current interest of fd and whether it is registered.
func (f *Fake) Interest(fd int) (Interest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.interest[fd]
	return in, ok
}

// History returns every interest set fd was given, starting with Add.
func (f *Fake) History(fd int) []Interest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Interest(nil), f.history[fd]...)
}

// Removed returns the descriptors passed to Remove, in order.
func (f *Fake) Removed() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.removed...)
}

// Waits returns how many times Wait was called.
func (f *Fake) Waits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waits
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
