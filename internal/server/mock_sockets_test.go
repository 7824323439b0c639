package server

import (
	"github.com/omochice/toy-socket-calc/internal/poller"
)

// readStep is one scripted result of Sockets.Read.
type readStep struct {
	data string
	eof  bool
	err  error
}

// mockSockets is a scripted Sockets. Reads and accepts report
// ErrWouldBlock once their script is exhausted; writes accept everything
// unless a limit is scripted.
type mockSockets struct {
	accepts []int
	// acceptErrs fail successive accepts before any of accepts is handed out.
	acceptErrs []error
	reads      map[int][]readStep

	// writeLimits caps successive writes; a negative limit reports
	// ErrWouldBlock.
	writeLimits map[int][]int
	writeErr    map[int]error

	written    map[int][]byte
	readCalls  map[int]int
	writeCalls map[int]int
	closed     map[int]int
}

func newMockSockets() *mockSockets {
	return &mockSockets{
		reads:       make(map[int][]readStep),
		writeLimits: make(map[int][]int),
		writeErr:    make(map[int]error),
		written:     make(map[int][]byte),
		readCalls:   make(map[int]int),
		writeCalls:  make(map[int]int),
		closed:      make(map[int]int),
	}
}

// feed queues chunks that a single drain loop reads back to back.
func (m *mockSockets) feed(fd int, chunks ...string) {
	for _, c := range chunks {
		m.reads[fd] = append(m.reads[fd], readStep{data: c})
	}
}

// trickle queues chunks separated by would-block, so each chunk needs its
// own readiness event.
func (m *mockSockets) trickle(fd int, chunks ...string) {
	for _, c := range chunks {
		m.reads[fd] = append(m.reads[fd], readStep{data: c}, readStep{err: poller.ErrWouldBlock})
	}
}

func (m *mockSockets) Accept(int) (int, string, error) {
	if len(m.acceptErrs) > 0 {
		err := m.acceptErrs[0]
		m.acceptErrs = m.acceptErrs[1:]
		return -1, "", err
	}
	if len(m.accepts) == 0 {
		return -1, "", poller.ErrWouldBlock
	}
	fd := m.accepts[0]
	m.accepts = m.accepts[1:]
	return fd, "127.0.0.1:40000", nil
}

func (m *mockSockets) Read(fd int, p []byte) (int, error) {
	m.readCalls[fd]++
	steps := m.reads[fd]
	if len(steps) == 0 {
		return 0, poller.ErrWouldBlock
	}
	step := steps[0]
	switch {
	case step.err != nil:
		m.reads[fd] = steps[1:]
		return 0, step.err
	case step.eof:
		m.reads[fd] = steps[1:]
		return 0, nil
	}
	n := copy(p, step.data)
	if n < len(step.data) {
		m.reads[fd][0].data = step.data[n:]
	} else {
		m.reads[fd] = steps[1:]
	}
	return n, nil
}

func (m *mockSockets) Write(fd int, p []byte) (int, error) {
	m.writeCalls[fd]++
	if err := m.writeErr[fd]; err != nil {
		return 0, err
	}
	n := len(p)
	if limits := m.writeLimits[fd]; len(limits) > 0 {
		limit := limits[0]
		m.writeLimits[fd] = limits[1:]
		if limit < 0 {
			return 0, poller.ErrWouldBlock
		}
		if limit < n {
			n = limit
		}
	}
	m.written[fd] = append(m.written[fd], p[:n]...)
	return n, nil
}

func (m *mockSockets) Close(fd int) error {
	m.closed[fd]++
	return nil
}

var _ Sockets = (*mockSockets)(nil)
