package client

import (
	"errors"

	"github.com/omochice/toy-socket-calc/internal/poller"
	"github.com/omochice/toy-socket-calc/pkg/calc"
	"github.com/omochice/toy-socket-calc/pkg/protocol"
)

// peer is the server end of one mocked connection.
type peer struct {
	received []byte
	pending  []byte
	reply    []byte
	answered []byte
	hangup   bool
}

// mockServer is a Sockets whose descriptors behave like connections to a
// calculator server: complete frames written by the client are evaluated
// and their replies become readable.
type mockServer struct {
	evaluate calc.Evaluator
	peers    map[int]*peer

	// maxWrite caps the bytes accepted per Write; zero means no cap.
	maxWrite int
	// silent peers never answer and hang up instead.
	silent map[int]bool
	// dialErrs fail successive dials before any descriptor is handed out.
	dialErrs []error

	nextFD int
	writes map[int]int
	closed map[int]int
}

func newMockServer(evaluate calc.Evaluator) *mockServer {
	return &mockServer{
		evaluate: evaluate,
		peers:    make(map[int]*peer),
		silent:   make(map[int]bool),
		nextFD:   100,
		writes:   make(map[int]int),
		closed:   make(map[int]int),
	}
}

func (m *mockServer) dial() (int, error) {
	if len(m.dialErrs) > 0 {
		err := m.dialErrs[0]
		m.dialErrs = m.dialErrs[1:]
		if err != nil {
			return -1, err
		}
	}
	fd := m.nextFD
	m.nextFD++
	m.peers[fd] = &peer{}
	return fd, nil
}

func (m *mockServer) Write(fd int, p []byte) (int, error) {
	pr, ok := m.peers[fd]
	if !ok {
		return 0, errors.New("write on unknown descriptor")
	}
	m.writes[fd]++
	n := len(p)
	if m.maxWrite > 0 && n > m.maxWrite {
		n = m.maxWrite
	}
	pr.received = append(pr.received, p[:n]...)
	pr.pending = append(pr.pending, p[:n]...)

	for {
		frame, used, ok := protocol.NextFrame(pr.pending)
		if !ok {
			break
		}
		if m.silent[fd] {
			pr.hangup = true
		} else {
			out := protocol.ResultOf(m.evaluate(string(frame))).Append(nil)
			pr.reply = append(pr.reply, out...)
			pr.answered = append(pr.answered, out...)
		}
		pr.pending = pr.pending[used:]
	}
	return n, nil
}

func (m *mockServer) Read(fd int, p []byte) (int, error) {
	pr, ok := m.peers[fd]
	if !ok {
		return 0, errors.New("read on unknown descriptor")
	}
	if len(pr.reply) == 0 {
		if pr.hangup {
			return 0, nil
		}
		return 0, poller.ErrWouldBlock
	}
	n := copy(p, pr.reply)
	pr.reply = pr.reply[n:]
	return n, nil
}

func (m *mockServer) Close(fd int) error {
	m.closed[fd]++
	return nil
}
