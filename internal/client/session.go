package client

import (
	"github.com/omochice/toy-socket-calc/internal/poller"
	"github.com/omochice/toy-socket-calc/pkg/protocol"
)

// session is the client side of one connection: a single request sent in
// fragments and a single expected response.
type session struct {
	index int
	fd    int
	expr  string

	fragments [][]byte
	// fragIdx and offset locate the next byte to send.
	fragIdx int
	offset  int

	expected protocol.Result
	inbound  []byte
	interest poller.Interest
}

// pending reports whether part of the request is still unsent.
func (s *session) pending() bool {
	return s.fragIdx < len(s.fragments)
}

// chunk returns the unsent remainder of the current fragment.
func (s *session) chunk() []byte {
	return s.fragments[s.fragIdx][s.offset:]
}

// advance moves the cursor past n sent bytes of the current fragment.
func (s *session) advance(n int) {
	s.offset += n
	if s.offset == len(s.fragments[s.fragIdx]) {
		s.fragIdx++
		s.offset = 0
	}
}
