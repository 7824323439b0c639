package server

import "github.com/omochice/toy-socket-calc/internal/poller"

// Conn is the state the event loop keeps for one accepted connection.
// It is created at accept time and discarded at teardown; only the loop
// goroutine touches it.
type Conn struct {
	fd   int
	peer string

	// inbound holds bytes read but not yet framed. It is only ever consumed
	// from the front.
	inbound []byte

	// outbound holds encoded responses not yet accepted by the socket.
	outbound []byte

	// interest mirrors the registration with the poller. It contains
	// poller.Writable exactly when outbound is non-empty, outside of a
	// dispatch in progress.
	interest poller.Interest
}

func newConn(fd int, peer string) *Conn {
	return &Conn{
		fd:       fd,
		peer:     peer,
		interest: poller.Readable,
	}
}

// consumeInbound drops the first n bytes of inbound, moving the remainder
// to the front so no stale prefix is retained.
func (c *Conn) consumeInbound(n int) {
	if n == 0 {
		return
	}
	rest := copy(c.inbound, c.inbound[n:])
	c.inbound = c.inbound[:rest]
}

// discardOutbound drops the first n bytes of outbound once they are sent.
func (c *Conn) discardOutbound(n int) {
	rest := copy(c.outbound, c.outbound[n:])
	c.outbound = c.outbound[:rest]
}

func (c *Conn) release() {
	c.inbound = nil
	c.outbound = nil
	c.interest = 0
}
