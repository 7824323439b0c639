// Package client implements the calculator load generator.
//
// The generator opens many non-blocking connections on a single event loop,
// sends each one a random expression split into random fragments, and
// verifies the single response against a locally computed expectation.
package client

// Sockets is the transport surface the runner drives. Operations that
// cannot make progress return poller.ErrWouldBlock.
type Sockets interface {
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
	Close(fd int) error
}

// Dialer starts a non-blocking connect to the server and returns the
// descriptor without waiting for the connection to complete.
type Dialer func() (int, error)
