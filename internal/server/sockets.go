package server

// Sockets is the transport surface the event loop drives. Every method must
// be non-blocking: operations that cannot make progress return
// poller.ErrWouldBlock. The production implementation is tcp.Sockets.
type Sockets interface {
	// Accept takes one pending connection off the listener and returns its
	// descriptor, already non-blocking, and the peer address for logging.
	Accept(listenFD int) (fd int, peer string, err error)

	// Read reads into p. A zero count with a nil error means the peer
	// closed the connection.
	Read(fd int, p []byte) (int, error)

	// Write sends a prefix of p and returns its length.
	Write(fd int, p []byte) (int, error)

	// Close releases fd.
	Close(fd int) error
}
