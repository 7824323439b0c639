package tcp

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/omochice/toy-socket-calc/internal/poller"
)

// Sockets performs I/O on raw non-blocking descriptors. EAGAIN is reported
// as poller.ErrWouldBlock; every other error is returned as is.
type Sockets struct{}

// Accept takes one pending connection off the listener. The new socket is
// already non-blocking. Connections aborted before they were accepted are
// skipped.
func (Sockets) Accept(listenFD int) (int, string, error) {
	for {
		fd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == nil {
			return fd, peerString(sa), nil
		}
		switch {
		case wouldBlock(err):
			return -1, "", poller.ErrWouldBlock
		case errors.Is(err, unix.ECONNABORTED), errors.Is(err, unix.EINTR):
			continue
		}
		return -1, "", fmt.Errorf("accept: %w", err)
	}
}

// Read implements a single read(2). A zero count with a nil error means the
// peer closed its side.
func (Sockets) Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		if wouldBlock(err) {
			return 0, poller.ErrWouldBlock
		}
		return 0, fmt.Errorf("read fd %d: %w", fd, err)
	}
	return n, nil
}

// Write sends as much of p as the socket accepts. MSG_NOSIGNAL keeps a
// reset peer from raising SIGPIPE.
func (Sockets) Write(fd int, p []byte) (int, error) {
	n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL)
	if err != nil {
		if wouldBlock(err) {
			return 0, poller.ErrWouldBlock
		}
		return 0, fmt.Errorf("send fd %d: %w", fd, err)
	}
	return n, nil
}

// Close closes fd.
func (Sockets) Close(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close fd %d: %w", fd, err)
	}
	return nil
}

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func peerString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	}
	return "unknown"
}
