// Package tcp provides the raw non-blocking TCP sockets driven by the
// event loops.
package tcp

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Listen opens a non-blocking IPv4 listening socket bound to every
// interface on port, with SO_REUSEADDR set and the system's maximum
// backlog. Port 0 picks an ephemeral port; see LocalPort.
func Listen(port int) (int, error) {
	if port < 0 || port > 65535 {
		return -1, fmt.Errorf("invalid port %d", port)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind port %d: %w", port, err)
	}

	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}

	return fd, nil
}

// LocalPort returns the port a socket is bound to.
func LocalPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("getsockname: %w", err)
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return a.Port, nil
	case *unix.SockaddrInet6:
		return a.Port, nil
	}
	return 0, fmt.Errorf("getsockname: unexpected address family %T", sa)
}

// ResolveIPv4 resolves host to an IPv4 address.
func ResolveIPv4(host string) ([4]byte, error) {
	var out [4]byte
	addr, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return out, fmt.Errorf("resolve %q: %w", host, err)
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return out, fmt.Errorf("resolve %q: no IPv4 address", host)
	}
	copy(out[:], ip4)
	return out, nil
}

// Dial starts a non-blocking connect to addr:port and returns the socket
// immediately. Completion, or failure, is observed as write readiness.
func Dial(addr [4]byte, port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	err = unix.Connect(fd, &unix.SockaddrInet4{Addr: addr, Port: port})
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		unix.Close(fd)
		return -1, fmt.Errorf("connect %s: %w", net.JoinHostPort(net.IP(addr[:]).String(), fmt.Sprint(port)), err)
	}

	return fd, nil
}
