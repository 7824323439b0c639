package poller

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const hangupMask = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP

// Epoll is the Linux Poller backed by an edge-triggered epoll instance.
type Epoll struct {
	fd     int
	wakeFD int
	raw    []unix.EpollEvent
}

var _ Poller = (*Epoll)(nil)

// NewEpoll creates an epoll instance with an internal eventfd used by Wake.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		unix.Close(wakeFD)
		unix.Close(fd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}

	return &Epoll{fd: fd, wakeFD: wakeFD}, nil
}

// Add implements Poller.
func (e *Epoll) Add(fd int, in Interest) error {
	ev := unix.EpollEvent{Events: epollMask(in), Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Modify implements Poller. Re-arming an edge-triggered registration
// reports a condition that is already true again.
func (e *Epoll) Modify(fd int, in Interest) error {
	ev := unix.EpollEvent{Events: epollMask(in), Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("epoll ctl mod fd %d: %w", fd, ErrNotRegistered)
		}
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}
	return nil
}

// Remove implements Poller.
func (e *Epoll) Remove(fd int) error {
	var ev unix.EpollEvent
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, &ev); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("epoll ctl del fd %d: %w", fd, ErrNotRegistered)
		}
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait implements Poller. Wake notifications are consumed here and never
// reported, so Wait may return zero events.
func (e *Epoll) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(e.raw) < len(events) {
		e.raw = make([]unix.EpollEvent, len(events))
	}
	raw := e.raw[:len(events)]

	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}

	for {
		n, err := unix.EpollWait(e.fd, raw, msec)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EBADF) {
				return 0, ErrClosed
			}
			return 0, fmt.Errorf("epoll wait: %w", err)
		}

		k := 0
		for _, r := range raw[:n] {
			if int(r.Fd) == e.wakeFD {
				e.drainWake()
				continue
			}
			events[k] = Event{
				FD:       int(r.Fd),
				Readable: r.Events&(unix.EPOLLIN|hangupMask) != 0,
				Writable: r.Events&unix.EPOLLOUT != 0,
				Hangup:   r.Events&hangupMask != 0,
			}
			k++
		}
		return k, nil
	}
}

// Wake implements Poller.
func (e *Epoll) Wake() error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	if _, err := unix.Write(e.wakeFD, b[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// Close implements Poller.
func (e *Epoll) Close() error {
	werr := unix.Close(e.wakeFD)
	if err := unix.Close(e.fd); err != nil {
		return fmt.Errorf("epoll close: %w", err)
	}
	if werr != nil {
		return fmt.Errorf("eventfd close: %w", werr)
	}
	return nil
}

func (e *Epoll) drainWake() {
	var b [8]byte
	_, _ = unix.Read(e.wakeFD, b[:])
}

func epollMask(in Interest) uint32 {
	mask := uint32(unix.EPOLLRDHUP)
	if !in.Has(Level) {
		mask |= unix.EPOLLET
	}
	if in.Has(Readable) {
		mask |= unix.EPOLLIN
	}
	if in.Has(Writable) {
		mask |= unix.EPOLLOUT
	}
	return mask
}
