// Package server implements the single-threaded calculator event loop.
//
// One goroutine owns the poller, the connection registry and every
// connection buffer. Readiness events are dispatched either to the accept
// loop (listener) or to the read path followed by the write path of an
// accepted connection.
//
// Known limitations: there are no timeouts, so a peer that sends half a
// frame and goes silent keeps its registry slot, and outbound buffers are
// unbounded, so a peer that never reads grows its buffer without limit.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/omochice/toy-socket-calc/internal/metrics"
	"github.com/omochice/toy-socket-calc/internal/poller"
	"github.com/omochice/toy-socket-calc/internal/registry"
	"github.com/omochice/toy-socket-calc/pkg/calc"
	"github.com/omochice/toy-socket-calc/pkg/protocol"
)

const (
	DefaultMaxEvents      = 1000
	DefaultReadBufferSize = 512
)

// Config tunes a Server. Zero values select the defaults.
type Config struct {
	// MaxEvents bounds the number of readiness events handled per wait.
	MaxEvents int

	// ReadBufferSize is the size of the scratch buffer used by the read
	// path.
	ReadBufferSize int

	// Evaluate computes the response for each request frame.
	Evaluate calc.Evaluator

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// outcome is what a per-connection handler reports back to the dispatcher.
type outcome int

const (
	outcomeContinue outcome = iota
	outcomeClosed
)

// Server is the calculator event loop.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	metrics  *metrics.Metrics
	poller   poller.Poller
	sockets  Sockets
	listenFD int

	conns   *registry.Table[*Conn]
	active  atomic.Int64
	events  []poller.Event
	scratch []byte
}

// New creates a Server for an already listening, non-blocking socket.
// The caller keeps ownership of listenFD and of the poller.
func New(cfg Config, p poller.Poller, s Sockets, listenFD int) *Server {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.Evaluate == nil {
		cfg.Evaluate = calc.Evaluate
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	return &Server{
		cfg:      cfg,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
		poller:   p,
		sockets:  s,
		listenFD: listenFD,
		conns:    registry.New[*Conn](),
		events:   make([]poller.Event, cfg.MaxEvents),
		scratch:  make([]byte, cfg.ReadBufferSize),
	}
}

// Serve registers the listener and runs the event loop until ctx is
// cancelled or the poller is closed. Open connections are closed without
// draining on return.
//
// The listener is level-triggered: an accept that fails for lack of
// descriptors leaves connections in the backlog, and they are picked up on
// the next wait instead of waiting for a new arrival.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.poller.Add(s.listenFD, poller.Readable|poller.Level); err != nil {
		return fmt.Errorf("failed to register listener: %w", err)
	}
	defer s.closeAll()

	stop := context.AfterFunc(ctx, func() {
		if err := s.poller.Wake(); err != nil {
			s.log.Error().Err(err).Msg("failed to wake event loop")
		}
	})
	defer stop()

	return s.run(ctx)
}

// ConnCount returns the number of live connections. It is safe to call
// from any goroutine.
func (s *Server) ConnCount() int {
	return int(s.active.Load())
}

func (s *Server) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := s.poller.Wait(s.events, -1)
		if err != nil {
			if errors.Is(err, poller.ErrClosed) {
				return nil
			}
			return fmt.Errorf("wait for readiness: %w", err)
		}
		for _, ev := range s.events[:n] {
			s.dispatch(ev)
		}
	}
}

func (s *Server) dispatch(ev poller.Event) {
	if ev.FD == s.listenFD {
		s.acceptAll()
		return
	}

	c, ok := s.conns.Get(ev.FD)
	if !ok {
		// Left over from a connection torn down earlier in this batch.
		s.metrics.StrayEvent()
		s.log.Debug().Int("fd", ev.FD).Msg("ignoring event for closed connection")
		return
	}

	if ev.Hangup {
		s.log.Debug().Int("fd", c.fd).Str("peer", c.peer).Msg("peer hung up")
	}
	if ev.Readable {
		if s.handleRead(c) == outcomeClosed {
			return
		}
	}
	if ev.Writable || len(c.outbound) > 0 {
		s.handleWrite(c)
	}
}

// acceptAll accepts until the listener would block.
func (s *Server) acceptAll() {
	for {
		fd, peer, err := s.sockets.Accept(s.listenFD)
		if err != nil {
			if !errors.Is(err, poller.ErrWouldBlock) {
				s.log.Warn().Err(err).Msg("failed to accept connection")
			}
			return
		}

		if err := s.poller.Add(fd, poller.Readable); err != nil {
			s.log.Warn().Err(err).Int("fd", fd).Msg("failed to register connection")
			s.closeFD(fd)
			continue
		}

		c := newConn(fd, peer)
		if !s.conns.Insert(fd, c) {
			s.log.Error().Int("fd", fd).Msg("descriptor already registered")
			_ = s.poller.Remove(fd)
			s.closeFD(fd)
			continue
		}
		s.active.Add(1)
		s.metrics.ConnectionAccepted()
		s.log.Debug().Int("fd", fd).Str("peer", peer).Msg("accepted connection")
	}
}

// handleRead drains the socket, then turns every complete frame into a
// queued response.
func (s *Server) handleRead(c *Conn) outcome {
	for {
		n, err := s.sockets.Read(c.fd, s.scratch)
		if n > 0 {
			c.inbound = append(c.inbound, s.scratch[:n]...)
			s.metrics.BytesRead(n)
		}
		if err != nil {
			if errors.Is(err, poller.ErrWouldBlock) {
				break
			}
			s.teardown(c, metrics.ReasonError, err)
			return outcomeClosed
		}
		if n == 0 {
			s.teardown(c, metrics.ReasonPeerClosed, nil)
			return outcomeClosed
		}
	}

	s.processFrames(c)

	if len(c.outbound) > 0 {
		if err := s.setInterest(c, poller.Readable|poller.Writable); err != nil {
			s.teardown(c, metrics.ReasonError, err)
			return outcomeClosed
		}
	}
	return outcomeContinue
}

// processFrames evaluates every complete frame in inbound, in order.
// Evaluation failures become error responses and never affect the
// connection.
func (s *Server) processFrames(c *Conn) {
	consumed := 0
	for {
		frame, n, ok := protocol.NextFrame(c.inbound[consumed:])
		if !ok {
			break
		}
		consumed += n

		v, err := s.cfg.Evaluate(string(frame))
		start := len(c.outbound)
		c.outbound = protocol.ResultOf(v, err).Append(c.outbound)
		s.metrics.FrameEvaluated(err != nil)

		if e := s.log.Debug(); e.Enabled() {
			e.Int("fd", c.fd).
				Bytes("expr", frame).
				Bytes("reply", c.outbound[start:len(c.outbound)-1]).
				AnErr("cause", err).
				Msg("evaluated frame")
		}
	}
	c.consumeInbound(consumed)
}

// handleWrite sends queued responses until the socket would block.
func (s *Server) handleWrite(c *Conn) outcome {
	for len(c.outbound) > 0 {
		n, err := s.sockets.Write(c.fd, c.outbound)
		if n > 0 {
			c.discardOutbound(n)
			s.metrics.BytesWritten(n)
		}
		if err != nil {
			if errors.Is(err, poller.ErrWouldBlock) {
				break
			}
			s.teardown(c, metrics.ReasonError, err)
			return outcomeClosed
		}
		if n == 0 {
			break
		}
	}

	if len(c.outbound) == 0 {
		if err := s.setInterest(c, poller.Readable); err != nil {
			s.teardown(c, metrics.ReasonError, err)
			return outcomeClosed
		}
	}
	return outcomeContinue
}

// setInterest updates the poller registration only when it changes.
func (s *Server) setInterest(c *Conn, in poller.Interest) error {
	if c.interest == in {
		return nil
	}
	if err := s.poller.Modify(c.fd, in); err != nil {
		return err
	}
	c.interest = in
	return nil
}

// teardown closes the connection and forgets it. Calling it again for the
// same connection does nothing.
func (s *Server) teardown(c *Conn, reason string, cause error) {
	if !s.conns.Remove(c.fd) {
		return
	}
	_ = s.poller.Remove(c.fd)
	s.closeFD(c.fd)
	c.release()

	s.active.Add(-1)
	s.metrics.ConnectionClosed(reason)

	if cause != nil {
		s.log.Warn().Err(cause).Int("fd", c.fd).Str("peer", c.peer).Msg("connection closed on error")
		return
	}
	s.log.Debug().Int("fd", c.fd).Str("peer", c.peer).Str("reason", reason).Msg("connection closed")
}

func (s *Server) closeAll() {
	var open []*Conn
	s.conns.Range(func(_ int, c *Conn) bool {
		open = append(open, c)
		return true
	})
	for _, c := range open {
		s.teardown(c, metrics.ReasonShutdown, nil)
	}
}

func (s *Server) closeFD(fd int) {
	if err := s.sockets.Close(fd); err != nil {
		s.log.Warn().Err(err).Int("fd", fd).Msg("failed to close descriptor")
	}
}
