package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/omochice/toy-socket-calc/internal/poller"
	"github.com/omochice/toy-socket-calc/internal/registry"
	"github.com/omochice/toy-socket-calc/pkg/calc"
	"github.com/omochice/toy-socket-calc/pkg/protocol"
)

const (
	DefaultMaxEvents      = 1000
	DefaultReadBufferSize = 64
)

// ErrServerClosed marks a session whose server hung up before answering.
var ErrServerClosed = errors.New("server closed connection before responding")

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Config describes one load generation run.
type Config struct {
	// Operands is the number of operands per generated expression.
	Operands int

	// Sessions is the number of concurrent connections.
	Sessions int

	// Expressions, when set, replaces generated expressions. Sessions use
	// them in order, cycling when there are fewer expressions than
	// sessions.
	Expressions []string

	// Seed makes expression generation and fragmentation reproducible.
	Seed uint64

	MaxEvents      int
	ReadBufferSize int

	// Evaluate computes the expected responses.
	Evaluate calc.Evaluator

	Logger zerolog.Logger
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Sessions < 1 {
		return fmt.Errorf("connections must be at least 1, got %d", c.Sessions)
	}
	if len(c.Expressions) == 0 && c.Operands < 1 {
		return fmt.Errorf("operands must be at least 1, got %d", c.Operands)
	}
	return nil
}

// Report summarises a run.
type Report struct {
	Sessions   int
	Matched    int
	Mismatched int
	Failed     int
}

// OK reports whether every session got the expected answer.
func (r Report) OK() bool {
	return r.Matched == r.Sessions
}

// Runner drives every session of a run on one event loop.
type Runner struct {
	cfg     Config
	log     zerolog.Logger
	poller  poller.Poller
	sockets Sockets
	dial    Dialer
	rng     *rand.Rand

	sessions *registry.Table[*session]
	events   []poller.Event
	scratch  []byte
	report   Report
}

// NewRunner validates cfg and prepares a run. Nothing is dialled until Run.
func NewRunner(cfg Config, p poller.Poller, s Sockets, dial Dialer) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	if cfg.Evaluate == nil {
		cfg.Evaluate = calc.Evaluate
	}

	return &Runner{
		cfg:      cfg,
		log:      cfg.Logger,
		poller:   p,
		sockets:  s,
		dial:     dial,
		rng:      newRand(cfg.Seed),
		sessions: registry.New[*session](),
		events:   make([]poller.Event, cfg.MaxEvents),
		scratch:  make([]byte, cfg.ReadBufferSize),
		report:   Report{Sessions: cfg.Sessions},
	}, nil
}

// Run opens every session and processes events until each has been
// verified or has failed. Mismatches are reported, not returned as errors.
// Cancelling ctx abandons the remaining sessions, which count as failed.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	for i := 0; i < r.cfg.Sessions; i++ {
		r.open(i)
	}

	stop := context.AfterFunc(ctx, func() {
		if err := r.poller.Wake(); err != nil {
			r.log.Error().Err(err).Msg("failed to wake event loop")
		}
	})
	defer stop()

	for r.sessions.Len() > 0 {
		if err := ctx.Err(); err != nil {
			r.abandonAll(err)
			return r.report, err
		}
		n, err := r.poller.Wait(r.events, -1)
		if err != nil {
			r.abandonAll(err)
			return r.report, fmt.Errorf("wait for readiness: %w", err)
		}
		for _, ev := range r.events[:n] {
			r.dispatch(ev)
		}
	}
	return r.report, nil
}

// open prepares session i and starts its connection. A session that cannot
// be started counts as failed straight away.
func (r *Runner) open(i int) {
	expr := r.expression(i)
	v, err := r.cfg.Evaluate(expr)
	s := &session{
		index:     i,
		expr:      expr,
		fragments: Fragment(r.rng, protocol.AppendRequest(nil, expr)),
		expected:  protocol.ResultOf(v, err),
		interest:  poller.Readable | poller.Writable,
	}

	fd, err := r.dial()
	if err != nil {
		r.report.Failed++
		r.log.Error().Err(err).Int("conn", i).Msg("failed to connect")
		return
	}
	s.fd = fd

	if err := r.poller.Add(fd, s.interest); err != nil {
		r.closeFD(fd)
		r.report.Failed++
		r.log.Error().Err(err).Int("conn", i).Msg("failed to register connection")
		return
	}
	r.sessions.Insert(fd, s)

	r.log.Debug().
		Int("conn", i).
		Int("fd", fd).
		Str("expr", expr).
		Str("expected", string(s.expected.Append(nil))).
		Int("fragments", len(s.fragments)).
		Msg("opened connection")
}

func (r *Runner) expression(i int) string {
	if len(r.cfg.Expressions) > 0 {
		return r.cfg.Expressions[i%len(r.cfg.Expressions)]
	}
	return Expression(r.rng, r.cfg.Operands)
}

func (r *Runner) dispatch(ev poller.Event) {
	s, ok := r.sessions.Get(ev.FD)
	if !ok {
		return
	}
	if ev.Writable && s.pending() {
		if !r.send(s) {
			return
		}
	}
	if ev.Readable {
		r.receive(s)
	}
}

// send writes the request one fragment at a time until the socket would
// block. It reports false if the session ended.
func (r *Runner) send(s *session) bool {
	for s.pending() {
		n, err := r.sockets.Write(s.fd, s.chunk())
		if n > 0 {
			s.advance(n)
		}
		if err != nil {
			if errors.Is(err, poller.ErrWouldBlock) {
				break
			}
			r.fail(s, err)
			return false
		}
		if n == 0 {
			break
		}
	}

	if !s.pending() && s.interest.Has(poller.Writable) {
		if err := r.poller.Modify(s.fd, poller.Readable); err != nil {
			r.fail(s, err)
			return false
		}
		s.interest = poller.Readable
	}
	return true
}

// receive drains the socket and finishes the session once the response
// frame is complete.
func (r *Runner) receive(s *session) {
	eof := false
	for {
		n, err := r.sockets.Read(s.fd, r.scratch)
		if n > 0 {
			s.inbound = append(s.inbound, r.scratch[:n]...)
		}
		if err != nil {
			if errors.Is(err, poller.ErrWouldBlock) {
				break
			}
			r.fail(s, err)
			return
		}
		if n == 0 {
			eof = true
			break
		}
	}

	verdict := Verify(s.expected, s.inbound)
	switch {
	case verdict.Done:
		r.complete(s, verdict)
	case eof:
		r.fail(s, ErrServerClosed)
	}
}

func (r *Runner) complete(s *session, v Verdict) {
	r.finish(s)

	expected := string(s.expected.Append(nil))
	switch {
	case v.Err != nil:
		r.report.Mismatched++
		r.log.Warn().Err(v.Err).Int("conn", s.index).Str("expr", s.expr).Msg("malformed response")
	case v.Match:
		r.report.Matched++
		r.log.Info().Int("conn", s.index).Str("expr", s.expr).Str("result", expected).Msg("match")
	default:
		r.report.Mismatched++
		r.log.Warn().
			Int("conn", s.index).
			Str("expr", s.expr).
			Str("server", string(v.Got.Append(nil))).
			Stringer("server_kind", v.Got.Kind).
			Str("expected", expected).
			Stringer("expected_kind", s.expected.Kind).
			Msg("mismatch")
	}
}

func (r *Runner) fail(s *session, err error) {
	r.finish(s)
	r.report.Failed++
	r.log.Error().Err(err).Int("conn", s.index).Str("expr", s.expr).Msg("session failed")
}

func (r *Runner) abandonAll(cause error) {
	var open []*session
	r.sessions.Range(func(_ int, s *session) bool {
		open = append(open, s)
		return true
	})
	for _, s := range open {
		r.fail(s, cause)
	}
}

// finish closes the session's connection and forgets it; later bytes from
// the server are never read.
func (r *Runner) finish(s *session) {
	if !r.sessions.Remove(s.fd) {
		return
	}
	_ = r.poller.Remove(s.fd)
	r.closeFD(s.fd)
	s.inbound = nil
}

func (r *Runner) closeFD(fd int) {
	if err := r.sockets.Close(fd); err != nil {
		r.log.Warn().Err(err).Int("fd", fd).Msg("failed to close descriptor")
	}
}
