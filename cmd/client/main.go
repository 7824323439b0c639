package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/omochice/toy-socket-calc/internal/client"
	"github.com/omochice/toy-socket-calc/internal/config"
	"github.com/omochice/toy-socket-calc/internal/poller"
	"github.com/omochice/toy-socket-calc/internal/transport/tcp"
	"github.com/omochice/toy-socket-calc/pkg/calc"
)

var exampleUsage = strings.TrimSpace(`
  client 5 100 127.0.0.1 8080
  client 3 10 localhost 8080 --seed 42 --log-level debug
  client 1 2 127.0.0.1 8080 --expr "2+3*4" --expr "5/0" --strict
`)

type options struct {
	seed      uint64
	exprs     []string
	maxEvents int
	readBuf   int
	strict    bool
	logLevel  string
	logFormat string
}

func main() {
	opts := options{
		maxEvents: client.DefaultMaxEvents,
		readBuf:   client.DefaultReadBufferSize,
		logLevel:  zerolog.InfoLevel.String(),
		logFormat: config.FormatConsole,
	}

	root := &cobra.Command{
		Use:           "client <operands> <connections> <addr> <port>",
		Short:         "Load the calculator server with random fragmented expressions and verify every answer",
		Example:       exampleUsage,
		Args:          cobra.ExactArgs(4),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, addr, port, err := parseArgs(args, opts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("seed") {
				cfg.Seed = uint64(time.Now().UnixNano())
			}

			log, err := config.NewLogger(opts.logLevel, opts.logFormat, os.Stderr)
			if err != nil {
				return err
			}
			cfg.Logger = log
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			report, err := run(ctx, cfg, addr, port, log)
			if err != nil {
				return err
			}
			if opts.strict && !report.OK() {
				return fmt.Errorf("%d of %d sessions did not match", report.Sessions-report.Matched, report.Sessions)
			}
			return nil
		},
	}

	root.Flags().Uint64Var(&opts.seed, "seed", 0, "seed for expression generation and fragmentation (random when unset)")
	root.Flags().StringArrayVar(&opts.exprs, "expr", nil, "send this expression instead of a generated one (repeatable)")
	root.Flags().IntVar(&opts.maxEvents, config.FlagMaxEvents, opts.maxEvents, "maximum readiness events handled per wait")
	root.Flags().IntVar(&opts.readBuf, config.FlagReadBuffer, opts.readBuf, "read buffer size in bytes")
	root.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when any session mismatches or fails")
	root.Flags().StringVar(&opts.logLevel, config.FlagLogLevel, opts.logLevel, "log level (trace, debug, info, warn, error)")
	root.Flags().StringVar(&opts.logFormat, config.FlagLogFormat, opts.logFormat, "log format (console or json)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string, opts options) (client.Config, [4]byte, int, error) {
	var addr [4]byte

	operands, err := strconv.Atoi(args[0])
	if err != nil {
		return client.Config{}, addr, 0, fmt.Errorf("invalid operand count %q: %w", args[0], err)
	}
	sessions, err := strconv.Atoi(args[1])
	if err != nil {
		return client.Config{}, addr, 0, fmt.Errorf("invalid connection count %q: %w", args[1], err)
	}
	addr, err = tcp.ResolveIPv4(args[2])
	if err != nil {
		return client.Config{}, addr, 0, err
	}
	port, err := strconv.Atoi(args[3])
	if err != nil {
		return client.Config{}, addr, 0, fmt.Errorf("invalid port %q: %w", args[3], err)
	}
	if port < 1 || port > 65535 {
		return client.Config{}, addr, 0, fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	cfg := client.Config{
		Operands:       operands,
		Sessions:       sessions,
		Expressions:    opts.exprs,
		Seed:           opts.seed,
		MaxEvents:      opts.maxEvents,
		ReadBufferSize: opts.readBuf,
		Evaluate:       calc.Evaluate,
	}
	if err := cfg.Validate(); err != nil {
		return client.Config{}, addr, 0, err
	}
	return cfg, addr, port, nil
}

func run(ctx context.Context, cfg client.Config, addr [4]byte, port int, log zerolog.Logger) (client.Report, error) {
	ep, err := poller.NewEpoll()
	if err != nil {
		return client.Report{}, err
	}
	defer ep.Close()

	r, err := client.NewRunner(cfg, ep, tcp.Sockets{}, func() (int, error) {
		return tcp.Dial(addr, port)
	})
	if err != nil {
		return client.Report{}, err
	}

	log.Info().
		Int("connections", cfg.Sessions).
		Int("operands", cfg.Operands).
		Uint64("seed", cfg.Seed).
		Msg("starting load")

	start := time.Now()
	report, err := r.Run(ctx)
	log.Info().
		Int("sessions", report.Sessions).
		Int("matched", report.Matched).
		Int("mismatched", report.Mismatched).
		Int("failed", report.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("load finished")
	return report, err
}
