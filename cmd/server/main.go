package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/toy-socket-calc/internal/config"
	"github.com/omochice/toy-socket-calc/internal/metrics"
	"github.com/omochice/toy-socket-calc/internal/poller"
	"github.com/omochice/toy-socket-calc/internal/server"
	"github.com/omochice/toy-socket-calc/internal/transport/tcp"
	"github.com/omochice/toy-socket-calc/pkg/calc"
)

var exampleUsage = strings.TrimSpace(`
  server 8080
  server 8080 --log-level debug --metrics-addr 127.0.0.1:9100
  server 8080 --config calc.toml --watch-config
`)

func main() {
	cfg := config.DefaultConfig()
	var (
		cfgPath     string
		watchConfig bool
	)

	root := &cobra.Command{
		Use:           "server <port>",
		Short:         "Serve arithmetic expressions over TCP on a single-threaded event loop",
		Example:       exampleUsage,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgPath != "" {
				fc, err := config.LoadFileConfig(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				config.ApplyFileConfig(&cfg, fc, changed)
			} else if watchConfig {
				return fmt.Errorf("--watch-config requires --config")
			}
			if err := config.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, port, cfg, cfgPath, watchConfig, log)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to a TOML config file")
	root.Flags().BoolVar(&watchConfig, "watch-config", false, "reload the log level when the config file changes")
	root.Flags().StringVar(&cfg.LogLevel, config.FlagLogLevel, cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	root.Flags().StringVar(&cfg.LogFormat, config.FlagLogFormat, cfg.LogFormat, "log format (console or json)")
	root.Flags().IntVar(&cfg.MaxEvents, config.FlagMaxEvents, cfg.MaxEvents, "maximum readiness events handled per wait")
	root.Flags().IntVar(&cfg.ReadBufferSize, config.FlagReadBuffer, cfg.ReadBufferSize, "read buffer size in bytes")
	root.Flags().StringVar(&cfg.MetricsAddr, config.FlagMetricsAddr, cfg.MetricsAddr, "address for the /metrics and /healthz endpoint (disabled when empty)")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, port int, cfg config.Config, cfgPath string, watch bool, log zerolog.Logger) error {
	sockets := tcp.Sockets{}

	listenFD, err := tcp.Listen(port)
	if err != nil {
		return err
	}
	defer sockets.Close(listenFD)

	ep, err := poller.NewEpoll()
	if err != nil {
		return err
	}
	defer ep.Close()

	m := metrics.New()
	srv := server.New(server.Config{
		MaxEvents:      cfg.MaxEvents,
		ReadBufferSize: cfg.ReadBufferSize,
		Evaluate:       calc.Evaluate,
		Logger:         log,
		Metrics:        m,
	}, ep, sockets, listenFD)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", port).Int("max_events", cfg.MaxEvents).Msg("server started")
		defer log.Info().Msg("server stopped")
		return srv.Serve(ctx)
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.MetricsAddr, m, log)
		})
	}

	if watch {
		w := config.NewWatcher(cfgPath, log, nil)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	return g.Wait()
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return port, nil
}
