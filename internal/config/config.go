// Package config holds the server's runtime settings and the layers they
// are read from: defaults, a TOML file, CALC_* environment variables and
// explicitly set flags, in increasing order of precedence.
package config

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/omochice/toy-socket-calc/internal/server"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Flag names, used to decide which layers a changed flag overrides.
const (
	FlagLogLevel    = "log-level"
	FlagLogFormat   = "log-format"
	FlagMaxEvents   = "max-events"
	FlagReadBuffer  = "read-buffer"
	FlagMetricsAddr = "metrics-addr"
)

type Config struct {
	LogLevel  string
	LogFormat string

	MaxEvents      int
	ReadBufferSize int

	// MetricsAddr enables the admin HTTP endpoint when not empty.
	MetricsAddr string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:       zerolog.InfoLevel.String(),
		LogFormat:      FormatConsole,
		MaxEvents:      server.DefaultMaxEvents,
		ReadBufferSize: server.DefaultReadBufferSize,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != FormatConsole && c.LogFormat != FormatJSON {
		return fmt.Errorf("log format must be %q or %q, got %q", FormatConsole, FormatJSON, c.LogFormat)
	}
	if c.MaxEvents <= 0 {
		return fmt.Errorf("max events must be positive, got %d", c.MaxEvents)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("read buffer must be positive, got %d", c.ReadBufferSize)
	}
	return nil
}

// ParseLevel parses a zerolog level name. The empty string is rejected.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.NoLevel, fmt.Errorf("log level is empty")
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return lvl, nil
}

// setter applies a layer's values unless the matching flag was set.
type setter struct {
	changed map[string]bool
}

func newSetter(changed map[string]bool) *setter {
	return &setter{changed: changed}
}

func (s *setter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *setter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntFromString parses value, which comes from the environment.
func (s *setter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	s.setInt(flag, i, dst)
	return nil
}
