package config

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig is the TOML form of Config. Zero values leave the
// corresponding setting alone.
type FileConfig struct {
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	MaxEvents      int    `toml:"max_events"`
	ReadBufferSize int    `toml:"read_buffer"`
	MetricsAddr    string `toml:"metrics_addr"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// ApplyFileConfig copies the file's settings into cfg, skipping those whose
// flag appears in changed.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) {
	s := newSetter(changed)

	s.setString(FlagLogLevel, fc.LogLevel, &cfg.LogLevel)
	s.setString(FlagLogFormat, fc.LogFormat, &cfg.LogFormat)
	s.setInt(FlagMaxEvents, fc.MaxEvents, &cfg.MaxEvents)
	s.setInt(FlagReadBuffer, fc.ReadBufferSize, &cfg.ReadBufferSize)
	s.setString(FlagMetricsAddr, fc.MetricsAddr, &cfg.MetricsAddr)
}
