package config

import "os"

// ApplyEnvConfig applies configuration from CALC_* environment variables.
// It respects flags that have been explicitly set.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newSetter(changed)

	s.setString(FlagLogLevel, os.Getenv("CALC_LOG_LEVEL"), &cfg.LogLevel)
	s.setString(FlagLogFormat, os.Getenv("CALC_LOG_FORMAT"), &cfg.LogFormat)
	s.setString(FlagMetricsAddr, os.Getenv("CALC_METRICS_ADDR"), &cfg.MetricsAddr)

	if err := s.setIntFromString(FlagMaxEvents, os.Getenv("CALC_MAX_EVENTS"), &cfg.MaxEvents); err != nil {
		return err
	}
	if err := s.setIntFromString(FlagReadBuffer, os.Getenv("CALC_READ_BUFFER"), &cfg.ReadBufferSize); err != nil {
		return err
	}
	return nil
}
