// Monitoring configuration - logging and metrics settings.
package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, or auto (console on a terminal)
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	MetricsEnabled bool   `yaml:"metrics_enabled"` // Print Prometheus metrics after each command
	EventLogPath   string `yaml:"event_log_path"`  // JSONL file for compaction and fix events
}

// Validate checks the monitoring section.
func (m MonitoringConfig) Validate() error {
	if _, err := zerolog.ParseLevel(m.LogLevel); err != nil {
		return fmt.Errorf("invalid monitoring.log_level: %q", m.LogLevel)
	}
	switch m.LogFormat {
	case "", "auto", "json", "console":
		return nil
	}
	return fmt.Errorf("invalid monitoring.log_format: %q (must be json, console or auto)", m.LogFormat)
}
