// Package config holds the ambient configuration structs shared by the
// broker, worker, and client command-line entry points.
package config

// LokiConfig configures optional shipping of structured log entries to a
// Loki endpoint via lokirus.
type LokiConfig struct {
	Address string            `yaml:"address" mapstructure:"address"`
	Labels  map[string]string `yaml:"labels" mapstructure:"labels"`
}

// LogConfig configures internal/log.Initialize. Formatter selects between
// "text" and "json" logrus formatters; Level is any logrus.ParseLevel
// string.
type LogConfig struct {
	Formatter string     `yaml:"formatter" mapstructure:"formatter"`
	Level     string     `yaml:"level" mapstructure:"level"`
	Loki      LokiConfig `yaml:"loki" mapstructure:"loki"`
}
