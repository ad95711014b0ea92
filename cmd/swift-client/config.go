package main

import (
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/michel4j/swift-rpc/internal/config"
)

// clientSettings is the client's viper-bound configuration: connection
// address and the heartbeat interval for the liveness monitor. It has no
// method allowlist setting, so the client always bootstraps its allowed
// methods through a client_config call.
type clientSettings struct {
	Service          config.ServiceConfig `mapstructure:"service" yaml:"service"`
	Log              config.LogConfig     `mapstructure:"log" yaml:"log"`
	Address          string               `mapstructure:"address" yaml:"address"`
	HeartbeatSeconds int                  `mapstructure:"heartbeat_seconds" yaml:"heartbeat_seconds"`
}

func defaultSettings() clientSettings {
	return clientSettings{
		Service:          config.ServiceConfig{ID: "org.swiftrpc.Client"},
		Log:              config.LogConfig{Level: "info", Formatter: "text"},
		Address:          "tcp://127.0.0.1:9990",
		HeartbeatSeconds: 0,
	}
}

func loadSettings(cfgFile string) (clientSettings, error) {
	settings := defaultSettings()

	v := viper.New()
	v.SetEnvPrefix("SWIFTRPC_CLIENT")
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
				return settings, err
			}
		}
	}

	if err := v.Unmarshal(&settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// dump renders settings as YAML.
func (s clientSettings) dump() (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s clientSettings) heartbeatInterval() time.Duration {
	if s.HeartbeatSeconds <= 0 {
		return 0
	}
	return time.Duration(s.HeartbeatSeconds) * time.Second
}
