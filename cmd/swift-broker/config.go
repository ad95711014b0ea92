package main

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/michel4j/swift-rpc/internal/config"
	"github.com/michel4j/swift-rpc/rpc"
)

// brokerSettings is the broker's viper-bound configuration.
type brokerSettings struct {
	Service  config.ServiceConfig `mapstructure:"service" yaml:"service"`
	Log      config.LogConfig     `mapstructure:"log" yaml:"log"`
	Frontend string               `mapstructure:"frontend" yaml:"frontend"`
	Backend  string               `mapstructure:"backend" yaml:"backend"`
	Mode     string               `mapstructure:"mode" yaml:"mode"`
}

func defaultSettings() brokerSettings {
	return brokerSettings{
		Service:  config.ServiceConfig{ID: "org.swiftrpc.Broker"},
		Log:      config.LogConfig{Level: "info", Formatter: "text"},
		Frontend: fmt.Sprintf("tcp://*:%d", rpc.DefaultFrontendPort),
		Backend:  fmt.Sprintf("tcp://*:%d", rpc.DefaultBackendPort),
		Mode:     string(rpc.ModeLRU),
	}
}

func loadSettings(cfgFile string) (brokerSettings, error) {
	settings := defaultSettings()

	v := viper.New()
	v.SetEnvPrefix("SWIFTRPC_BROKER")
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

// dump renders settings as YAML: useful for confirming what a config file
// plus environment overrides actually resolved to, since viper has no
// "write back what I resolved" primitive of its own.
func (s brokerSettings) dump() (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
