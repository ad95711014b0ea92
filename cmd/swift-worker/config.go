package main

import (
	"fmt"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/michel4j/swift-rpc/internal/config"
	"github.com/michel4j/swift-rpc/rpc"
)

// workerSettings is the worker's viper-bound configuration: the address of
// the broker's backend socket, the service identity it advertises, and how
// many worker instances to run in the pool.
type workerSettings struct {
	Service   config.ServiceConfig `mapstructure:"service" yaml:"service"`
	Log       config.LogConfig     `mapstructure:"log" yaml:"log"`
	Backend   string               `mapstructure:"backend" yaml:"backend"`
	Instances int                  `mapstructure:"instances" yaml:"instances"`
}

func defaultSettings() workerSettings {
	return workerSettings{
		Service:   config.ServiceConfig{ID: "org.swiftrpc.Worker"},
		Log:       config.LogConfig{Level: "info", Formatter: "text"},
		Backend:   fmt.Sprintf("tcp://127.0.0.1:%d", rpc.DefaultBackendPort),
		Instances: 1,
	}
}

func loadSettings(cfgFile string) (workerSettings, error) {
	settings := defaultSettings()

	v := viper.New()
	v.SetEnvPrefix("SWIFTRPC_WORKER")
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
func (s workerSettings) dump() (string, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
