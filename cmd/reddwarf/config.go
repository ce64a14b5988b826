package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/reddwarf-sh/reddwarf/pkg/log"
)

// Config is the on-disk configuration for the reddwarf control plane
// binary, loaded via --config and overridable by the matching flags.
type Config struct {
	DataDir    string `yaml:"dataDir"`
	ListenAddr string `yaml:"listenAddr"`

	LogLevel log.Level `yaml:"logLevel"`
	LogJSON  bool      `yaml:"logJSON"`

	// Runtime selects the zone.Runtime implementation: "mock" for local
	// development and tests, "containerd" for a real node.
	Runtime          string `yaml:"runtime"`
	ContainerdSocket string `yaml:"containerdSocket"`
}

func defaultConfig() Config {
	return Config{
		DataDir:    "./reddwarf-data",
		ListenAddr: "127.0.0.1:8080",
		LogLevel:   log.InfoLevel,
		LogJSON:    false,
		Runtime:    "mock",
	}
}

// loadConfig reads path if non-empty, merging it over the defaults.
// A missing --config flag just means "run with defaults."
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
