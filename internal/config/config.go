// Package config handles configuration for tb-rollout.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the config file lives unless --config says
// otherwise.
const DefaultPath = "/etc/tb-rollout/config.yaml"

// API holds salt-api connection settings for the api transport.
type API struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	EAuth    string `yaml:"eauth"`
}

// Config holds all tb-rollout configuration. Flags override config file
// values; config file values override environment variables.
type Config struct {
	// Service is the managed service restarted by update-configs.
	Service string `yaml:"service"`
	// ConfigState is the state applied by update-configs.
	ConfigState string `yaml:"config_state"`
	// Pillar is passed to the config state.
	Pillar map[string]any `yaml:"pillar"`

	Retries               int `yaml:"retries"`
	ServiceRetries        int `yaml:"service_retries"`
	ServiceBackoffSeconds int `yaml:"service_backoff_seconds"`
	RestartDelaySeconds   int `yaml:"restart_delay_seconds"`
	RebootTimeoutSeconds  int `yaml:"reboot_timeout_seconds"`
	RebootPeriodSeconds   int `yaml:"reboot_period_seconds"`

	// Master is the user@host[:port] of the Salt master for the ssh
	// transport.
	Master string `yaml:"master"`
	API    API    `yaml:"api"`

	// LogDir is where per-invocation log files are written.
	LogDir string `yaml:"log_dir"`
}

// Load reads the config file at path (DefaultPath when empty) and
// applies environment fallbacks. A missing file is not an error; the
// zero config plus environment is a valid starting point.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// fall through to env-only config
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setIfEmpty(&cfg.Master, "TB_ROLLOUT_MASTER")
	setIfEmpty(&cfg.API.URL, "TB_ROLLOUT_API_URL")
	setIfEmpty(&cfg.API.Username, "TB_ROLLOUT_API_USER")
	setIfEmpty(&cfg.API.Password, "TB_ROLLOUT_API_PASSWORD")
	setIfEmpty(&cfg.API.EAuth, "TB_ROLLOUT_API_EAUTH")
	setIfEmpty(&cfg.Service, "TB_ROLLOUT_SERVICE")
	setIfEmpty(&cfg.LogDir, "TB_ROLLOUT_LOG_DIR")
}

func setIfEmpty(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}
