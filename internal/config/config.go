// Package config loads the configuration surface from SPEC_FULL.md: the
// transport endpoint and credential, connect/request timeouts, retry and
// backpressure ceilings, and the per-execution wall-clock timeout.
package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config is the resolved configuration surface for a workflowctl process.
type Config struct {
	Endpoint             string
	Credential           string
	ConnectTimeout       time.Duration
	RequestTimeout       time.Duration
	MaxConnectRetries    int
	EventChannelCapacity int
	LineBufferMax        int
	ExecutionTimeout     time.Duration
	Debug                bool
}

// Load reads configuration from (in increasing precedence) defaults, an
// optional config file, and environment variables bound with the
// WORKFLOWCORE_ prefix. fs lets callers substitute an in-memory filesystem
// in tests; a nil fs uses the OS filesystem.
func Load(configPath string, fs afero.Fs) (*Config, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	v := viper.New()
	v.SetFs(fs)

	v.SetDefault("endpoint", "https://workflows.cloudship.ai/api/v1/workflow")
	v.SetDefault("connect_timeout", 10*time.Second)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("max_connect_retries", 3)
	v.SetDefault("event_channel_capacity", 256)
	v.SetDefault("line_buffer_max", 1<<20)
	v.SetDefault("debug", false)

	v.AutomaticEnv()
	v.SetEnvPrefix("WORKFLOWCORE")
	bindEnv(v, "endpoint", "WORKFLOWCORE_ENDPOINT")
	bindEnv(v, "credential", "WORKFLOWCORE_CREDENTIAL", "WORKFLOWCORE_TOKEN")
	bindEnv(v, "connect_timeout", "WORKFLOWCORE_CONNECT_TIMEOUT")
	bindEnv(v, "request_timeout", "WORKFLOWCORE_REQUEST_TIMEOUT")
	bindEnv(v, "max_connect_retries", "WORKFLOWCORE_MAX_CONNECT_RETRIES")
	bindEnv(v, "event_channel_capacity", "WORKFLOWCORE_EVENT_CHANNEL_CAPACITY")
	bindEnv(v, "line_buffer_max", "WORKFLOWCORE_LINE_BUFFER_MAX")
	bindEnv(v, "execution_timeout", "WORKFLOWCORE_EXECUTION_TIMEOUT")
	bindEnv(v, "debug", "WORKFLOWCORE_DEBUG")

	if configPath != "" {
		exists, err := afero.Exists(fs, configPath)
		if err != nil {
			return nil, fmt.Errorf("config: check config file: %w", err)
		}
		if exists {
			content, err := afero.ReadFile(fs, configPath)
			if err != nil {
				return nil, fmt.Errorf("config: read config file: %w", err)
			}
			v.SetConfigType("yaml")
			if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
				return nil, fmt.Errorf("config: parse config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Endpoint:             v.GetString("endpoint"),
		Credential:           v.GetString("credential"),
		ConnectTimeout:       v.GetDuration("connect_timeout"),
		RequestTimeout:       v.GetDuration("request_timeout"),
		MaxConnectRetries:    v.GetInt("max_connect_retries"),
		EventChannelCapacity: v.GetInt("event_channel_capacity"),
		LineBufferMax:        v.GetInt("line_buffer_max"),
		ExecutionTimeout:     v.GetDuration("execution_timeout"),
		Debug:                v.GetBool("debug"),
	}

	if cfg.MaxConnectRetries < 0 {
		return nil, fmt.Errorf("config: max_connect_retries must be >= 0, got %d", cfg.MaxConnectRetries)
	}
	if cfg.EventChannelCapacity < 1 {
		return nil, fmt.Errorf("config: event_channel_capacity must be >= 1, got %d", cfg.EventChannelCapacity)
	}

	return cfg, nil
}

func bindEnv(v *viper.Viper, key string, envNames ...string) {
	args := append([]string{key}, envNames...)
	_ = v.BindEnv(args...)
}
