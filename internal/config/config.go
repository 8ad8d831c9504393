package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"
)

// Defaults used when config.toml leaves a field empty.
const (
	DefaultAPIURL            = "http://localhost:8080"
	DefaultHeartbeatInterval = 45 * time.Second
	DefaultReconnectMin      = time.Second
	DefaultReconnectMax      = 30 * time.Second
	DefaultRequestTimeout    = 15 * time.Second
	DefaultLogLevel          = "info"
)

// Config represents the global ~/.chatd/config.toml.
type Config struct {
	DefaultSession    string        `toml:"default_session" env:"DEFAULT_SESSION"`
	APIURL            string        `toml:"api_url" env:"API_URL"`
	WSURL             string        `toml:"ws_url,omitempty" env:"WS_URL"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval,omitempty" env:"HEARTBEAT_INTERVAL"`
	ReconnectMin      time.Duration `toml:"reconnect_min,omitempty" env:"RECONNECT_MIN"`
	ReconnectMax      time.Duration `toml:"reconnect_max,omitempty" env:"RECONNECT_MAX"`
	RequestTimeout    time.Duration `toml:"request_timeout,omitempty" env:"REQUEST_TIMEOUT"`
	MetricsAddr       string        `toml:"metrics_addr,omitempty" env:"METRICS_ADDR"`
	LogLevel          string        `toml:"log_level,omitempty" env:"LOG_LEVEL"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve loads the config file if present, applies CHATD_* environment
// overrides and fills defaults. A missing file is not an error.
func Resolve(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "CHATD_"}); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.WSURL == "" {
		c.WSURL = wsFromAPI(c.APIURL)
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = DefaultReconnectMin
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = DefaultReconnectMax
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = c.ReconnectMin
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// wsFromAPI derives the push channel endpoint: same host, ws scheme, /ws path.
func wsFromAPI(api string) string {
	switch {
	case strings.HasPrefix(api, "https://"):
		return "wss://" + strings.TrimPrefix(api, "https://") + "/ws"
	case strings.HasPrefix(api, "http://"):
		return "ws://" + strings.TrimPrefix(api, "http://") + "/ws"
	default:
		return api + "/ws"
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
