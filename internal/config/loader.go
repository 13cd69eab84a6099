package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"mobiletracking/internal/common/fsutil"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
)

// Config holds runtime parameters for the tracking client and the mock
// backend. Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	AdvertiserID string `json:"advertiser_id" yaml:"advertiser_id" toml:"advertiser_id"`
	CampaignID   string `json:"campaign_id" yaml:"campaign_id" toml:"campaign_id"`
	BaseURL      string `json:"base_url" yaml:"base_url" toml:"base_url"`
	DebugBaseURL string `json:"debug_base_url" yaml:"debug_base_url" toml:"debug_base_url"`
	Debug        bool   `json:"debug" yaml:"debug" toml:"debug"`

	Store         string `json:"store" yaml:"store" toml:"store"`
	DataPath      string `json:"data_path" yaml:"data_path" toml:"data_path"`
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password" toml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db" toml:"redis_db"`
	RedisKey      string `json:"redis_key" yaml:"redis_key" toml:"redis_key"`

	RequestTimeoutSeconds int    `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
	UserAgent             string `json:"user_agent" yaml:"user_agent" toml:"user_agent"`

	// ProbeURL is HEAD-requested to detect connectivity. Empty probes BaseURL.
	ProbeURL             string `json:"probe_url" yaml:"probe_url" toml:"probe_url"`
	ProbeIntervalSeconds int    `json:"probe_interval_seconds" yaml:"probe_interval_seconds" toml:"probe_interval_seconds"`

	WaitForActiveFingerprint bool `json:"wait_for_active_fingerprint" yaml:"wait_for_active_fingerprint" toml:"wait_for_active_fingerprint"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	MockAddr string `json:"mock_addr" yaml:"mock_addr" toml:"mock_addr"`
}

// Defaults returns a Config with every default applied.
func Defaults() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Store == "" {
		c.Store = StoreBolt
	}
	if c.DataPath == "" {
		c.DataPath = "~/.mobiletracking/preferences.db"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "127.0.0.1:6379"
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.ConnectTimeoutSeconds <= 0 {
		c.ConnectTimeoutSeconds = 10
	}
	if c.ProbeIntervalSeconds <= 0 {
		c.ProbeIntervalSeconds = 15
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MockAddr == "" {
		c.MockAddr = "127.0.0.1:8089"
	}
}

// Validate checks the fields needed to run the tracking client.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreBolt, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q (want memory, bolt or redis)", c.Store)
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base_url is required")
	}
	return nil
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

func (c Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// ResolvedDataPath returns DataPath with a leading ~ expanded.
func (c Config) ResolvedDataPath() (string, error) {
	return fsutil.ExpandHome(c.DataPath)
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
