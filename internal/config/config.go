// Package config loads the server's runtime configuration from defaults,
// an optional YAML file, and RTC_ environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/rtconf/rtconf/internal/store"
)

// EnvPrefix is stripped from environment variables; the remainder is
// lowercased into the flat key set, so RTC_MAX_CONNECTION sets
// max_connection regardless of case.
const EnvPrefix = "RTC_"

// Config holds the server's runtime configuration.
type Config struct {
	StoreType           string        `koanf:"store_type"`
	StoreDirectory      string        `koanf:"config_store_directory"`
	RedisURL            string        `koanf:"redis_url"`
	MongoURL            string        `koanf:"mongodb_url"`
	NotifyChannel       string        `koanf:"notify_channel"`
	OpenNotify          bool          `koanf:"open_notify"`
	LoopInterval        time.Duration `koanf:"loop_interval"`
	MaxConnection       int           `koanf:"max_connection"`
	OpenClientAuthToken bool          `koanf:"open_client_auth_token"`
	Addr                string        `koanf:"addr"`
}

func defaults() map[string]any {
	return map[string]any{
		"store_type":             store.TypeJSONFile,
		"config_store_directory": defaultStoreDir(),
		"redis_url":              "redis://localhost:6379/0",
		"mongodb_url":            "mongodb://localhost:27017/rtconf",
		"notify_channel":         "rtc_config",
		"open_notify":            true,
		"loop_interval":          "1s",
		"max_connection":         1024,
		"open_client_auth_token": false,
		"addr":                   ":8089",
	}
}

// Load builds the configuration. path may be empty to skip the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &c, nil
}

// Validate checks the configuration values and ensures required directories
// exist.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.MaxConnection <= 0 {
		return fmt.Errorf("max_connection must be positive")
	}
	switch c.StoreType {
	case store.TypeJSONFile:
		if err := os.MkdirAll(c.StoreDirectory, 0o750); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	case store.TypeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis_url is required for the redis store")
		}
	case store.TypeMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("mongodb_url is required for the mongodb store")
		}
	default:
		return fmt.Errorf("unknown store_type %q", c.StoreType)
	}
	return nil
}

// StoreConfig maps the relevant keys onto the backend configuration.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Type:          c.StoreType,
		Dir:           c.StoreDirectory,
		RedisURL:      c.RedisURL,
		MongoURL:      c.MongoURL,
		NotifyChannel: c.NotifyChannel,
		OpenNotify:    c.OpenNotify,
		LoopInterval:  c.LoopInterval,
	}
}

func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("rtconf", "data")
	}
	return filepath.Join(home, "rtconf", "data")
}
