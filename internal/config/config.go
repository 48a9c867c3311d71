// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Gateway GatewayConfig `yaml:"gateway"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	MQTT    MQTTConfig    `yaml:"mqtt,omitempty"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects where ledgers and settings are kept.
type StorageConfig struct {
	Driver string      `yaml:"driver"` // "sqlite" or "redis"
	Path   string      `yaml:"path"`   // sqlite database file
	Redis  RedisConfig `yaml:"redis,omitempty"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// GatewayConfig points at the LLM gateway used to parse meal descriptions.
type GatewayConfig struct {
	ProxyURL          string        `yaml:"proxy_url"`
	APIKey            string        `yaml:"api_key,omitempty"`
	Model             string        `yaml:"model"`
	Name              string        `yaml:"name,omitempty"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second,omitempty"`
	Burst             int           `yaml:"burst,omitempty"`
	Disabled          bool          `yaml:"disabled,omitempty"` // always use the local estimator
}

type LedgerConfig struct {
	// Timezone is the IANA zone that decides when a day ends, e.g. "Europe/London".
	Timezone string `yaml:"timezone"`

	// PersistTimeout bounds each storage call a ledger makes; 0 disables it.
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8011,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "/data/calorie-log.db",
		},
		Gateway: GatewayConfig{
			ProxyURL: "http://mcp-compose-http-proxy:9876",
			Model:    "anthropic/claude-3.5-sonnet",
			Name:     "openrouter-gateway",
			Timeout:  20 * time.Second,
		},
		Ledger: LedgerConfig{
			Timezone:       "UTC",
			PersistTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the config file on top of the defaults, then applies environment
// overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MCP_PROXY_URL"); v != "" {
		c.Gateway.ProxyURL = v
	}
	if v := os.Getenv("MCP_PROXY_API_KEY"); v != "" {
		c.Gateway.APIKey = v
	}
	if v := os.Getenv("OPENROUTER_MODEL"); v != "" {
		c.Gateway.Model = v
	}
	if v := os.Getenv("CALORIE_LOG_TIMEZONE"); v != "" {
		c.Ledger.Timezone = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Storage.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Storage.Redis.DB = db
		}
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Gateway.Timeout < 0 {
		return fmt.Errorf("gateway.timeout must not be negative")
	}
	if c.Ledger.PersistTimeout < 0 {
		return fmt.Errorf("ledger.persist_timeout must not be negative")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
