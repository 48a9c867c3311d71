// cmd/calorie-log/root.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mcp-calorie-log/internal/config"
	"mcp-calorie-log/internal/events"
	"mcp-calorie-log/internal/ledger"
	"mcp-calorie-log/internal/metrics"
	"mcp-calorie-log/internal/parser"
	"mcp-calorie-log/internal/server"
	"mcp-calorie-log/internal/storage"
	"mcp-calorie-log/internal/tracker"
)

var (
	cfgFile  string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:     "calorie-log",
	Short:   "Log meals and track daily calories",
	Version: server.Version,
	Long: `calorie-log estimates the calories in free-text meal descriptions with an
LLM gateway, keeps a per-user running total for the current day and serves it
over HTTP and MCP tool calls.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite database file (overrides storage.path)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the configuration file and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.Driver = "sqlite"
		cfg.Storage.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parsing log level: %w", err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return logger.Level(level).With().Timestamp().Logger(), nil
}

// backend is what both storage drivers provide.
type backend interface {
	ledger.Store
	tracker.SettingsStore
	Close() error
}

func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	if cfg.Storage.Driver == "redis" {
		rs, err := storage.NewRedisStorage(ctx, storage.RedisConfig{
			Addr:      cfg.Storage.Redis.Addr,
			Password:  cfg.Storage.Redis.Password,
			DB:        cfg.Storage.Redis.DB,
			KeyPrefix: cfg.Storage.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return rs, nil
	}

	ss, err := storage.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	return ss, nil
}

// app bundles everything a command needs to talk to the tracker.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
	tracker   *tracker.Tracker
	backend   backend
	publisher events.Publisher
}

func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing storage")
		}
	}
}

// newApp wires storage, the parser and the ledgers. withEvents controls
// whether meal events go to MQTT; one-shot commands leave it off.
func newApp(ctx context.Context, withEvents bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	clock, err := ledger.NewClock(cfg.Ledger.Timezone)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: logger, metrics: metrics.New()}

	a.backend, err = openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Driver, err)
	}

	a.publisher = events.Nop{}
	if withEvents {
		a.publisher, err = events.New(events.MQTTConfig{
			Enabled:     cfg.MQTT.Enabled,
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
	}

	var completer parser.Completer
	if !cfg.Gateway.Disabled {
		completer = parser.NewGatewayClient(parser.GatewayConfig{
			ProxyURL:          cfg.Gateway.ProxyURL,
			APIKey:            cfg.Gateway.APIKey,
			Model:             cfg.Gateway.Model,
			GatewayName:       cfg.Gateway.Name,
			Timeout:           cfg.Gateway.Timeout,
			RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
			Burst:             cfg.Gateway.Burst,
		}, a.metrics, logger)
	}

	p := parser.New(completer,
		parser.WithTimeout(cfg.Gateway.Timeout),
		parser.WithMetrics(a.metrics),
		parser.WithLogger(logger),
	)
	registry := ledger.NewRegistry(a.backend,
		ledger.WithClock(clock),
		ledger.WithPersistTimeout(a.cfg.Ledger.PersistTimeout),
		ledger.WithMetrics(a.metrics),
		ledger.WithLogger(logger),
	)

	a.tracker = tracker.New(tracker.Deps{
		Parser:    p,
		Ledgers:   registry,
		Settings:  a.backend,
		Publisher: a.publisher,
		Logger:    logger,
	})
	return a, nil
}
