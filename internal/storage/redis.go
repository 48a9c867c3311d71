// internal/storage/redis.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"mcp-calorie-log/internal/ledger"
	"mcp-calorie-log/internal/models"
)

const defaultKeyPrefix = "calorielog:"

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStorage keeps each identity's ledger and settings as JSON strings.
type RedisStorage struct {
	client redis.Cmdable
	closer func() error
	prefix string
}

func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	s := newRedisStorage(client, cfg.KeyPrefix)
	s.closer = client.Close
	return s, nil
}

func newRedisStorage(client redis.Cmdable, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *RedisStorage) ledgerKey(identity string) string {
	return s.prefix + "ledger:" + identity
}

func (s *RedisStorage) settingsKey(identity string) string {
	return s.prefix + "settings:" + identity
}

func (s *RedisStorage) LoadLedger(ctx context.Context, identity string) (*ledger.State, error) {
	raw, err := s.client.Get(ctx, s.ledgerKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}

	var state ledger.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode ledger payload: %w", err)
	}
	return &state, nil
}

// SaveLedger overwrites the key with the full payload; SET is atomic.
func (s *RedisStorage) SaveLedger(ctx context.Context, identity string, state ledger.State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode ledger payload: %w", err)
	}
	if err := s.client.Set(ctx, s.ledgerKey(identity), string(payload), 0).Err(); err != nil {
		return fmt.Errorf("failed to set ledger: %w", err)
	}
	return nil
}

func (s *RedisStorage) ClearLedger(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, s.ledgerKey(identity)).Err(); err != nil {
		return fmt.Errorf("failed to delete ledger: %w", err)
	}
	return nil
}

func (s *RedisStorage) LoadSettings(ctx context.Context, identity string) (models.Settings, error) {
	raw, err := s.client.Get(ctx, s.settingsKey(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.DefaultSettings(identity), nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}

	var settings models.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return models.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}

func (s *RedisStorage) SaveSettings(ctx context.Context, settings models.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := s.client.Set(ctx, s.settingsKey(settings.Identity), string(payload), 0).Err(); err != nil {
		return fmt.Errorf("failed to set settings: %w", err)
	}
	return nil
}
