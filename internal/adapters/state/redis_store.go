// Package state holds the reducer-side StateStore adapters. The
// reducer is the exclusive writer; external readers consume snapshots
// through whatever backend is configured.
package state

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rd-openday18/pubsub/internal/domain"
	"github.com/rd-openday18/pubsub/internal/ports"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	HashKey  string `yaml:"hash_key"`
}

func (c *RedisConfig) ApplyDefaults() {
	if c.HashKey == "" {
		c.HashKey = "pubsub:state"
	}
}

// RedisStore keeps the materialized view in one Redis hash, metric
// name → msgpack-encoded MetricState.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg.ApplyDefaults()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb, key: cfg.HashKey}, nil
}

func (s *RedisStore) WriteMetric(ctx context.Context, name string, st domain.MetricState) error {
	b, err := msgpack.Marshal(&st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.key, name, b).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (s *RedisStore) WriteSnapshot(ctx context.Context, state domain.SystemState) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key)
	for name, st := range state {
		b, err := msgpack.Marshal(&st)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		pipe.HSet(ctx, s.key, name, b)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) ReadSnapshot(ctx context.Context) (domain.SystemState, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make(domain.SystemState, len(fields))
	for name, raw := range fields {
		var st domain.MetricState
		if err := msgpack.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("unmarshal state for %q: %w", name, err)
		}
		out[name] = st
	}
	return out, nil
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

var _ ports.StateStore = (*RedisStore)(nil)
