package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/abhisek/learnintake/internal/assessment"
)

// RedisConfig configures NewRedisSessions.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// RedisSessions is a SessionStore on Redis. Each session is a JSON string
// under Prefix+id; Save uses WATCH/MULTI so a concurrent writer aborts the
// transaction instead of being overwritten.
type RedisSessions struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessions connects and pings the server.
func NewRedisSessions(ctx context.Context, cfg RedisConfig) (*RedisSessions, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "learnintake:session:"
	}
	return &RedisSessions{rdb: rdb, prefix: prefix, ttl: cfg.TTL}, nil
}

func (r *RedisSessions) Close() error { return r.rdb.Close() }

func (r *RedisSessions) key(id string) string { return r.prefix + id }

func (r *RedisSessions) Load(ctx context.Context, id string) (*assessment.Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return assessment.NewSession(id, clock()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var s assessment.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *RedisSessions) Save(ctx context.Context, s *assessment.Session) error {
	key := r.key(s.ID)
	next := *s
	next.Version = s.Version + 1
	raw, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}

	err = r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != s.Version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, raw, r.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, goredis.TxFailedErr), errors.Is(err, ErrVersionConflict):
		return ErrVersionConflict
	case err != nil:
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	s.Version = next.Version
	return nil
}

func (r *RedisSessions) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check session %s: %w", id, err)
	}
	return n > 0, nil
}

func storedVersion(ctx context.Context, tx *goredis.Tx, key string) (int64, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("decode stored version: %w", err)
	}
	return head.Version, nil
}
