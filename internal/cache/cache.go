// Package cache stores computed read models (dashboard and finance
// summaries) in Redis. Without REDIS_ADDR every call is a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"atelier-backend/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "atelier"

type Store interface {
	// GetJSON decodes the cached value into dst and reports a hit.
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	// InvalidateBusiness drops every key cached for a business.
	InvalidateBusiness(ctx context.Context, businessID uint) error
	Close() error
}

// Key builds a business scoped key, e.g. Key(3, "dashboard", "summary").
func Key(businessID uint, parts ...string) string {
	k := fmt.Sprintf("%s:%d", keyPrefix, businessID)
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client}, nil
}

func (r *Redis) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

func (r *Redis) InvalidateBusiness(ctx context.Context, businessID uint) error {
	iter := r.client.Scan(ctx, 0, Key(businessID)+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Nop never hits.
type Nop struct{}

func (Nop) GetJSON(context.Context, string, any) (bool, error)        { return false, nil }
func (Nop) SetJSON(context.Context, string, any, time.Duration) error { return nil }
func (Nop) InvalidateBusiness(context.Context, uint) error            { return nil }
func (Nop) Close() error                                              { return nil }

// Invalidate drops a business's cached summaries, logging failures.
func Invalidate(ctx context.Context, s Store, businessID uint) {
	if s == nil {
		return
	}
	if err := s.InvalidateBusiness(ctx, businessID); err != nil {
		logger.L().Warn("cache invalidation failed", zap.Uint("business_id", businessID), zap.Error(err))
	}
}
