package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/julianstephens/habitstreak/internal/constants"
	"github.com/julianstephens/habitstreak/internal/models"
)

// RedisConfig holds the connection settings for the shared cache
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// OperationTimeout bounds each call that arrives without a deadline.
	OperationTimeout time.Duration
	KeyPrefix        string
}

// DefaultRedisConfig returns settings for a local Redis.
func DefaultRedisConfig(addr string) RedisConfig {
	return RedisConfig{
		Addr:             addr,
		TTL:              constants.DefaultCacheTTL,
		OperationTimeout: 2 * time.Second,
		KeyPrefix:        constants.AppName + ":streak:",
	}
}

// Redis shares cached states between processes.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis cache: address is required")
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client, cfg: cfg}, nil
}

func (r *Redis) withContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok {
		return context.WithTimeout(ctx, r.cfg.OperationTimeout)
	}
	return ctx, func() {}
}

func (r *Redis) key(k Key) string {
	return r.cfg.KeyPrefix + k.HabitID + ":" + k.UserID
}

func (r *Redis) Get(ctx context.Context, key Key) (models.StreakState, bool, error) {
	ctx, cancel := r.withContext(ctx)
	defer cancel()

	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.StreakState{}, false, nil
	}
	if err != nil {
		return models.StreakState{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var state models.StreakState
	if err := json.Unmarshal(val, &state); err != nil {
		// unreadable entries are dropped and treated as a miss
		r.client.Del(ctx, r.key(key))
		return models.StreakState{}, false, nil
	}
	return state, true, nil
}

func (r *Redis) Set(ctx context.Context, key Key, state models.StreakState) error {
	ctx, cancel := r.withContext(ctx)
	defer cancel()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return r.client.Set(ctx, r.key(key), data, r.cfg.TTL).Err()
}

func (r *Redis) Invalidate(ctx context.Context, key Key) error {
	ctx, cancel := r.withContext(ctx)
	defer cancel()
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
