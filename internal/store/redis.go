package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clubsuite/notify/pkg/config"
	"github.com/clubsuite/notify/pkg/errors"
)

// NewRedisClient creates a Redis client tuned for small, frequent counter
// operations and verifies connectivity before returning.
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, errors.NewInvalidInputError("redis configuration is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewInternalError("failed to connect to Redis").WithCause(err)
	}
	return client, nil
}

// RedisFrequencyStore counts recent sends per user in a Redis sorted set
// keyed by timestamp. A rare double-count near a cap boundary is tolerated;
// the set expires after the longest trailing window plus slack.
type RedisFrequencyStore struct {
	client *redis.Client
}

// NewRedisFrequencyStore creates a frequency store backed by the given client.
func NewRedisFrequencyStore(client *redis.Client) *RedisFrequencyStore {
	return &RedisFrequencyStore{client: client}
}

func frequencyKey(userID string) string {
	return "notify:freq:" + userID
}

// CountSentSince returns how many sends were recorded for the user after the
// given instant.
func (s *RedisFrequencyStore) CountSentSince(ctx context.Context, userID string, since time.Time) (int, error) {
	min := strconv.FormatInt(since.UnixMilli(), 10)
	count, err := s.client.ZCount(ctx, frequencyKey(userID), min, "+inf").Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to count recent sends").WithCause(err)
	}
	return int(count), nil
}

// RecordSend adds one send at the given instant and prunes entries older
// than the daily window.
func (s *RedisFrequencyStore) RecordSend(ctx context.Context, userID string, at time.Time) error {
	key := frequencyKey(userID)
	member := fmt.Sprintf("%d:%d", at.UnixNano(), at.UnixMilli())

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(at.Add(-25*time.Hour).UnixMilli(), 10))
	pipe.Expire(ctx, key, 25*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewInternalError("failed to record send").WithCause(err)
	}
	return nil
}
