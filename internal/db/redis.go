package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client holding the reward wallets.
type RedisStore struct {
	Client *redis.Client
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(ctx context.Context, addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

func walletKey(userID string) string {
	return fmt.Sprintf("reward:wallet:%s", userID)
}

func dailyUserKey(userID string, day time.Time) string {
	return fmt.Sprintf("reward:daily:user:%s:%s", userID, day.Format("2006-01-02"))
}

func dailyNetworkKey(network string, day time.Time) string {
	return fmt.Sprintf("reward:daily:network:%s:%s", network, day.Format("2006-01-02"))
}

// CreditReward adds amount to the user's wallet and bumps the daily reward
// counters for the user and the network. Daily counters expire after ttl.
// The new wallet balance is returned.
func (r *RedisStore) CreditReward(ctx context.Context, userID, network string, amount int, ttl time.Duration) (int64, error) {
	now := time.Now().UTC()
	userDaily := dailyUserKey(userID, now)
	networkDaily := dailyNetworkKey(network, now)

	var balance *redis.IntCmd
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		balance = pipe.IncrBy(ctx, walletKey(userID), int64(amount))
		pipe.Incr(ctx, userDaily)
		pipe.ExpireNX(ctx, userDaily, ttl)
		pipe.IncrBy(ctx, networkDaily, int64(amount))
		pipe.ExpireNX(ctx, networkDaily, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("credit reward for %s: %w", userID, err)
	}
	return balance.Val(), nil
}

// Balance returns the wallet balance of userID. Unknown users have 0.
func (r *RedisStore) Balance(ctx context.Context, userID string) (int64, error) {
	v, err := r.Client.Get(ctx, walletKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// DailyRewardCount returns how many rewards userID earned today.
func (r *RedisStore) DailyRewardCount(ctx context.Context, userID string) (int64, error) {
	v, err := r.Client.Get(ctx, dailyUserKey(userID, time.Now().UTC())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// DailyNetworkAmount returns the reward amount granted through network today.
func (r *RedisStore) DailyNetworkAmount(ctx context.Context, network string) (int64, error) {
	v, err := r.Client.Get(ctx, dailyNetworkKey(network, time.Now().UTC())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
