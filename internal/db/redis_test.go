package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis spins up an in-memory Redis and a store pointed at it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	store := &RedisStore{Client: redis.NewClient(&redis.Options{Addr: s.Addr()})}
	t.Cleanup(store.Close)
	return s, store
}

func TestCreditRewardAccumulates(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()

	bal, err := store.CreditReward(ctx, "player-1", "AdMob", 10, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)

	bal, err = store.CreditReward(ctx, "player-1", "UnityAds", 15, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(25), bal)

	got, err := store.Balance(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), got)

	count, err := store.DailyRewardCount(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	admob, err := store.DailyNetworkAmount(ctx, "AdMob")
	require.NoError(t, err)
	assert.Equal(t, int64(10), admob)
}

func TestBalanceUnknownUser(t *testing.T) {
	_, store := setupTestRedis(t)
	bal, err := store.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)

	count, err := store.DailyRewardCount(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDailyCountersExpire(t *testing.T) {
	s, store := setupTestRedis(t)
	ctx := context.Background()

	_, err := store.CreditReward(ctx, "player-2", "AdMob", 10, time.Hour)
	require.NoError(t, err)
	s.FastForward(2 * time.Hour)

	count, err := store.DailyRewardCount(ctx, "player-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// the wallet itself never expires
	bal, err := store.Balance(ctx, "player-2")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
}

func TestCreditRewardConnectionError(t *testing.T) {
	s, store := setupTestRedis(t)
	s.Close()
	_, err := store.CreditReward(context.Background(), "player-3", "AdMob", 10, time.Hour)
	assert.Error(t, err)
}
