package rewards

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/admediation/internal/db"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
)

func newStore(t *testing.T) (*miniredis.Miniredis, *db.RedisStore) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	store := &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: s.Addr()})}
	t.Cleanup(store.Close)
	return s, store
}

func TestLedgerCreditsUserRewards(t *testing.T) {
	_, store := newStore(t)
	ledger := NewLedger(context.Background(), store, 24*time.Hour, nil, nil)

	ledger.HandleAdEvent(models.NewRewarded(models.NetworkAdMob, 10).WithRequest("r1", "player-1"))
	ledger.HandleAdEvent(models.NewRewarded(models.NetworkUnityAds, 15).WithRequest("r2", "player-1"))
	ledger.Close()

	bal, err := ledger.Balance(context.Background(), "player-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), bal)
}

func TestLedgerIgnoresNonRewardsAndAnonymous(t *testing.T) {
	s, store := newStore(t)
	ledger := NewLedger(context.Background(), store, time.Hour, nil, nil)

	ledger.HandleAdEvent(models.NewRewarded(models.NetworkAdMob, 10))
	ledger.HandleAdEvent(models.NewSkipped(models.NetworkAdMob, "user skipped").WithRequest("r1", "player-2"))
	ledger.HandleAdEvent(models.NewShown(models.NetworkAdMob).WithRequest("r1", "player-2"))
	ledger.Close()

	assert.Empty(t, s.Keys())
}

func TestLedgerCountsStoreFailures(t *testing.T) {
	s, store := newStore(t)
	metrics := observability.NewCountingRegistry()
	ledger := NewLedger(context.Background(), store, time.Hour, nil, metrics)

	s.Close()
	ledger.HandleAdEvent(models.NewRewarded(models.NetworkAdMob, 10).WithRequest("r1", "player-3"))
	ledger.Close()

	assert.Equal(t, 1, metrics.SinkErrors["redis"])
}
