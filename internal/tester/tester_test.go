package tester

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/patrickwarner/admediation/internal/adsource"
	"github.com/patrickwarner/admediation/internal/mediation"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

func newHarness(t *testing.T) (*AdTester, *mediation.Mediator, *scheduler.Manual, *observer.ObservedLogs) {
	t.Helper()
	sched := scheduler.NewManual()
	admob := adsource.NewAdMob(adsource.DefaultAdMobConfig(), sched)
	unity := adsource.NewUnityAds(adsource.DefaultUnityAdsConfig(), sched)
	med, err := mediation.New(zap.NewNop(), nil, []adsource.Source{admob, unity})
	require.NoError(t, err)
	t.Cleanup(med.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	tester := New(med, zap.New(core), WithUserID("tester"))
	return tester, med, sched, logs
}

func TestStartWithoutMediator(t *testing.T) {
	tester := New(nil, zap.NewNop())
	assert.ErrorIs(t, tester.Start(), ErrNoMediator)
}

func TestShowKeyWithNoFillReportsFailure(t *testing.T) {
	tester, _, _, logs := newHarness(t)
	require.NoError(t, tester.Start())
	defer tester.Stop()

	require.NoError(t, tester.HandleKey(context.Background(), 'S'))

	st := tester.Stats()
	assert.Equal(t, 1, st.ShowRequests)
	assert.Equal(t, 1, st.FailedToLoad)
	assert.Equal(t, 1, logs.FilterMessage("rewarded ad failed to load").Len())
}

func TestFullShowCycle(t *testing.T) {
	tester, med, sched, logs := newHarness(t)
	require.NoError(t, tester.Start())
	defer tester.Stop()

	require.NoError(t, med.LoadAll(context.Background()))
	sched.Advance(3 * time.Second)
	require.NoError(t, tester.HandleKey(context.Background(), 'c'))
	require.NoError(t, tester.HandleKey(context.Background(), 's'))
	sched.Advance(time.Minute)

	st := tester.Stats()
	assert.Equal(t, 1, st.ReadyChecks)
	assert.GreaterOrEqual(t, st.Loaded, 2)
	assert.Equal(t, 1, st.Shown)
	assert.Equal(t, 1, st.Rewarded)
	assert.Equal(t, 10, st.RewardTotal)

	ready := logs.FilterMessage("'C' pressed, checking ad readiness").All()
	require.Len(t, ready, 1)
	assert.Equal(t, true, ready[0].ContextMap()["ready"])
}

func TestUnknownKeysIgnored(t *testing.T) {
	tester, _, _, _ := newHarness(t)
	require.NoError(t, tester.Start())
	defer tester.Stop()

	require.NoError(t, tester.HandleKey(context.Background(), 'x'))
	assert.Equal(t, Stats{}, tester.Stats())
}

func TestStopDetaches(t *testing.T) {
	tester, med, sched, _ := newHarness(t)
	require.NoError(t, tester.Start())
	require.NoError(t, tester.Start())
	tester.Stop()
	tester.Stop()

	require.NoError(t, med.LoadAll(context.Background()))
	sched.Advance(3 * time.Second)
	assert.Zero(t, tester.Stats().Loaded)
}

func TestRunConsumesKeysUntilEOF(t *testing.T) {
	tester, med, sched, _ := newHarness(t)
	require.NoError(t, tester.Start())
	defer tester.Stop()

	require.NoError(t, med.LoadAll(context.Background()))
	sched.Advance(3 * time.Second)

	require.NoError(t, tester.Run(context.Background(), strings.NewReader("c\ns\nC x")))
	st := tester.Stats()
	assert.Equal(t, 2, st.ReadyChecks)
	assert.Equal(t, 1, st.ShowRequests)
	assert.Equal(t, 1, st.Shown)
}

func TestRunStopsOnCancel(t *testing.T) {
	tester, _, _, _ := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pr := blockingReader{}
	assert.ErrorIs(t, tester.Run(ctx, pr), context.Canceled)
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}
