package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/adsource"
	"github.com/patrickwarner/admediation/internal/analytics"
	"github.com/patrickwarner/admediation/internal/db"
	"github.com/patrickwarner/admediation/internal/mediation"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
	"github.com/patrickwarner/admediation/internal/ratelimit"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

type testEnv struct {
	srv     *Server
	sched   *scheduler.Manual
	med     *mediation.Mediator
	metrics *observability.CountingRegistry
	wallet  *db.RedisStore
	events  *analytics.MockAnalytics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sched := scheduler.NewManual()
	metrics := observability.NewCountingRegistry()
	admob := adsource.NewAdMob(adsource.DefaultAdMobConfig(), sched)
	unity := adsource.NewUnityAds(adsource.DefaultUnityAdsConfig(), sched)
	med, err := mediation.New(zap.NewNop(), metrics, []adsource.Source{admob, unity})
	require.NoError(t, err)
	t.Cleanup(med.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	wallet := &db.RedisStore{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(wallet.Close)

	svc := analytics.NewMockAnalytics()
	srv := NewServer(zap.NewNop(), med, scheduler.Inline{}, wallet, svc, metrics)
	srv.Checks["redis"] = wallet
	srv.RewardStats = wallet
	return &testEnv{srv: srv, sched: sched, med: med, metrics: metrics, wallet: wallet, events: svc}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestShowHandlerNoFillReturns204(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/rewarded/show", `{"user_id":"player-1"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, 1, env.metrics.NoFillCount())

	// the no-fill path starts loads on both networks
	for _, st := range env.med.Status() {
		assert.Equal(t, models.StateLoading, st.State)
	}
}

func TestShowHandlerServesHighestPriority(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.med.LoadAll(context.Background()))
	env.sched.Advance(3 * time.Second)

	rec := env.do(t, http.MethodPost, "/rewarded/show", `{"user_id":"player-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res mediation.ShowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, models.NetworkAdMob, res.Network)
	assert.NotEmpty(t, res.RequestID)
}

func TestShowHandlerEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.med.LoadAll(context.Background()))
	env.sched.Advance(3 * time.Second)

	rec := env.do(t, http.MethodPost, "/rewarded/show?user_id=q", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShowHandlerBadJSON(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/rewarded/show", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShowHandlerClosedMediator(t *testing.T) {
	env := newTestEnv(t)
	env.med.Close()
	rec := env.do(t, http.MethodPost, "/rewarded/show", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestShowHandlerRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Limiter = ratelimit.NewUserLimiter(ratelimit.Config{Capacity: 1, RefillRate: 0.001, Enabled: true}, env.metrics)

	rec := env.do(t, http.MethodPost, "/rewarded/show", `{"user_id":"farmer"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/rewarded/show", `{"user_id":"farmer"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, env.metrics.ShowRequestCount("rate_limited"))
	// the limited request never reached the mediator
	assert.Equal(t, 1, env.metrics.NoFillCount())

	rec = env.do(t, http.MethodPost, "/rewarded/show", `{"user_id":"someone-else"}`)
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
}

func TestShowHandlerTimeoutDoesNotShowLater(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.med.LoadAll(context.Background()))
	env.sched.Advance(3 * time.Second)

	var (
		mu   sync.Mutex
		seen []models.Event
	)
	env.med.Register(mediation.ObserverFunc(func(ev models.Event) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop := scheduler.NewLoop(zap.NewNop())
	go func() { _ = loop.Run(ctx) }()
	env.srv.Exec = loop
	env.srv.ShowTimeout = 20 * time.Millisecond

	// keep the loop busy past the show timeout
	release := make(chan struct{})
	loop.Post(func() { <-release })

	rec := env.do(t, http.MethodPost, "/rewarded/show", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(release)
	require.NoError(t, loop.Do(ctx, func() {}))
	env.sched.Advance(time.Minute)

	assert.Equal(t, models.StateReady, env.med.Status()[0].State, "the ad stays cached for the next request")
	assert.Zero(t, env.metrics.ShowRequestCount("served"))
	mu.Lock()
	defer mu.Unlock()
	for _, ev := range seen {
		assert.NotEqual(t, models.EventShown, ev.Type)
		assert.NotEqual(t, models.EventRewarded, ev.Type)
	}
}

func TestShowStatusMapping(t *testing.T) {
	cases := map[error]int{
		nil:                      http.StatusOK,
		models.ErrNoFill:         http.StatusNoContent,
		models.ErrNotReady:       http.StatusConflict,
		models.ErrAlreadyShowing: http.StatusConflict,
		models.ErrClosed:         http.StatusServiceUnavailable,
		scheduler.ErrStopped:     http.StatusServiceUnavailable,
		context.DeadlineExceeded: http.StatusServiceUnavailable,
		errors.New("boom"):       http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, showStatus(err), "error %v", err)
	}
}

func TestReadyAndStatusHandlers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/rewarded/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":false}`, rec.Body.String())

	require.NoError(t, env.med.LoadAll(context.Background()))
	env.sched.Advance(2 * time.Second)

	rec = env.do(t, http.MethodGet, "/rewarded/ready", "")
	assert.JSONEq(t, `{"ready":true}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/rewarded/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Ready)
	require.Len(t, status.Sources, 2)
	assert.Equal(t, models.NetworkAdMob, status.Sources[0].Network)
	assert.Equal(t, models.StateReady, status.Sources[0].State)
	assert.Equal(t, models.StateLoading, status.Sources[1].State)
}

func TestBalanceHandler(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.wallet.CreditReward(context.Background(), "player-7", "AdMob", 10, time.Hour)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/rewards/player-7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"player-7","balance":10,"rewards_today":1}`, rec.Body.String())
}

func TestBalanceHandlerIncludesRateLimitStats(t *testing.T) {
	env := newTestEnv(t)
	env.srv.RewardStats = nil
	env.srv.Limiter = ratelimit.NewUserLimiter(ratelimit.Config{Capacity: 1, RefillRate: 0.001, Enabled: true}, env.metrics)

	rec := env.do(t, http.MethodGet, "/rewards/farmer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"farmer","balance":0}`, rec.Body.String())

	env.do(t, http.MethodPost, "/rewarded/show", `{"user_id":"farmer"}`)
	env.do(t, http.MethodPost, "/rewarded/show", `{"user_id":"farmer"}`)

	rec = env.do(t, http.MethodGet, "/rewards/farmer", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got BalanceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Nil(t, got.RewardsToday)
	require.NotNil(t, got.RateLimit)
	assert.Equal(t, int64(1), got.RateLimit.Hits)
	assert.Equal(t, int64(2), got.RateLimit.Total)
	assert.InDelta(t, 0.5, got.RateLimit.HitRate, 1e-9)
}

func TestBalanceHandlerRewardStatsFailure(t *testing.T) {
	env := newTestEnv(t)
	env.srv.RewardStats = failingRewardStats{}
	rec := env.do(t, http.MethodGet, "/rewards/player-7", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatusHandlerRewardsToday(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.wallet.CreditReward(ctx, "a", "AdMob", 10, time.Hour)
	require.NoError(t, err)
	_, err = env.wallet.CreditReward(ctx, "b", "AdMob", 10, time.Hour)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/rewarded/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, map[models.NetworkID]int64{
		models.NetworkAdMob:    20,
		models.NetworkUnityAds: 0,
	}, status.RewardsToday)

	// counters are optional; status still answers when they fail
	env.srv.RewardStats = failingRewardStats{}
	rec = env.do(t, http.MethodGet, "/rewarded/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status = StatusResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Nil(t, status.RewardsToday)
	assert.Len(t, status.Sources, 2)
}

type failingRewardStats struct{}

func (failingRewardStats) DailyRewardCount(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func (failingRewardStats) DailyNetworkAmount(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func TestBalanceHandlerWithoutWallet(t *testing.T) {
	env := newTestEnv(t)
	env.srv.Wallet = nil
	rec := env.do(t, http.MethodGet, "/rewards/player-7", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestEventsHandler(t *testing.T) {
	env := newTestEnv(t)
	ev := models.NewRewarded(models.NetworkAdMob, 10).WithRequest("req-1", "u")
	require.NoError(t, env.events.RecordEvent(context.Background(), ev))

	rec := env.do(t, http.MethodGet, "/rewarded/requests/req-1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []analytics.EventRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "rewarded", got[0].EventType)

	rec = env.do(t, http.MethodGet, "/rewarded/requests/none/events", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","dependencies":{"redis":"ok"}}`, rec.Body.String())

	env.wallet.Close()
	rec = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventStreamDeliversAndUnregisters(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.srv.Router())
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):] + "/events?types=loaded"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return env.metrics.ObserverCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, env.med.LoadAll(context.Background()))
	env.sched.Advance(2 * time.Second)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventLoaded, ev.Type)
	assert.Equal(t, models.NetworkAdMob, ev.Network)

	_ = conn.Close()
	require.Eventually(t, func() bool { return env.metrics.ObserverCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestEventFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events?types=rewarded,skipped&user_id=u1", nil)
	f := parseFilter(req)

	assert.True(t, f.match(models.NewRewarded(models.NetworkAdMob, 10).WithRequest("r", "u1")))
	assert.False(t, f.match(models.NewRewarded(models.NetworkAdMob, 10).WithRequest("r", "u2")))
	assert.False(t, f.match(models.NewLoaded(models.NetworkAdMob)))
	assert.True(t, parseFilter(httptest.NewRequest(http.MethodGet, "/events", nil)).match(models.NewLoaded(models.NetworkAdMob)))
}
