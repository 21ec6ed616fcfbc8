package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/admediation/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)
	return c
}

func TestShow(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rewarded/show", r.URL.Path)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "player-1", body["user_id"])
		_, _ = w.Write([]byte(`{"request_id":"req-1","network":"UnityAds"}`))
	}))

	res, err := c.Show(context.Background(), "player-1")
	require.NoError(t, err)
	assert.Equal(t, ShowResult{RequestID: "req-1", Network: models.NetworkUnityAds}, res)
}

func TestShowNoFill(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	res, err := c.Show(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrNoFill)
	assert.Equal(t, models.NetworkNone, res.Network)
}

func TestShowConflict(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"ad already showing"}`))
	}))
	_, err := c.Show(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrNotReady)
	assert.Contains(t, err.Error(), "ad already showing")
}

func TestStatusAndReady(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rewarded/ready":
			_, _ = w.Write([]byte(`{"ready":true}`))
		case "/rewarded/status":
			_, _ = w.Write([]byte(`{"ready":true,"sources":[{"network":"AdMob","state":"ready","priority":0,"ready":true},{"network":"UnityAds","state":"loading","priority":1,"ready":false}]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	ready, err := c.Ready(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Sources, 2)
	assert.Equal(t, models.StateReady, st.Sources[0].State)
	assert.Equal(t, models.StateLoading, st.Sources[1].State)
}

func TestBalance(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rewards/player%201", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"user_id":"player 1","balance":25}`))
	}))
	bal, err := c.Balance(context.Background(), "player 1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), bal)

	_, err = c.Balance(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"reward wallet unavailable"}`))
	}))
	_, err := c.Balance(context.Background(), "u")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "reward wallet unavailable", apiErr.Message)
}

func TestSubscribeEvents(t *testing.T) {
	upgrader := gorillaws.Upgrader{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "rewarded", r.URL.Query().Get("types"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		_ = conn.WriteJSON(models.NewRewarded(models.NetworkAdMob, 10))
		time.Sleep(50 * time.Millisecond)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := c.SubscribeEvents(ctx, models.EventRewarded)
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, models.EventRewarded, ev.Type)
		assert.Equal(t, 10, ev.Amount)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
	assert.Equal(t, "ws://localhost:8787/events", deriveWSURL("http://localhost:8787"))
	assert.Equal(t, "wss://ads.example.com/events", deriveWSURL("https://ads.example.com"))
}
