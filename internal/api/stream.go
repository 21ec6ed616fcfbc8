package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/mediation"
	"github.com/patrickwarner/admediation/internal/middleware"
	"github.com/patrickwarner/admediation/internal/models"
)

const (
	streamBuffer       = 256
	streamWriteTimeout = 5 * time.Second
)

// eventFilter selects which events a stream receives. Empty fields match all.
type eventFilter struct {
	types  map[models.EventType]struct{}
	userID string
}

func parseFilter(r *http.Request) eventFilter {
	f := eventFilter{userID: r.URL.Query().Get("user_id")}
	if raw := r.URL.Query().Get("types"); raw != "" {
		f.types = make(map[models.EventType]struct{})
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.types[models.EventType(t)] = struct{}{}
			}
		}
	}
	return f
}

func (f eventFilter) match(ev models.Event) bool {
	if f.types != nil {
		if _, ok := f.types[ev.Type]; !ok {
			return false
		}
	}
	return f.userID == "" || f.userID == ev.UserID
}

// EventStreamHandler upgrades GET /events to a WebSocket and streams every
// mediator event as JSON. Each connection registers its own observer, which is
// removed when the client disconnects. Slow clients lose events instead of
// stalling the mediator.
func (s *Server) EventStreamHandler(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromRequest(r, s.Logger)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	filter := parseFilter(r)
	ch := make(chan models.Event, streamBuffer)
	reg := s.Mediator.Register(mediation.ObserverFunc(func(ev models.Event) {
		if !filter.match(ev) {
			return
		}
		select {
		case ch <- ev:
		default:
			s.Metrics.IncrementSinkErrors("websocket")
		}
	}))
	defer reg.Unregister()
	s.Metrics.IncrementRequests("events_stream", "GET", "101")
	logger.Debug("event stream opened", zap.String("remote", r.RemoteAddr))

	// the read side only exists to notice the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				logger.Debug("event stream write", zap.Error(err))
				return
			}
		case <-closed:
			logger.Debug("event stream closed", zap.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
