package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/analytics"
	"github.com/patrickwarner/admediation/internal/mediation"
	"github.com/patrickwarner/admediation/internal/middleware"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/ratelimit"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

// ReadyResponse is the body of GET /rewarded/ready.
type ReadyResponse struct {
	Ready bool `json:"ready"`
}

// StatusResponse is the body of GET /rewarded/status. RewardsToday is the
// amount granted per network since midnight UTC.
type StatusResponse struct {
	Ready        bool                       `json:"ready"`
	Sources      []models.SourceStatus      `json:"sources"`
	RewardsToday map[models.NetworkID]int64 `json:"rewards_today,omitempty"`
}

// BalanceResponse is the body of GET /rewards/{user_id}.
type BalanceResponse struct {
	UserID       string           `json:"user_id"`
	Balance      int64            `json:"balance"`
	RewardsToday *int64           `json:"rewards_today,omitempty"`
	RateLimit    *ratelimit.Stats `json:"rate_limit,omitempty"`
}

// showStatus maps mediator errors to HTTP status codes.
func showStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrNoFill):
		return http.StatusNoContent
	case errors.Is(err, models.ErrNotReady), errors.Is(err, models.ErrAlreadyShowing):
		return http.StatusConflict
	case errors.Is(err, models.ErrClosed), errors.Is(err, scheduler.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ShowHandler handles POST /rewarded/show. The body is optional; when present
// it carries the user the reward should be credited to.
func (s *Server) ShowHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "rewarded_show"
	const method = "POST"
	logger := middleware.LoggerFromRequest(r, s.Logger)

	var req mediation.ShowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("invalid show request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	if req.UserID == "" {
		req.UserID = r.URL.Query().Get("user_id")
	}
	if !s.Limiter.Allow(req.UserID) {
		logger.Info("show request rate limited", zap.String("user_id", req.UserID))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many show requests")
		s.Metrics.IncrementRequests(endpoint, method, "429")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.ShowTimeout)
	defer cancel()

	res, showErr := scheduler.Call(ctx, s.Exec, func(ctx context.Context) (mediation.ShowResult, error) {
		return s.Mediator.RequestShow(ctx, req)
	})

	status := showStatus(showErr)
	switch status {
	case http.StatusOK:
		writeJSON(w, status, res)
	case http.StatusNoContent:
		w.WriteHeader(status)
	default:
		logger.Warn("show request failed",
			zap.String("request_id", res.RequestID),
			zap.String("network", string(res.Network)),
			zap.Error(showErr))
		writeError(w, status, showErr.Error())
	}

	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// ReadyHandler handles GET /rewarded/ready.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "rewarded_ready"
	const method = "GET"

	writeJSON(w, http.StatusOK, ReadyResponse{Ready: s.Mediator.IsAnyReady()})

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// StatusHandler handles GET /rewarded/status.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "rewarded_status"
	const method = "GET"

	status := s.Mediator.Status()
	ready := false
	for _, st := range status {
		ready = ready || st.Ready
	}
	resp := StatusResponse{Ready: ready, Sources: status}
	if s.RewardStats != nil {
		resp.RewardsToday = make(map[models.NetworkID]int64, len(status))
		for _, st := range status {
			amount, err := s.RewardStats.DailyNetworkAmount(r.Context(), string(st.Network))
			if err != nil {
				// status stays useful without the counters
				middleware.LoggerFromRequest(r, s.Logger).Warn("daily reward amount", zap.String("network", string(st.Network)), zap.Error(err))
				resp.RewardsToday = nil
				break
			}
			resp.RewardsToday[st.Network] = amount
		}
	}
	writeJSON(w, http.StatusOK, resp)

	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

// BalanceHandler handles GET /rewards/{user_id}.
func (s *Server) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "rewards_balance"
	const method = "GET"

	status := http.StatusOK
	defer func() {
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	}()

	if s.Wallet == nil {
		status = http.StatusServiceUnavailable
		writeError(w, status, "reward wallet unavailable")
		return
	}
	userID := mux.Vars(r)["user_id"]
	bal, err := s.Wallet.Balance(r.Context(), userID)
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("balance lookup", zap.String("user_id", userID), zap.Error(err))
		status = http.StatusInternalServerError
		writeError(w, status, "balance lookup failed")
		return
	}
	resp := BalanceResponse{UserID: userID, Balance: bal}
	if s.RewardStats != nil {
		count, err := s.RewardStats.DailyRewardCount(r.Context(), userID)
		if err != nil {
			middleware.LoggerFromRequest(r, s.Logger).Error("daily reward count", zap.String("user_id", userID), zap.Error(err))
			status = http.StatusInternalServerError
			writeError(w, status, "balance lookup failed")
			return
		}
		resp.RewardsToday = &count
	}
	if st, ok := s.Limiter.StatsFor(userID); ok {
		resp.RateLimit = &st
	}
	writeJSON(w, status, resp)
}

// RequestEventsHandler handles GET /rewarded/requests/{request_id}/events and
// returns the stored lifecycle of one show request.
func (s *Server) RequestEventsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "request_events"
	const method = "GET"

	status := http.StatusOK
	defer func() {
		s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	}()

	if s.Analytics == nil {
		status = http.StatusServiceUnavailable
		writeError(w, status, analytics.ErrUnavailable.Error())
		return
	}
	id := mux.Vars(r)["request_id"]
	evs, err := s.Analytics.EventsByRequestID(r.Context(), id)
	if errors.Is(err, analytics.ErrUnavailable) {
		status = http.StatusServiceUnavailable
		writeError(w, status, err.Error())
		return
	}
	if err != nil {
		middleware.LoggerFromRequest(r, s.Logger).Error("query request events", zap.String("request_id", id), zap.Error(err))
		status = http.StatusInternalServerError
		writeError(w, status, "query failed")
		return
	}
	if evs == nil {
		evs = []analytics.EventRecord{}
	}
	writeJSON(w, status, evs)
}
