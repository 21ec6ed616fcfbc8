package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/analytics"
	"github.com/patrickwarner/admediation/internal/mediation"
	"github.com/patrickwarner/admediation/internal/middleware"
	"github.com/patrickwarner/admediation/internal/observability"
	"github.com/patrickwarner/admediation/internal/ratelimit"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

// BalanceReader returns reward wallet balances. rewards.Ledger and
// db.RedisStore implement it.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

// RewardStats reports today's reward counters. db.RedisStore implements it.
type RewardStats interface {
	DailyRewardCount(ctx context.Context, userID string) (int64, error)
	DailyNetworkAmount(ctx context.Context, network string) (int64, error)
}

// Pinger is a dependency checked by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Mediator  *mediation.Mediator
	Exec      scheduler.Executor
	Wallet    BalanceReader
	// RewardStats adds daily counters to balance and status responses when set.
	RewardStats RewardStats
	Analytics analytics.AnalyticsService
	Metrics   observability.MetricsRegistry
	Checks    map[string]Pinger

	// Limiter caps show requests per user. Nil disables limiting.
	Limiter *ratelimit.UserLimiter

	// ShowTimeout bounds how long a show request waits for the scheduler.
	ShowTimeout time.Duration

	upgrader websocket.Upgrader
}

// NewServer constructs a Server. exec serialises mediator calls onto the
// thread that runs source callbacks.
func NewServer(logger *zap.Logger, med *mediation.Mediator, exec scheduler.Executor, wallet BalanceReader, svc analytics.AnalyticsService, metrics observability.MetricsRegistry) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if exec == nil {
		exec = scheduler.Inline{}
	}
	return &Server{
		Logger:      logger,
		Mediator:    med,
		Exec:        exec,
		Wallet:      wallet,
		Analytics:   svc,
		Metrics:     metrics,
		Checks:      make(map[string]Pinger),
		ShowTimeout: 5 * time.Second,
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Router returns the API routes wrapped in the trace and access logging
// middleware. /metrics is mounted by the caller.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))
	r.Use(middleware.AccessLog(s.Logger))

	r.HandleFunc("/rewarded/show", s.ShowHandler).Methods("POST")
	r.HandleFunc("/rewarded/ready", s.ReadyHandler).Methods("GET")
	r.HandleFunc("/rewarded/status", s.StatusHandler).Methods("GET")
	r.HandleFunc("/rewarded/requests/{request_id}/events", s.RequestEventsHandler).Methods("GET")
	r.HandleFunc("/rewards/{user_id}", s.BalanceHandler).Methods("GET")
	r.HandleFunc("/events", s.EventStreamHandler).Methods("GET")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
