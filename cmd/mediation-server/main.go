package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/adsource"
	"github.com/patrickwarner/admediation/internal/analytics"
	"github.com/patrickwarner/admediation/internal/api"
	"github.com/patrickwarner/admediation/internal/config"
	"github.com/patrickwarner/admediation/internal/db"
	"github.com/patrickwarner/admediation/internal/mediation"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
	"github.com/patrickwarner/admediation/internal/ratelimit"
	"github.com/patrickwarner/admediation/internal/rewards"
	"github.com/patrickwarner/admediation/internal/scheduler"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, observability.TracingConfig{
			ServiceName: cfg.ServiceName,
			Endpoint:    cfg.TempoEndpoint,
			Environment: cfg.Environment,
			SampleRate:  cfg.TracingSampleRate,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	metricsRegistry := observability.NewPrometheusRegistry()

	sourceConfigs := cfg.Sources()
	var pg *db.Postgres
	if cfg.PostgresDSN != "" {
		var err error
		pg, err = db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return fmt.Errorf("failed to connect postgres: %w", err)
		}
		defer pg.Close()
		if cfg.SourcesFromPostgres {
			if sourceConfigs, err = loadCatalogue(ctx, logger, pg, sourceConfigs); err != nil {
				return err
			}
		}
	}
	if len(sourceConfigs) == 0 {
		return errors.New("no ad sources enabled")
	}

	// Every source callback and mediator call runs on this loop.
	loop := scheduler.NewLoop(logger, scheduler.WithTimeScale(cfg.TimeScale))
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	sources := make([]adsource.Source, 0, len(sourceConfigs))
	for i, sc := range sourceConfigs {
		sources = append(sources, adsource.FromConfig(sc, loop, cfg.Seed+int64(i),
			adsource.WithLogger(logger),
			adsource.WithMetrics(metricsRegistry)))
		logger.Info("ad source registered",
			zap.String("network", string(sc.Network)),
			zap.Int("priority", i),
			zap.String("ad_unit_id", sc.AdUnitID))
	}

	med, err := mediation.New(logger, metricsRegistry, sources)
	if err != nil {
		return fmt.Errorf("create mediator: %w", err)
	}
	defer med.Close()

	var (
		wallet      api.BalanceReader
		rewardStats api.RewardStats
		eventStore  analytics.AnalyticsService
	)
	checks := map[string]api.Pinger{}

	if cfg.RedisAddr != "" {
		store, err := db.InitRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer store.Close()
		ledger := rewards.NewLedger(context.Background(), store, cfg.RewardDailyTTL, logger, metricsRegistry)
		reg := med.Register(ledger)
		defer func() {
			reg.Unregister()
			ledger.Close()
		}()
		wallet = ledger
		rewardStats = store
		checks["redis"] = store
	}

	if cfg.ClickHouseDSN != "" {
		ch, err := initAnalytics(cfg, metricsRegistry)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer ch.Close()
		sink := analyticsSink(ch, logger, metricsRegistry)
		reg := med.Register(sink)
		defer func() {
			reg.Unregister()
			sink.Close()
		}()
		eventStore = ch
		checks["clickhouse"] = pingFunc(ch.DB.PingContext)
	}
	if pg != nil {
		checks["postgres"] = pingFunc(pg.DB.PingContext)
	}

	if cfg.LoadOnStartup {
		if err := loop.Do(ctx, func() {
			if err := med.LoadAll(ctx); err != nil {
				logger.Warn("initial load incomplete", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("initial load: %w", err)
		}
	}

	srvDeps := api.NewServer(logger, med, loop, wallet, eventStore, metricsRegistry)
	srvDeps.RewardStats = rewardStats
	for name, check := range checks {
		srvDeps.Checks[name] = check
	}
	if cfg.ShowRateLimitEnabled {
		srvDeps.Limiter = ratelimit.NewUserLimiter(ratelimit.Config{
			Capacity:   cfg.ShowRateLimitCapacity,
			RefillRate: cfg.ShowRateLimitRefill,
			Enabled:    true,
		}, metricsRegistry)
		go pruneLimiter(ctx, srvDeps.Limiter, time.Minute)
	}
	r := srvDeps.Router()
	r.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(r, "admediation"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Mediation server running",
		zap.String("addr", addr),
		zap.Float64("time_scale", cfg.TimeScale),
		zap.Int("sources", len(sources)))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// loadCatalogue seeds the ad_sources table from the environment defaults on
// first start and returns the enabled rows in priority order.
func loadCatalogue(ctx context.Context, logger *zap.Logger, pg *db.Postgres, defaults []models.SourceConfig) ([]models.SourceConfig, error) {
	n, err := pg.SeedAdSources(ctx, defaults)
	if err != nil {
		return nil, fmt.Errorf("seed ad sources: %w", err)
	}
	if n > 0 {
		logger.Info("seeded ad source catalogue", zap.Int("rows", n))
	}
	sources, err := pg.LoadAdSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ad sources: %w", err)
	}
	return sources, nil
}

func initAnalytics(cfg config.Config, metrics observability.MetricsRegistry) (*analytics.Analytics, error) {
	return analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, metrics)
}

func analyticsSink(svc analytics.AnalyticsService, logger *zap.Logger, metrics observability.MetricsRegistry) *analytics.Sink {
	return analytics.NewSink(context.Background(), svc, logger, metrics, 4096)
}

func pruneLimiter(ctx context.Context, l *ratelimit.UserLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
