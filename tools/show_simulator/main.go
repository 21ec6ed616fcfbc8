package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/patrickwarner/admediation/internal/client"
	"github.com/patrickwarner/admediation/internal/config"
	"github.com/patrickwarner/admediation/internal/db"
	"github.com/patrickwarner/admediation/internal/models"
	"github.com/patrickwarner/admediation/internal/observability"
)

var (
	server    string
	users     int
	totalReq  int
	conc      int
	duration  time.Duration
	rate      float64
	jitter    float64
	stats     bool
	flush     bool
	redisAddr string
	debug     bool
	label     string
)

var logger *zap.Logger

const statsInterval = 5 * time.Second

var (
	countSent     uint64
	countShown    uint64
	countNoFill   uint64
	countConflict uint64
	countErrors   uint64
)

func main() {
	flag.StringVar(&server, "server", "http://localhost:8787", "mediation server base URL")
	flag.IntVar(&users, "users", 100, "number of unique users")
	flag.IntVar(&totalReq, "requests", 200, "total show requests to send")
	flag.IntVar(&conc, "concurrency", 4, "concurrent requests")
	flag.DurationVar(&duration, "duration", 0, "how long to run traffic (0 to disable)")
	flag.Float64Var(&rate, "rate", 1, "show requests per second (0 for unlimited)")
	flag.Float64Var(&jitter, "jitter", 0.0, "random jitter factor for request spacing")
	flag.BoolVar(&stats, "stats", false, "print aggregated stats periodically")
	flag.BoolVar(&flush, "flush", false, "delete reward wallets and daily counters before sending traffic")
	flag.StringVar(&redisAddr, "redis", "", "redis address (defaults to REDIS_ADDR)")
	flag.BoolVar(&debug, "debug", false, "enable verbose debug logs")
	flag.StringVar(&label, "label", "", "label to identify this run")
	flag.Parse()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	var err error
	logger, err = observability.InitLoggerWithLevel(level, "show-simulator")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: otelhttp.NewTransport(&http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 10 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
		}),
	}
	api, err := client.New(server, client.WithHTTPClient(httpClient))
	if err != nil {
		logger.Fatal("create client", zap.Error(err))
	}

	if label == "" {
		label = time.Now().Format(time.RFC3339)
	}

	if flush {
		flushRewards()
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rmu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, conc)
	done := make(chan struct{})

	var baseInterval time.Duration
	if rate > 0 {
		baseInterval = time.Duration(float64(time.Second) / rate)
	} else if duration > 0 && totalReq > 0 {
		baseInterval = duration / time.Duration(totalReq)
	}

	start := time.Now()
	next := start

	if stats {
		go func() {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					printStats()
				case <-done:
					return
				}
			}
		}()
	}
	for i := 0; ; i++ {
		if totalReq > 0 && i >= totalReq {
			break
		}
		if duration > 0 && time.Since(start) >= duration {
			break
		}
		if baseInterval > 0 {
			effective := baseInterval
			if jitter > 0 {
				jf := 1 + (r.Float64()*2-1)*jitter
				if jf < 0.1 {
					jf = 0.1
				}
				effective = time.Duration(float64(effective) * jf)
			}
			now := time.Now()
			if now.Before(next) {
				time.Sleep(next.Sub(now))
			}
			next = next.Add(effective)
		}
		rmu.Lock()
		userID := fmt.Sprintf("user%d", r.Intn(users))
		rmu.Unlock()

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			sendShow(api, userID)
		}()
	}
	wg.Wait()
	close(done)
	printStats()
}

func sendShow(api *client.Client, userID string) {
	atomic.AddUint64(&countSent, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := api.Show(ctx, userID)
	switch {
	case err == nil:
		atomic.AddUint64(&countShown, 1)
		logger.Debug("shown",
			zap.String("request_id", res.RequestID),
			zap.String("network", string(res.Network)),
			zap.String("user_id", userID))
	case errors.Is(err, models.ErrNoFill):
		atomic.AddUint64(&countNoFill, 1)
		logger.Debug("no fill", zap.String("user_id", userID))
	case errors.Is(err, models.ErrNotReady), errors.Is(err, models.ErrAlreadyShowing):
		atomic.AddUint64(&countConflict, 1)
		logger.Debug("conflict", zap.String("user_id", userID), zap.Error(err))
	default:
		atomic.AddUint64(&countErrors, 1)
		logger.Error("show request error", zap.Error(err))
	}
}

// flushRewards removes reward wallets and daily counters, leaving any other
// keys in the database untouched.
func flushRewards() {
	cfg := config.Load()
	addr := redisAddr
	if addr == "" {
		addr = cfg.RedisAddr
	}
	ctx := context.Background()
	store, err := db.InitRedis(ctx, addr)
	if err != nil {
		logger.Fatal("redis connect", zap.Error(err))
	}
	defer store.Close()

	deleted := 0
	iter := store.Client.Scan(ctx, 0, "reward:*", 500).Iterator()
	for iter.Next(ctx) {
		if err := store.Client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Error("failed to delete key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		logger.Error("scan reward keys", zap.Error(err))
	}
	logger.Info("reward data flushed", zap.String("addr", addr), zap.Int("keys_deleted", deleted))
}

func printStats() {
	sent := atomic.LoadUint64(&countSent)
	shown := atomic.LoadUint64(&countShown)
	nf := atomic.LoadUint64(&countNoFill)
	cf := atomic.LoadUint64(&countConflict)
	errs := atomic.LoadUint64(&countErrors)
	var fill float64
	if sent > 0 {
		fill = float64(shown) / float64(sent)
	}
	logger.Info("stats", zap.String("run", label), zap.Uint64("sent", sent), zap.Uint64("shown", shown),
		zap.Uint64("no_fill", nf), zap.Uint64("conflict", cf), zap.Uint64("errors", errs), zap.Float64("fill_rate", fill))
}
