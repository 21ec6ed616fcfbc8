package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/patrickwarner/admediation/internal/analytics"
	"github.com/patrickwarner/admediation/internal/config"
	"github.com/patrickwarner/admediation/internal/observability"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var id string
	var dsn string
	var since time.Duration
	flag.StringVar(&id, "id", "", "request ID; when empty a per-network summary is printed")
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.DurationVar(&since, "since", 24*time.Hour, "summary window")
	flag.Parse()

	if dsn == "" {
		cfg := config.Load()
		dsn = cfg.ClickHouseDSN
	}

	a, err := analytics.InitClickHouse(dsn, 2, observability.NewNoOpRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out interface{}
	if id != "" {
		out, err = a.EventsByRequestID(ctx, id)
	} else {
		out, err = a.Summary(ctx, time.Now().Add(-since))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}
}
