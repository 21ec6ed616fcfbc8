package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/admediation/internal/adsource"
	"github.com/patrickwarner/admediation/internal/config"
	"github.com/patrickwarner/admediation/internal/mediation"
	"github.com/patrickwarner/admediation/internal/observability"
	"github.com/patrickwarner/admediation/internal/scheduler"
	"github.com/patrickwarner/admediation/internal/tester"
)

type options struct {
	timeScale float64
	logLevel  string
	userID    string
	seed      int64
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "adtester",
		Short:         "Manual harness for the rewarded ad mediator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Float64Var(&opts.timeScale, "time-scale", 1.0, "Multiplier applied to simulated network delays (0.1 runs ten times faster)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&opts.userID, "user", "adtester", "User ID attached to show requests")
	root.PersistentFlags().Int64Var(&opts.seed, "seed", 0, "Seed for random fill and completion (0 uses SIMULATION_SEED)")

	root.AddCommand(newInteractiveCmd(opts), newScriptCmd(opts))
	return root
}

func newInteractiveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Short:   "Read keys from stdin: s = show rewarded ad, c = check readiness",
		Example: "  adtester interactive --time-scale 0.5",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHarness(cmd.Context(), opts, func(ctx context.Context, h *harness) error {
				fmt.Fprintln(cmd.OutOrStdout(), "press s + enter to show a rewarded ad, c + enter to check readiness, ctrl-d to quit")
				err := h.tester.Run(ctx, cmd.InOrStdin())
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func newScriptCmd(opts *options) *cobra.Command {
	var (
		keys   string
		delay  time.Duration
		settle time.Duration
	)
	cmd := &cobra.Command{
		Use:     "script",
		Short:   "Replay a fixed key sequence and print the collected stats",
		Example: "  adtester script --keys sccs --delay 4s --time-scale 0.1",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(keys) == "" {
				return errors.New("--keys is required")
			}
			return withHarness(cmd.Context(), opts, func(ctx context.Context, h *harness) error {
				for _, k := range keys {
					if err := h.tester.HandleKey(ctx, k); err != nil {
						return err
					}
					if err := sleep(ctx, h.scaled(delay)); err != nil {
						return err
					}
				}
				if err := sleep(ctx, h.scaled(settle)); err != nil {
					return err
				}
				return printStats(cmd.OutOrStdout(), h.tester.Stats())
			})
		},
	}
	cmd.Flags().StringVar(&keys, "keys", "", "Key sequence to replay, e.g. \"sccs\"")
	cmd.Flags().DurationVar(&delay, "delay", 4*time.Second, "Simulated time between keys")
	cmd.Flags().DurationVar(&settle, "settle", 10*time.Second, "Simulated time to wait after the last key")
	return cmd
}

type harness struct {
	logger    *zap.Logger
	loop      *scheduler.Loop
	mediator  *mediation.Mediator
	tester    *tester.AdTester
	timeScale float64
}

func (h *harness) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * h.timeScale)
}

// withHarness builds the loop, sources, mediator and tester, runs fn and
// tears everything down in reverse order.
func withHarness(parent context.Context, opts *options, fn func(context.Context, *harness) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := observability.InitConsoleLogger(observability.ParseLevel(opts.logLevel), "adtester")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if opts.timeScale <= 0 {
		return errors.New("--time-scale must be positive")
	}
	seed := cfg.Seed
	if opts.seed != 0 {
		seed = opts.seed
	}

	loop := scheduler.NewLoop(logger, scheduler.WithTimeScale(opts.timeScale))
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

	var sources []adsource.Source
	for i, sc := range cfg.Sources() {
		sources = append(sources, adsource.FromConfig(sc, loop, seed+int64(i), adsource.WithLogger(logger)))
	}
	med, err := mediation.New(logger, nil, sources)
	if err != nil {
		return err
	}
	defer med.Close()

	t := tester.New(med, logger, tester.WithExecutor(loop), tester.WithUserID(opts.userID))
	if err := t.Start(); err != nil {
		return err
	}
	defer t.Stop()

	if err := loop.Do(ctx, func() {
		if err := med.LoadAll(ctx); err != nil {
			logger.Warn("initial load incomplete", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	return fn(ctx, &harness{logger: logger, loop: loop, mediator: med, tester: t, timeScale: opts.timeScale})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func printStats(w io.Writer, st tester.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
