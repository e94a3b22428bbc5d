// Command watcher polls the store's CSV snapshots and prints each file's new
// content when its modification time changes. Changes can also be published
// to an AMQP topic exchange.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/smartstore-copilot/internal/config"
	"github.com/kjstillabower/smartstore-copilot/internal/observability"
	"github.com/kjstillabower/smartstore-copilot/internal/watcher"
)

func main() {
	targets := flag.String("targets", "", "comma-separated watch target names (default: all configured)")
	flag.Parse()

	logger, err := observability.NewLogger("watcher")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	selected, err := selectTargets(cfg, *targets)
	if err != nil {
		logger.Fatal("targets", zap.Error(err))
	}

	sinks := watcher.MultiSink{watcher.NewConsoleSink(os.Stdout, headings(selected))}
	if cfg.AMQPURL != "" {
		amqpSink, err := watcher.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal("amqp sink", zap.Error(err))
		}
		defer func() {
			if err := amqpSink.Close(); err != nil {
				logger.Warn("amqp close", zap.Error(err))
			}
		}()
		sinks = append(sinks, amqpSink)
		logger.Info("publishing changes", zap.String("exchange", cfg.AMQPExchange))
	}

	if cfg.WatchMetricsPort != "" {
		srv := &http.Server{
			Addr:              ":" + cfg.WatchMetricsPort,
			Handler:           observability.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, selected, cfg.WatchInterval, sinks, logger); err != nil {
		logger.Error("watcher stopped", zap.Error(err))
	}
	logger.Info("watcher stopped")
}

// run polls every target until ctx is cancelled. It returns the first
// watcher setup error; cancellation is not an error.
func run(ctx context.Context, targets []config.WatchTarget, interval time.Duration, sink watcher.Sink, logger *zap.Logger) error {
	watchers := make([]*watcher.Watcher, 0, len(targets))
	for _, t := range targets {
		w, err := watcher.New(watcher.Config{Name: t.Name, Path: t.Path, Interval: interval}, sink, logger)
		if err != nil {
			return fmt.Errorf("target %s: %w", t.Name, err)
		}
		watchers = append(watchers, w)
		logger.Info("watching", zap.String("target", t.Name), zap.String("path", t.Path), zap.Duration("interval", interval))
	}

	var wg sync.WaitGroup
	for _, w := range watchers {
		wg.Add(1)
		go func(w *watcher.Watcher) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher exited", zap.Error(err))
			}
		}(w)
	}
	wg.Wait()
	return nil
}

// selectTargets returns the configured targets named in filter, in filter
// order. An empty filter selects all of them.
func selectTargets(cfg *config.Config, filter string) ([]config.WatchTarget, error) {
	if strings.TrimSpace(filter) == "" {
		if len(cfg.WatchTargets) == 0 {
			return nil, errors.New("no watch targets configured")
		}
		return cfg.WatchTargets, nil
	}
	var out []config.WatchTarget
	seen := map[string]bool{}
	for _, name := range strings.Split(filter, ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		t, ok := cfg.Target(name)
		if !ok {
			return nil, fmt.Errorf("unknown watch target %q", name)
		}
		seen[name] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, errors.New("no watch targets selected")
	}
	return out, nil
}

func headings(targets []config.WatchTarget) map[string]string {
	h := make(map[string]string, len(targets))
	for _, t := range targets {
		if t.Label != "" {
			h[t.Name] = t.Label
		}
	}
	return h
}
