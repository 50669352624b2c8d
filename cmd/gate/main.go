package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Heahaidu/interest-project/pkg/config"
	"github.com/Heahaidu/interest-project/pkg/metrics"
	"github.com/Heahaidu/interest-project/pkg/retry"
	"github.com/Heahaidu/interest-project/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (required)")
	watch := flag.Bool("watch", false, "Reload keys and routes when the configuration file changes")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	// Token timestamps and logs are UTC regardless of the host zone.
	time.Local = time.UTC

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	if *configPath == "" {
		logger.Error("-config is required")
		os.Exit(1)
	}

	if err := run(*configPath, *watch, logger); err != nil {
		logger.Error("gate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string, watch bool, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpClient := &http.Client{Timeout: 10 * time.Second}

	var srv *server.Server
	pm := metrics.NewPrometheusMetrics(func() int { return srv.Runtime().Table.Len() })
	registry := prometheus.NewRegistry()
	registry.MustRegister(pm, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	build := func(ctx context.Context) (*server.Runtime, *config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		rt, err := server.Build(ctx, cfg, server.Options{
			Logger:     logger,
			Metrics:    pm,
			HTTPClient: httpClient,
			Retry:      retry.NetworkConfig(),
		})
		if err != nil {
			return nil, nil, err
		}
		return rt, cfg, nil
	}

	rt, cfg, err := build(ctx)
	if err != nil {
		return err
	}
	rt.LogFindings(logger)
	srv = server.New(rt, logger)

	logger.Info("starting gate",
		slog.String("addr", cfg.Gate.Spec.Address),
		slog.String("algorithm", rt.Material.Algorithm()),
		slog.String("keys", rt.Material.Origin()),
		slog.Int("rules", rt.Table.Len()),
		slog.Bool("login", rt.Login != nil),
	)

	if watch {
		reload := func(ctx context.Context) error {
			next, _, err := build(ctx)
			pm.RecordReload(err == nil)
			if err != nil {
				return err
			}
			next.LogFindings(logger)
			srv.Swap(next)
			return nil
		}
		if err := server.Watch(ctx, configPath, reload, logger); err != nil {
			return err
		}
		logger.Info("watching config for changes", slog.String("path", configPath))
	}

	httpServer := &http.Server{
		Addr:              cfg.Gate.Spec.Address,
		Handler:           h2c.NewHandler(srv.Handler(registry), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()
	srv.SetReady(true)
	logger.Info("gate ready", slog.String("addr", cfg.Gate.Spec.Address))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case runErr = <-serverErrChan:
		logger.Error("server error triggered shutdown", slog.String("error", runErr.Error()))
	}

	srv.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
	}

	logger.Info("gate stopped")
	return runErr
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
