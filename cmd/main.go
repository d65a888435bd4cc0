package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angeloszaimis/failover-proxy/config"
	"github.com/angeloszaimis/failover-proxy/internal/admin"
	"github.com/angeloszaimis/failover-proxy/internal/backend"
	"github.com/angeloszaimis/failover-proxy/internal/healthmonitor"
	"github.com/angeloszaimis/failover-proxy/internal/healthprobe"
	"github.com/angeloszaimis/failover-proxy/internal/httpserver"
	"github.com/angeloszaimis/failover-proxy/internal/metrics"
	"github.com/angeloszaimis/failover-proxy/internal/router"
	"github.com/angeloszaimis/failover-proxy/internal/toggle"
	"github.com/angeloszaimis/failover-proxy/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	timeouts, err := parseFailoverTimeouts(cfg.Failover)
	if err != nil {
		log.Error("Invalid failover timeouts", slog.Any("err", err))
		os.Exit(1)
	}

	primary, standby, err := initializeBackends(cfg, timeouts.connect, timeouts.read)
	if err != nil {
		log.Error("Failed to initialize backends", slog.Any("err", err))
		os.Exit(1)
	}

	monitor := healthmonitor.NewMonitor(cfg.Failover.FailureThreshold, timeouts.cooldown)
	toggleCtrl := toggle.NewController(primary, standby, log)

	collector := metrics.NewCollector(1024, log)
	collector.Start(ctx)

	trafficRouter := router.New(log, toggleCtrl, monitor, collector,
		timeouts.budget, cfg.Failover.MaxBufferedBodyBytes)
	adminHandler := admin.NewHandler(log, toggleCtrl, monitor, collector)

	currentPrimary := func() string {
		return toggleCtrl.Current().Primary.Pool()
	}

	mux := setupRouter(trafficRouter, adminHandler, collector, currentPrimary)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	if cfg.Probe.Enabled {
		interval, err := time.ParseDuration(cfg.Probe.Interval)
		if err != nil {
			log.Error("Invalid probe interval", slog.Any("err", err))
			os.Exit(1)
		}
		go healthprobe.Probe(ctx, primary, monitor, interval, cfg.Probe.Path, log)
		go healthprobe.Probe(ctx, standby, monitor, interval, cfg.Probe.Path, log)
	}

	log.Info("Failover proxy starting",
		slog.String("addr", cfg.Server.Address),
		slog.String("primary", primary.Pool()),
		slog.String("standby", standby.Pool()))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting failover proxy", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

type failoverTimeouts struct {
	cooldown time.Duration
	connect  time.Duration
	read     time.Duration
	budget   time.Duration
}

func parseFailoverTimeouts(fc config.FailoverConfig) (failoverTimeouts, error) {
	var t failoverTimeouts
	var err error

	if t.cooldown, err = time.ParseDuration(fc.Cooldown); err != nil {
		return t, fmt.Errorf("cooldown: %w", err)
	}
	if t.connect, err = time.ParseDuration(fc.ConnectTimeout); err != nil {
		return t, fmt.Errorf("connect_timeout: %w", err)
	}
	if t.read, err = time.ParseDuration(fc.ReadTimeout); err != nil {
		return t, fmt.Errorf("read_timeout: %w", err)
	}
	if t.budget, err = time.ParseDuration(fc.RetryBudget); err != nil {
		return t, fmt.Errorf("retry_budget: %w", err)
	}

	return t, nil
}

// initializeBackends builds the two process-lifetime backends: the pool named
// by initial_primary and the remaining one as standby.
func initializeBackends(cfg *config.Config, connectTimeout, readTimeout time.Duration) (primary, standby *backend.Backend, err error) {
	primaryCfg, exists := cfg.Pools[cfg.InitialPrimary]
	if !exists {
		return nil, nil, fmt.Errorf("initial_primary %q is not a configured pool", cfg.InitialPrimary)
	}

	var standbyName string
	for name := range cfg.Pools {
		if name != cfg.InitialPrimary {
			standbyName = name
		}
	}
	if standbyName == "" {
		return nil, nil, fmt.Errorf("exactly two distinct pools are required, got %d", len(cfg.Pools))
	}

	primaryURL, err := url.Parse(primaryCfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("pool %q: %w", cfg.InitialPrimary, err)
	}

	standbyURL, err := url.Parse(cfg.Pools[standbyName].URL)
	if err != nil {
		return nil, nil, fmt.Errorf("pool %q: %w", standbyName, err)
	}

	primary = backend.New(primaryURL, cfg.InitialPrimary, connectTimeout, readTimeout)
	standby = backend.New(standbyURL, standbyName, connectTimeout, readTimeout)
	return primary, standby, nil
}
