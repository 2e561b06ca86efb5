package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"alpharoyale/internal/alert"
	"alpharoyale/internal/bootstrap"
	"alpharoyale/internal/driver"
	"alpharoyale/internal/engine"
	"alpharoyale/internal/infrastructure/health"
	"alpharoyale/internal/infrastructure/metrics"
	"alpharoyale/internal/notify"
	"alpharoyale/internal/pricefeed"
	"alpharoyale/internal/scheduler"
	"alpharoyale/internal/server"
	"alpharoyale/internal/store"
	"alpharoyale/pkg/concurrency"
	"alpharoyale/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/match_engine.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("match_engine version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	cfg, logger := app.Cfg, app.Logger

	logger.Info("Starting match_engine",
		"version", version,
		"symbols", cfg.Symbols,
		"store_driver", cfg.Store.Driver,
		"tick_period_ms", cfg.Engine.TickPeriodMs,
	)

	tel, err := telemetry.Setup("match_engine")
	if err != nil {
		logger.Error("Failed to set up telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown incomplete", "error", err)
		}
	}()

	hub := notify.NewHub(logger)

	st, err := store.Open(cfg.Store, cfg.Engine.DurationBounds, hub, logger)
	if err != nil {
		logger.Error("Failed to open store", "error", err, "driver", cfg.Store.Driver)
		os.Exit(1)
	}
	defer st.Close()

	feed := pricefeed.NewClient(cfg.Vendor, logger)
	eng := engine.New(st, logger)
	alerts := alert.FromConfig(cfg.Alerts, logger)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "game-tick",
		MaxWorkers:  cfg.Engine.GamePoolSize,
		MaxCapacity: cfg.Engine.GamePoolBuffer,
	}, logger)
	defer pool.Stop()

	drv := driver.New(st, feed, eng, pool, cfg.Symbols, alerts, logger)

	tickPeriod := time.Duration(cfg.Engine.TickPeriodMs) * time.Millisecond
	sched, err := scheduler.New(drv, tickPeriod, cfg.Engine.HeartbeatSpec, alerts, logger)
	if err != nil {
		logger.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}

	healthManager := health.NewHealthManager(logger)
	healthManager.Register("store", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := st.ReadGameState(ctx)
		return err
	})
	healthManager.Register("scheduler", func() error {
		if status := sched.Status(); !status.Running {
			return fmt.Errorf("schedule %s not running", status.Name)
		}
		return nil
	})

	metricsServer := metrics.NewServer(cfg.Server.MetricsPort, logger)
	controlServer := server.New(cfg.Server.ControlPort, st, sched, healthManager, hub.Handler(), logger)

	err = app.Run(
		bootstrap.RunnerFunc(func(ctx context.Context) error {
			hub.Run(ctx)
			return nil
		}),
		bootstrap.RunnerFunc(func(ctx context.Context) error {
			sched.Start(ctx)
			<-ctx.Done()
			sched.Stop()
			return nil
		}),
		bootstrap.RunnerFunc(func(ctx context.Context) error {
			metricsServer.Start()
			controlServer.Start()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := controlServer.Stop(shutdownCtx); err != nil {
				logger.Warn("Control server shutdown incomplete", "error", err)
			}
			return metricsServer.Stop(shutdownCtx)
		}),
	)
	if err != nil {
		os.Exit(1)
	}
}
