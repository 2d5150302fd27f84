package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/briefwire/briefwire/internal/config"
	"github.com/briefwire/briefwire/internal/executor"
	"github.com/briefwire/briefwire/internal/gateway"
	"github.com/briefwire/briefwire/internal/metrics"
	"github.com/briefwire/briefwire/internal/policy"
	"github.com/briefwire/briefwire/internal/producer/digest"
	"github.com/briefwire/briefwire/internal/scheduler"
	"github.com/briefwire/briefwire/internal/sink"
	"github.com/briefwire/briefwire/internal/sink/file"
	"github.com/briefwire/briefwire/internal/sink/smtp"
	"github.com/briefwire/briefwire/internal/sink/webhook"
	"github.com/briefwire/briefwire/internal/source/feed"
	"github.com/briefwire/briefwire/internal/store/sqlite"
	"github.com/briefwire/briefwire/internal/telemetry"
)

// runDaemon wires every component from the config and blocks until a
// shutdown signal arrives.
func runDaemon(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger := buildLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("briefwire starting", "version", version, "config", cfgPath)

	ctx := context.Background()
	shutdownTraces, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}

	st, err := sqlite.Open(cfg.Database.Path, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	src, err := feed.New(feed.Config{URL: cfg.Source.URL, Token: cfg.Source.Token})
	if err != nil {
		return err
	}

	sinks := sink.NewRegistry()
	if err := registerSinks(sinks, cfg.Sinks); err != nil {
		return err
	}

	exec, err := executor.New(src, digest.New(), sinks, st, m, executor.Config{
		FetchTimeout:    cfg.Executor.FetchTimeout.Std(),
		ProduceTimeout:  cfg.Executor.ProduceTimeout.Std(),
		DefaultLookback: cfg.Executor.DefaultLookback.Std(),
		ResultRetention: cfg.Executor.ResultRetention.Std(),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	sched, err := scheduler.New(st, exec, m, scheduler.Config{
		Workers:         cfg.Scheduler.Workers,
		QueueSize:       cfg.Scheduler.QueueSize,
		CleanupInterval: cfg.Scheduler.CleanupInterval.Std(),
		TaskRetention:   cfg.Scheduler.TaskRetention.Std(),
		Policy: policy.Policy{
			MaxFailures: cfg.Policy.MaxFailures,
			BaseDelay:   cfg.Policy.BaseDelay.Std(),
			MaxDelay:    cfg.Policy.MaxDelay.Std(),
			Jitter:      cfg.Policy.Jitter,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	var gw *gateway.Gateway
	if cfg.Gateway.Listen != "" {
		gw, err = gateway.New(sched, st, registry, logger, gateway.Config{Listen: cfg.Gateway.Listen})
		if err != nil {
			sched.Stop()
			return err
		}
		if err := gw.Start(); err != nil {
			sched.Stop()
			return err
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	got := <-sig
	logger.Info("shutting down", "signal", got.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if gw != nil {
		if err := gw.Stop(stopCtx); err != nil {
			logger.Error("gateway shutdown error", "error", err)
		}
	}
	sched.Stop()
	if err := shutdownTraces(stopCtx); err != nil {
		logger.Error("trace exporter shutdown error", "error", err)
	}
	return nil
}

// registerSinks wires the sinks the config enables. A destination kind
// without a configured sink fails deliveries with a clear outcome rather
// than failing startup.
func registerSinks(reg *sink.Registry, cfg config.SinksConfig) error {
	if cfg.Webhook != nil {
		s := webhook.New(webhook.Config{
			Timeout:       cfg.Webhook.Timeout.Std(),
			RatePerSecond: cfg.Webhook.RatePerSecond,
			Burst:         cfg.Webhook.Burst,
		})
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	if cfg.File != nil {
		if err := reg.Register(file.New(cfg.File.Dir)); err != nil {
			return err
		}
	}
	if cfg.SMTP != nil {
		s := smtp.New(smtp.Config{
			Addr:     cfg.SMTP.Addr,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		})
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}

func buildLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// checkConfig loads and validates a config file.
func checkConfig(path string) error {
	_, err := config.Load(path)
	return err
}

// exportTasks writes the task database to a JSON bundle.
func exportTasks(cfgPath, outPath string) error {
	st, logger, err := openStore(cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.Export(context.Background(), outPath); err != nil {
		return err
	}
	logger.Info("tasks exported", "path", outPath)
	return nil
}

// importTasks loads a JSON bundle into the task database.
func importTasks(cfgPath, inPath string) (int, error) {
	st, _, err := openStore(cfgPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = st.Close() }()

	return st.Import(context.Background(), inPath)
}

func openStore(cfgPath string) (*sqlite.Store, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger := buildLogger(cfg.Log)

	st, err := sqlite.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return st, logger, nil
}
