// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Command a2aserver runs the A2A task server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/agentwire/a2a/server"
	"github.com/agentwire/a2a/server/event"
	"github.com/agentwire/a2a/server/task"
)

var cli struct {
	Config   string `help:"Path to a JSON config file." env:"CONFIG_FILE" type:"existingfile" optional:""`
	EnvFile  string `help:"Path to a dotenv file loaded before reading the environment." optional:""`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info" enum:"debug,info,warn,error"`
	LogJSON  bool   `help:"Emit logs as JSON."`

	Host      string `help:"Listen host (overrides config)." optional:""`
	Port      int    `help:"Listen port (overrides config)." optional:""`
	Transport string `help:"Transport mode: http, ws, or both (overrides config)." optional:"" enum:",http,ws,both"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("a2aserver"),
		kong.Description("Agent-to-agent task protocol server."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(run())
}

func run() error {
	if cli.EnvFile != "" {
		if err := godotenv.Load(cli.EnvFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		// Best effort: a .env next to the binary is picked up when present.
		godotenv.Load()
	}

	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := server.LoadConfig(cli.Config)
	if err != nil {
		return err
	}
	if cli.Host != "" {
		cfg.Host = cli.Host
	}
	if cli.Port != 0 {
		cfg.Port = cli.Port
	}
	if cli.Transport != "" {
		cfg.Transport = cli.Transport
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()

	store, pushStore, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}

	metrics := server.NewMetrics(prometheus.DefaultRegisterer)
	hub := event.NewHub(
		event.WithBuffer(cfg.SubscriberBuffer),
		event.WithLogger(logger),
		event.WithDropHandler(func(string) { metrics.DroppedSubs.Inc() }),
	)

	notifierOpts := []server.NotifierOption{
		server.WithNotifierLogger(logger),
		server.WithNotifierMetrics(metrics),
	}
	if cfg.PushSigningSecret != "" {
		notifierOpts = append(notifierOpts, server.WithSigningSecret([]byte(cfg.PushSigningSecret)))
	}
	notifier := server.NewWebhookNotifier(cfg.AgentName, notifierOpts...)

	manager, err := task.NewManager(store, hub,
		task.WithManagerLogger(logger),
		task.WithPushConfigStore(pushStore),
		task.WithNotifier(notifier),
		task.WithCreateHook(func(string) { metrics.TasksCreated.Inc() }),
	)
	if err != nil {
		return err
	}

	handler := server.NewHandler(manager, logger, metrics)
	srv, err := server.New(cfg, manager, store, handler, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch cli.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cli.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStores builds the task and push config stores for the configured
// backend and runs their migrations.
func openStores(ctx context.Context, cfg server.Config, logger *slog.Logger) (task.TaskStore, task.PushConfigStore, error) {
	if cfg.Storage == server.StorageMemory {
		return task.NewInMemoryTaskStore(), task.NewInMemoryPushConfigStore(), nil
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	store, err := task.NewGormTaskStore(db)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, nil, err
	}

	pushStore, err := task.NewGormPushConfigStore(db)
	if err != nil {
		return nil, nil, err
	}
	if err := pushStore.Initialize(ctx); err != nil {
		return nil, nil, err
	}

	logger.Info("database storage initialized", "dsn", cfg.DatabaseDSN)
	return store, pushStore, nil
}
