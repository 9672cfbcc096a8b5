package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"scout/internal/config"
	"scout/internal/daemon"
	"scout/internal/fetch"
	"scout/internal/ingest"
	"scout/internal/logging"
	"scout/internal/notifications"
	"scout/internal/pipeline"
	"scout/internal/scheduler"
	"scout/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return
	}

	registry := fetch.NewRegistry()
	httpClient := fetch.NewHTTPClient(fetch.WithLogger(logger))
	if err := registry.Register(fetch.NewRSSAdapter(httpClient)); err != nil {
		logger.Error("register adapters", logging.Error(err))
		return
	}

	notifier := notifications.NewService(cfg)
	ingestor := ingest.New(st, cfg, logger)
	sched := scheduler.New(cfg, st, logger, registry, ingestor, notifier)
	manager := pipeline.NewManager(cfg, st, logger, notifier, nil)

	d, err := daemon.New(cfg, st, logger, sched, manager)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("scoutd shutting down")
}
