package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"content-tasks/internal/config"
	"content-tasks/internal/database"
	"content-tasks/internal/markdown"
	"content-tasks/internal/queue"
	"content-tasks/internal/rendercache"
	"content-tasks/internal/search"
	"content-tasks/internal/state"
	"content-tasks/internal/storage"
	"content-tasks/internal/telemetry"
	"content-tasks/internal/worker"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	db, err := database.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		log.Error("migrations", "error", err)
		os.Exit(1)
	}

	objectStore, err := storage.NewClient(ctx, cfg)
	if err != nil {
		log.Error("init object store", "error", err)
		os.Exit(1)
	}

	broker := redis.NewClient(&redis.Options{
		Addr:     cfg.BrokerAddr,
		Password: cfg.BrokerPassword,
		DB:       cfg.BrokerDB,
	})
	results := redis.NewClient(&redis.Options{
		Addr:     cfg.ResultAddr,
		Password: cfg.ResultPassword,
		DB:       cfg.ResultDB,
	})

	q := queue.New(broker, queue.Options{VisibilityTimeout: cfg.VisibilityTimeout})
	st := state.New(results, cfg.ResultTTL)
	cache := rendercache.New(results)
	renderer := markdown.NewClient(cfg.MarkdownServiceHost, cfg.MarkdownServicePort, cfg.RenderTimeout)
	index := search.NewIndexer(cfg.MeiliHost, cfg.MeiliAPIKey)

	processor := worker.NewProcessor(cfg, q, st, log)
	progress := func(ctx context.Context, jobID, text string, percent float64) {
		_ = st.ReportProgress(ctx, jobID, text, percent)
	}
	handlers := worker.NewHandlers(cfg, objectStore, db, renderer, cache, index, progress, log)
	handlers.RegisterAll(processor)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Warn("metrics server stopped", "error", err)
		}
	}()

	log.Info("worker started",
		"concurrency", cfg.WorkerConcurrency,
		"visibility", cfg.VisibilityTimeout,
		"max_deliveries", cfg.MaxDeliveries)
	if err := processor.Run(ctx); err != nil && err != context.Canceled {
		log.Error("worker stopped", "error", err)
	}
}
