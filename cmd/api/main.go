package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"content-tasks/internal/api"
	"content-tasks/internal/config"
	"content-tasks/internal/dispatch"
	"content-tasks/internal/queue"
	"content-tasks/internal/ratelimit"
	"content-tasks/internal/rendercache"
	"content-tasks/internal/state"
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
	dispatcher := dispatch.New(q, st)
	cache := rendercache.New(results)
	limiter := ratelimit.NewTokenBucket(broker, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	server := api.New(cfg, dispatcher, q, cache, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Info("api listening", "port", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
