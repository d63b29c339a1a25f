// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/unclebandit/mailleopard-backend/internal/app"
	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/controller"
	"github.com/unclebandit/mailleopard-backend/internal/handler"
	"github.com/unclebandit/mailleopard-backend/internal/idempotency"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "mailleopard-server"})
	defer logger.Sync()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		lg.Fatal("wiring failed", logger.Err(err))
	}
	defer a.Close()

	if err := metrics.Register(nil); err != nil {
		lg.Fatal("register metrics", logger.Err(err))
	}

	q, err := queue.FromConfig(cfg)
	if err != nil {
		lg.Fatal("queue", logger.Err(err))
	}
	defer q.Close()

	// with the in-process queue nobody else consumes, so the server applies events itself
	if cfg.Queue.Driver == "" || cfg.Queue.Driver == "memory" {
		if err := queue.StartEventSubscriber(ctx, q, cfg.Queue.EventsQueue, a.Worker); err != nil {
			lg.Fatal("subscribe events", logger.Err(err))
		}
	}

	dedupe, err := idempotency.FromConfig(ctx, cfg)
	if err != nil {
		lg.Fatal("dedupe", logger.Err(err))
	}

	health := &handler.Health{}
	if a.DB != nil {
		health.DB = a.DB
	}

	router := handler.NewRouter(handler.Routes{
		Logger:      lg,
		Campaigns:   &controller.CampaignController{CampaignService: a.Campaigns},
		Details:     &handler.CampaignHandler{Service: a.Campaigns},
		Webhooks:    &handler.WebhookHandler{Queue: q, Topic: cfg.Queue.EventsQueue, Deduper: dedupe},
		Unsubscribe: &handler.UnsubscribeHandler{Recipients: a.Recipients, Recorder: a.Recorder},
		Health:      health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // dispatch runs synchronously
	}

	go func() {
		lg.Info("server running", logger.String("addr", srv.Addr), logger.String("storage", cfg.StorageDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server failed", logger.Err(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("graceful shutdown failed", logger.Err(err))
	}
}
