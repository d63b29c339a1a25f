package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unclebandit/mailleopard-backend/internal/app"
	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
)

// The worker drains delivery events published by the server's webhook intake.
// It only makes sense with QUEUE_DRIVER=amqp.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "mailleopard-worker"})
	defer logger.Sync()
	lg := logger.L()

	if cfg.Queue.Driver != "amqp" && cfg.Queue.Driver != "rabbitmq" {
		lg.Fatal("worker needs QUEUE_DRIVER=amqp", logger.String("driver", cfg.Queue.Driver))
	}

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

	if err := queue.StartEventSubscriber(ctx, q, cfg.Queue.EventsQueue, a.Worker); err != nil {
		lg.Fatal("subscribe events", logger.Err(err))
	}

	lg.Info("worker running, waiting for events", logger.String("queue", cfg.Queue.EventsQueue))
	<-ctx.Done()
	lg.Info("worker stopping")
}
