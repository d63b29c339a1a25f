package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

// StartEventSubscriber feeds EventJobs published on topic to w.
func StartEventSubscriber(ctx context.Context, q Queue, topic string, w *service.Worker) error {
	return q.Subscribe(ctx, topic, func(ctx context.Context, body []byte) error {
		var job model.EventJob
		if err := json.Unmarshal(body, &job); err != nil {
			// retrying will not fix a bad payload
			logger.From(ctx).Warn("invalid event job payload", logger.Err(err))
			return nil
		}
		jobCtx := logger.ToContext(ctx, logger.From(ctx).With(logger.JobID(job.ID)))
		return w.Handle(jobCtx, job)
	})
}

// FromConfig builds the queue named by cfg.Queue.Driver.
func FromConfig(cfg config.Config) (Queue, error) {
	switch cfg.Queue.Driver {
	case "", "memory":
		return NewInMemoryQueue(), nil
	case "amqp", "rabbitmq":
		return DialAMQP(cfg.Queue.AMQPURL)
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}
