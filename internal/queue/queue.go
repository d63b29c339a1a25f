package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

// Handler processes one message body. A non-nil error asks for a retry.
type Handler func(ctx context.Context, body []byte) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

const defaultMaxRetries = 3

// InMemoryQueue is an in-process queue with retry and linear backoff.
type InMemoryQueue struct {
	MaxRetries int
	Backoff    time.Duration

	mu       sync.Mutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		MaxRetries: defaultMaxRetries,
		Backoff:    500 * time.Millisecond,
		handlers:   make(map[string][]Handler),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Body       []byte
	RetryCount int
	MaxRetries int
}

// Publish encodes payload as JSON and hands it to every subscriber of topic.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	// jobs outlive the publishing request
	jobCtx := logger.ToContext(context.Background(), logger.From(ctx))
	for _, handler := range handlers {
		handler := handler
		job := JobPayload{Topic: topic, Body: body, MaxRetries: q.MaxRetries}
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.processJob(jobCtx, handler, job)
		}()
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, job JobPayload) {
	log := logger.From(ctx).With(logger.String("topic", job.Topic))
	for {
		err := handler(ctx, job.Body)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			log.Error("job permanently failed", logger.Int("attempts", job.RetryCount), logger.Err(err))
			return
		}
		log.Warn("job failed, retrying", logger.Int("attempt", job.RetryCount), logger.Err(err))
		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(_ context.Context, topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Close waits for in-flight jobs, including their retries.
func (q *InMemoryQueue) Close() error {
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
