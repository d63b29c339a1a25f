package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes JSON messages to durable RabbitMQ queues named after the topic.
type AMQPQueue struct {
	MaxRetries int

	conn *amqp.Connection
	ch   *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPQueue{
		MaxRetries: defaultMaxRetries,
		conn:       conn,
		ch:         ch,
		declared:   map[string]bool{},
	}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.declared[topic] {
		return nil
	}
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

func (q *AMQPQueue) Publish(_ context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retries int) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryHeader: int32(retries)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes topic until ctx is done or the channel closes.
func (q *AMQPQueue) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if err := q.declare(topic); err != nil {
		return err
	}
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				handleDelivery(ctx, d, handler, q.MaxRetries, func(body []byte, retries int) error {
					return q.publish(topic, body, retries)
				})
			}
		}
	}()
	return nil
}

// handleDelivery runs handler and acks d. Failures are republished with an
// incremented retry header until maxRetries, then dropped.
func handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler, maxRetries int, republish func(body []byte, retries int) error) {
	log := logger.From(ctx).With(logger.String("topic", d.RoutingKey))

	err := handler(ctx, d.Body)
	if err == nil {
		d.Ack(false)
		return
	}

	retries := retryCount(d.Headers)
	if retries >= maxRetries {
		log.Error("message dropped after retries", logger.Int("retries", retries), logger.Err(err))
		d.Ack(false)
		return
	}
	if perr := republish(d.Body, retries+1); perr != nil {
		log.Error("republish failed, requeueing", logger.Err(perr))
		d.Nack(false, true)
		return
	}
	log.Warn("message failed, retry scheduled", logger.Int("retry", retries+1), logger.Err(err))
	d.Ack(false)
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
