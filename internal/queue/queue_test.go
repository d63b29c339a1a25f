package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func fastQueue() *InMemoryQueue {
	q := NewInMemoryQueue()
	q.Backoff = time.Millisecond
	return q
}

func TestInMemoryQueueRetriesUntilSuccess(t *testing.T) {
	q := fastQueue()
	var calls int32
	require.NoError(t, q.Subscribe(context.Background(), "t", func(_ context.Context, body []byte) error {
		assert.JSONEq(t, `{"n":1}`, string(body))
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("boom")
		}
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "t", map[string]int{"n": 1}))
	require.NoError(t, q.Close())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryQueueGivesUpAfterMaxRetries(t *testing.T) {
	q := fastQueue()
	var calls int32
	require.NoError(t, q.Subscribe(context.Background(), "t", func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	}))

	require.NoError(t, q.Publish(context.Background(), "t", 1))
	require.NoError(t, q.Close())
	assert.Equal(t, int32(q.MaxRetries+1), atomic.LoadInt32(&calls))
}

func TestInMemoryQueueWithoutSubscribers(t *testing.T) {
	err := fastQueue().Publish(context.Background(), "nobody", 1)
	assert.Error(t, err)
}

type fakeAck struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue bool
}

func (f *fakeAck) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAck) Reject(uint64, bool) error { return nil }

func TestHandleDelivery(t *testing.T) {
	fail := func(context.Context, []byte) error { return errors.New("nope") }
	ok := func(context.Context, []byte) error { return nil }

	t.Run("success acks", func(t *testing.T) {
		ack := &fakeAck{}
		handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack}, ok, 3, func([]byte, int) error {
			t.Fatal("no republish expected")
			return nil
		})
		assert.Equal(t, 1, ack.acks)
	})

	t.Run("failure republishes with incremented header", func(t *testing.T) {
		ack := &fakeAck{}
		var got int
		d := amqp.Delivery{Acknowledger: ack, Body: []byte("x"), Headers: amqp.Table{retryHeader: int32(1)}}
		handleDelivery(context.Background(), d, fail, 3, func(body []byte, retries int) error {
			got = retries
			assert.Equal(t, []byte("x"), body)
			return nil
		})
		assert.Equal(t, 2, got)
		assert.Equal(t, 1, ack.acks)
	})

	t.Run("exhausted retries are dropped", func(t *testing.T) {
		ack := &fakeAck{}
		d := amqp.Delivery{Acknowledger: ack, Headers: amqp.Table{retryHeader: int64(3)}}
		handleDelivery(context.Background(), d, fail, 3, func([]byte, int) error {
			t.Fatal("no republish expected")
			return nil
		})
		assert.Equal(t, 1, ack.acks)
		assert.Zero(t, ack.nacks)
	})

	t.Run("republish failure requeues", func(t *testing.T) {
		ack := &fakeAck{}
		handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack}, fail, 3, func([]byte, int) error {
			return errors.New("broker down")
		})
		assert.Equal(t, 1, ack.nacks)
		assert.True(t, ack.requeue)
	})
}

type recordingApplier struct {
	mu   sync.Mutex
	jobs []model.EventJob
}

func (r *recordingApplier) Apply(_ context.Context, campaignID, recipientID int, eventType string, eventCtx map[string]any, occurredAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, model.EventJob{CampaignID: campaignID, RecipientID: recipientID, Event: eventType, Context: eventCtx, OccurredAt: occurredAt})
	return nil
}

func TestStartEventSubscriber(t *testing.T) {
	q := fastQueue()
	applier := &recordingApplier{}
	require.NoError(t, StartEventSubscriber(context.Background(), q, "events", service.NewWorker(applier)))

	job := model.EventJob{ID: "e1", CampaignID: 4, RecipientID: 9, Event: "email.opened", Context: map[string]any{"ip": "1.2.3.4"}}
	require.NoError(t, q.Publish(context.Background(), "events", job))
	require.NoError(t, q.Close())

	require.Len(t, applier.jobs, 1)
	assert.Equal(t, 4, applier.jobs[0].CampaignID)
	assert.Equal(t, 9, applier.jobs[0].RecipientID)
	assert.Equal(t, "email.opened", applier.jobs[0].Event)
	assert.Equal(t, "1.2.3.4", applier.jobs[0].Context["ip"])
}

func TestStartEventSubscriberIgnoresGarbage(t *testing.T) {
	q := fastQueue()
	applier := &recordingApplier{}
	require.NoError(t, StartEventSubscriber(context.Background(), q, "events", service.NewWorker(applier)))

	require.NoError(t, q.Publish(context.Background(), "events", json.RawMessage(`"not a job"`)))
	require.NoError(t, q.Close())
	assert.Empty(t, applier.jobs)
}
