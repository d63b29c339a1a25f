package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// EventApplier applies one delivery event. Implemented by EventRecorder.
type EventApplier interface {
	Apply(ctx context.Context, campaignID, recipientID int, eventType string, eventCtx map[string]any, occurredAt *time.Time) error
}

// EventRecorder applies delivery events to the ledger, the subscriber and the
// campaign metrics in one transaction.
type EventRecorder struct {
	Store repository.TxRunner
	Now   func() time.Time
}

func NewEventRecorder(store repository.TxRunner) *EventRecorder {
	return &EventRecorder{Store: store}
}

func (r *EventRecorder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Apply records eventType for recipientID. An unknown recipient, or one that
// belongs to another campaign, is a silent no-op. Any write failure rolls the
// whole event back and is returned.
func (r *EventRecorder) Apply(ctx context.Context, campaignID, recipientID int, eventType string, eventCtx map[string]any, occurredAt *time.Time) error {
	canonical := NormalizeEventType(eventType)
	at := r.now()
	if occurredAt != nil && !occurredAt.IsZero() {
		at = *occurredAt
	}
	log := logger.From(ctx).With(logger.CampaignID(campaignID), logger.RecipientID(recipientID), logger.Event(canonical))

	applied := false
	err := r.Store.WithTx(ctx, func(repos repository.Repositories) error {
		rec, err := repos.Recipients.GetByID(ctx, recipientID)
		if err != nil {
			return fmt.Errorf("load recipient %d: %w", recipientID, err)
		}
		if rec == nil || rec.CampaignID != campaignID {
			log.Debug("event ignored: recipient not in campaign")
			return nil
		}

		if err := r.transition(ctx, repos, rec, canonical, eventCtx, at); err != nil {
			return err
		}

		if model.IsDurableEvent(canonical) {
			meta, err := json.Marshal(FilterMetadata(eventCtx))
			if err != nil {
				return fmt.Errorf("encode event metadata: %w", err)
			}
			if err := repos.Events.Insert(ctx, &model.CampaignEvent{
				CampaignID:  campaignID,
				RecipientID: recipientID,
				EventType:   canonical,
				Metadata:    meta,
				OccurredAt:  at,
			}); err != nil {
				return err
			}
		}

		summary, err := ComputeMetrics(ctx, repos.Recipients, repos.Events, campaignID, r.now())
		if err != nil {
			return err
		}
		b, err := encodeMetrics(summary)
		if err != nil {
			return err
		}
		if err := repos.Campaigns.UpdateMetricsSummary(ctx, campaignID, b); err != nil {
			return fmt.Errorf("update metrics of campaign %d: %w", campaignID, err)
		}
		applied = true
		return nil
	})
	if err != nil {
		log.Error("event rolled back", logger.Err(err))
		return err
	}
	if applied {
		metrics.EventsApplied.WithLabelValues(eventLabel(canonical)).Inc()
	}
	return nil
}

func (r *EventRecorder) transition(ctx context.Context, repos repository.Repositories, rec *model.CampaignRecipient, canonical string, eventCtx map[string]any, at time.Time) error {
	subscriberID, err := r.subscriberFor(ctx, repos, rec)
	if err != nil {
		return err
	}

	switch canonical {
	case model.EventDelivered:
		return repos.Recipients.MarkDelivered(ctx, rec.ID, at)

	case model.EventOpen, model.EventClick:
		record := repos.Recipients.RecordOpen
		if canonical == model.EventClick {
			record = repos.Recipients.RecordClick
		}
		if err := record(ctx, rec.ID, at); err != nil {
			return err
		}
		if subscriberID != 0 {
			if err := repos.Subscribers.TouchEngagement(ctx, subscriberID, at); err != nil {
				return fmt.Errorf("touch engagement of subscriber %d: %w", subscriberID, err)
			}
		}
		return nil

	case model.EventBounce:
		if err := repos.Recipients.MarkFailed(ctx, rec.ID, ExtractReason(canonical, eventCtx)); err != nil {
			return err
		}
		if subscriberID != 0 {
			if err := repos.Subscribers.MarkBounced(ctx, subscriberID); err != nil {
				return fmt.Errorf("mark subscriber %d bounced: %w", subscriberID, err)
			}
		}
		return nil

	case model.EventComplaint, model.EventUnsubscribe:
		if err := repos.Recipients.ConsumeUnsubscribeToken(ctx, rec.ID, ExtractReason(canonical, eventCtx)); err != nil {
			return err
		}
		if subscriberID != 0 {
			if err := repos.Subscribers.Unsubscribe(ctx, subscriberID, at); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// subscriberFor returns the recipient's subscriber id, looking it up by email
// when the ledger row has none. Zero means no subscriber.
func (r *EventRecorder) subscriberFor(ctx context.Context, repos repository.Repositories, rec *model.CampaignRecipient) (int, error) {
	if rec.SubscriberID != nil {
		return *rec.SubscriberID, nil
	}
	sub, err := repos.Subscribers.GetByEmail(ctx, NormalizeEmail(rec.Email))
	if err != nil {
		return 0, fmt.Errorf("find subscriber for recipient %d: %w", rec.ID, err)
	}
	if sub == nil {
		return 0, nil
	}
	return sub.ID, nil
}

func eventLabel(canonical string) string {
	switch canonical {
	case model.EventDelivered, model.EventOpen, model.EventClick,
		model.EventBounce, model.EventComplaint, model.EventUnsubscribe:
		return canonical
	}
	return "other"
}
