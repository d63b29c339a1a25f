package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/mailleopard-backend/internal/controller"
	"github.com/unclebandit/mailleopard-backend/internal/idempotency"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/queue"
)

// maxWebhookBody caps a provider payload.
const maxWebhookBody = 1 << 20

// WebhookHandler accepts provider delivery events and queues them for the worker.
type WebhookHandler struct {
	Queue   queue.Queue
	Topic   string
	Deduper idempotency.Deduper
}

type webhookEvent struct {
	EventID     string         `json:"event_id"`
	CampaignID  int            `json:"campaign_id"`
	RecipientID int            `json:"recipient_id"`
	Event       string         `json:"event"`
	OccurredAt  *time.Time     `json:"occurred_at"`
	Context     map[string]any `json:"context"`
}

// EmailEvents handles POST /webhooks/email-events.
func (h *WebhookHandler) EmailEvents(w http.ResponseWriter, r *http.Request) {
	var in webhookEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&in); err != nil {
		controller.WriteProblem(w, http.StatusBadRequest, "invalid body")
		return
	}
	if in.CampaignID <= 0 || in.RecipientID <= 0 || strings.TrimSpace(in.Event) == "" {
		controller.WriteProblem(w, http.StatusBadRequest, "campaign_id, recipient_id and event are required")
		return
	}

	job := model.EventJob{
		ID:          in.EventID,
		CampaignID:  in.CampaignID,
		RecipientID: in.RecipientID,
		Event:       in.Event,
		Context:     in.Context,
		OccurredAt:  in.OccurredAt,
	}
	key, src := idempotency.DeriveKey(job)
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := logger.From(r.Context()).With(logger.JobID(job.ID), logger.CampaignID(job.CampaignID), logger.String("key_source", string(src)))

	if key != "" && h.Deduper != nil {
		first, err := h.Deduper.Claim(r.Context(), key)
		if err != nil {
			// fail open
			log.Warn("dedupe unavailable", logger.Err(err))
		} else if !first {
			log.Debug("duplicate webhook ignored")
			controller.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "job_id": job.ID})
			return
		}
	}

	if err := h.Queue.Publish(r.Context(), h.Topic, job); err != nil {
		log.Error("queue publish failed", logger.Err(err))
		if key != "" && h.Deduper != nil {
			if rerr := h.Deduper.Release(r.Context(), key); rerr != nil {
				log.Warn("dedupe release failed", logger.Err(rerr))
			}
		}
		controller.WriteProblem(w, http.StatusServiceUnavailable, "event could not be queued")
		return
	}

	controller.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "job_id": job.ID})
}
