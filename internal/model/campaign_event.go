// internal/model/campaign_event.go
package model

import (
	"encoding/json"
	"time"
)

const (
	EventDelivered   = "delivered"
	EventOpen        = "open"
	EventClick       = "click"
	EventBounce      = "bounce"
	EventComplaint   = "complaint"
	EventUnsubscribe = "unsubscribe"
)

// DurableEventTypes are archived as campaign_events rows. delivered is not.
var DurableEventTypes = []string{EventOpen, EventClick, EventBounce, EventComplaint, EventUnsubscribe}

// IsDurableEvent reports whether events of this canonical type are archived.
func IsDurableEvent(t string) bool {
	for _, d := range DurableEventTypes {
		if d == t {
			return true
		}
	}
	return false
}

// CampaignEvent is write-once.
type CampaignEvent struct {
	ID          int             `db:"id" json:"id"`
	CampaignID  int             `db:"campaign_id" json:"campaign_id"`
	RecipientID int             `db:"recipient_id" json:"recipient_id"`
	EventType   string          `db:"event_type" json:"event_type"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// MetricsSummary is the campaign aggregate stored in campaigns.metrics_summary by the event recorder.
type MetricsSummary struct {
	RecipientStats
	Events     map[string]int `json:"events"`
	ComputedAt time.Time      `json:"computed_at"`
}

// EventJob is a normalized provider event travelling through the events queue.
type EventJob struct {
	ID          string         `json:"id"`
	CampaignID  int            `json:"campaign_id"`
	RecipientID int            `json:"recipient_id"`
	Event       string         `json:"event"`
	Context     map[string]any `json:"context,omitempty"`
	OccurredAt  *time.Time     `json:"occurred_at,omitempty"`
}
