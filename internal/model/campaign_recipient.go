// internal/model/campaign_recipient.go
package model

import "time"

const (
	RecipientStatusPending = "pending"
	RecipientStatusSent    = "sent"
	RecipientStatusFailed  = "failed"
	RecipientStatusSkipped = "skipped"
)

// CampaignRecipient is one ledger row, unique per (campaign_id, email).
type CampaignRecipient struct {
	ID               int        `db:"id" json:"id"`
	CampaignID       int        `db:"campaign_id" json:"campaign_id"`
	SubscriberID     *int       `db:"subscriber_id" json:"subscriber_id,omitempty"`
	Email            string     `db:"email" json:"email"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Status           string     `db:"status" json:"status"` // pending, sent, failed, skipped
	Opens            int        `db:"opens" json:"opens"`
	Clicks           int        `db:"clicks" json:"clicks"`
	LastOpenAt       *time.Time `db:"last_open_at" json:"last_open_at,omitempty"`
	LastClickAt      *time.Time `db:"last_click_at" json:"last_click_at,omitempty"`
	SentAt           *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	LastError        *string    `db:"last_error" json:"last_error,omitempty"`
	UnsubscribeToken *string    `db:"unsubscribe_token" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// RecipientStats is a live aggregate over one campaign's ledger.
type RecipientStats struct {
	Total        int `json:"total"`
	Pending      int `json:"pending"`
	Sent         int `json:"sent"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	Opens        int `json:"opens"`
	UniqueOpens  int `json:"unique_opens"`
	Clicks       int `json:"clicks"`
	UniqueClicks int `json:"unique_clicks"`
}
