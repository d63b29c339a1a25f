// internal/model/campaign.go
package model

import (
	"encoding/json"
	"time"
)

const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusSending   = "sending"
	CampaignStatusSent      = "sent"
	CampaignStatusFailed    = "failed"
)

type Campaign struct {
	ID              int             `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	AudienceType    string          `db:"audience_type" json:"audience_type"`
	AudienceFilters json.RawMessage `db:"audience_filters" json:"audience_filters,omitempty"`
	Subject         string          `db:"subject" json:"subject"`
	ContentHTML     string          `db:"content_html" json:"content_html"`
	TemplateID      *int            `db:"template_id" json:"template_id,omitempty"`
	Status          string          `db:"status" json:"status"`
	LastError       *string         `db:"last_error" json:"last_error,omitempty"`
	SentAt          *time.Time      `db:"sent_at" json:"sent_at,omitempty"`
	MetricsSummary  json.RawMessage `db:"metrics_summary" json:"metrics_summary,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time      `db:"updated_at" json:"updated_at,omitempty"`
}

// Dispatchable reports whether a real (non dry-run) dispatch may start from the current status.
func (c *Campaign) Dispatchable() bool {
	switch c.Status {
	case CampaignStatusDraft, CampaignStatusScheduled, CampaignStatusFailed:
		return true
	}
	return false
}

// Template is a reusable HTML body. Read-only here.
type Template struct {
	ID          int    `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	ContentHTML string `db:"content_html" json:"content_html"`
}

// DispatchSummary is what a dispatch run reports back and snapshots into metrics_summary.
type DispatchSummary struct {
	Total   int  `json:"total"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
	Skipped int  `json:"skipped"`
	DryRun  bool `json:"dry_run"`
}

// Actor is the identity recorded in the activity log. The zero value means "system".
type Actor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ActivityEntry struct {
	ID        int             `db:"id" json:"id"`
	ActorID   *int            `db:"actor_id" json:"actor_id,omitempty"`
	ActorName string          `db:"actor_name" json:"actor_name"`
	Action    string          `db:"action" json:"action"`
	EntityID  int             `db:"entity_id" json:"entity_id"`
	Details   json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
