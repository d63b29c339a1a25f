// internal/model/subscriber.go
package model

import "time"

const (
	SubscriberStatusActive       = "active"
	SubscriberStatusUnsubscribed = "unsubscribed"
	SubscriberStatusBounced      = "bounced"

	SubscriberSourceImported = "imported"
)

// ValidSubscriberStatus reports whether s is one of the known subscriber statuses.
func ValidSubscriberStatus(s string) bool {
	switch s {
	case SubscriberStatusActive, SubscriberStatusUnsubscribed, SubscriberStatusBounced:
		return true
	}
	return false
}

type Subscriber struct {
	ID               int        `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	FirstName        string     `db:"first_name" json:"first_name"`
	LastName         string     `db:"last_name" json:"last_name"`
	Status           string     `db:"status" json:"status"`
	Source           string     `db:"source" json:"source"`
	LastEngagementAt *time.Time `db:"last_engagement_at" json:"last_engagement_at,omitempty"`
	UnsubscribedAt   *time.Time `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

type List struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type ListSubscription struct {
	ListID         int        `db:"list_id" json:"list_id"`
	SubscriberID   int        `db:"subscriber_id" json:"subscriber_id"`
	Status         string     `db:"status" json:"status"`
	UnsubscribedAt *time.Time `db:"unsubscribed_at" json:"unsubscribed_at,omitempty"`
}

// ListMember is an active list subscription joined with its subscriber.
type ListMember struct {
	ListID       int    `db:"list_id" json:"list_id"`
	SubscriberID int    `db:"subscriber_id" json:"subscriber_id"`
	Email        string `db:"email" json:"email"`
	FirstName    string `db:"first_name" json:"first_name"`
	LastName     string `db:"last_name" json:"last_name"`
}

// Candidate is one resolved audience entry before it hits the recipient ledger.
type Candidate struct {
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	SubscriberID *int   `json:"subscriber_id,omitempty"`
	Sendable     bool   `json:"sendable"`
	SkipReason   string `json:"skip_reason,omitempty"`
}
