package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

type KeySource string

const (
	KeyFromEventID   KeySource = "event_id"
	KeyFromComposite KeySource = "composite"
	// KeyNone means the job carries nothing stable enough to deduplicate on.
	KeyNone KeySource = "none"
)

// DeriveKey returns a stable idempotency key for a webhook event and the source used.
// An explicit provider id wins. Otherwise a SHA-256 of campaign, recipient, event
// and occurred_at is used. Without an occurred_at two real opens would collide,
// so such jobs get no key at all.
func DeriveKey(job model.EventJob) (string, KeySource) {
	if id := strings.TrimSpace(job.ID); id != "" {
		return "evt:" + id, KeyFromEventID
	}
	if job.OccurredAt == nil || job.OccurredAt.IsZero() {
		return "", KeyNone
	}
	composite := fmt.Sprintf("%d|%d|%s|%s",
		job.CampaignID, job.RecipientID,
		strings.ToLower(strings.TrimSpace(job.Event)),
		job.OccurredAt.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(composite))
	return "evt:" + hex.EncodeToString(sum[:]), KeyFromComposite
}
