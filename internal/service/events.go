package service

import (
	"strings"
	"unicode/utf8"

	"github.com/unclebandit/mailleopard-backend/internal/model"
)

const (
	// maxErrorLength bounds recipient.last_error written by the dispatch loop.
	maxErrorLength = 500
	// maxReasonLength bounds reasons extracted from provider event context.
	maxReasonLength = 255
)

var eventAliases = map[string]string{
	"email.sent":         model.EventDelivered,
	"sent":               model.EventDelivered,
	"email.delivered":    model.EventDelivered,
	"delivered":          model.EventDelivered,
	"delivery":           model.EventDelivered,
	"email.opened":       model.EventOpen,
	"opened":             model.EventOpen,
	"open":               model.EventOpen,
	"email.clicked":      model.EventClick,
	"clicked":            model.EventClick,
	"click":              model.EventClick,
	"email.bounced":      model.EventBounce,
	"bounced":            model.EventBounce,
	"bounce":             model.EventBounce,
	"email.complained":   model.EventComplaint,
	"complained":         model.EventComplaint,
	"complaint":          model.EventComplaint,
	"spam":               model.EventComplaint,
	"email.unsubscribed": model.EventUnsubscribe,
	"unsubscribed":       model.EventUnsubscribe,
	"unsubscribe":        model.EventUnsubscribe,
}

// NormalizeEventType maps provider aliases onto the canonical vocabulary.
// Unknown types come back lowercased and trimmed.
func NormalizeEventType(eventType string) string {
	key := strings.ToLower(strings.TrimSpace(eventType))
	if canonical, ok := eventAliases[key]; ok {
		return canonical
	}
	return key
}

var defaultReasons = map[string]string{
	model.EventBounce:      "Bounce reported by the mail provider.",
	model.EventComplaint:   "Spam complaint reported by the recipient.",
	model.EventUnsubscribe: "Recipient unsubscribed.",
}

var reasonKeys = []string{"reason", "diagnostic", "error", "message"}

// ExtractReason returns the first non-empty string among reason, diagnostic,
// error and message, or the default phrase for the event type.
func ExtractReason(canonical string, eventCtx map[string]any) string {
	for _, k := range reasonKeys {
		if s, ok := eventCtx[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return truncate(s, maxReasonLength)
			}
		}
	}
	return defaultReasons[canonical]
}

var metadataKeys = []string{"type", "ip", "user_agent", "reason", "diagnostic", "link", "recipient"}

// FilterMetadata keeps only the context keys worth archiving.
func FilterMetadata(eventCtx map[string]any) map[string]any {
	out := make(map[string]any, len(metadataKeys))
	for _, k := range metadataKeys {
		if v, ok := eventCtx[k]; ok && v != nil {
			out[k] = v
		}
	}
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
