// internal/model/audience.go
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	AudienceManual     = "manual"
	AudienceList       = "list"
	AudienceAllClients = "all_clients"
)

// Audience is the decoded form of a campaign's audience_type + audience_filters.
// It is one of ManualAudience, ListAudience or AllClientsAudience.
type Audience interface {
	Type() string
}

type ManualAudience struct {
	Entries []ManualEntry `json:"manual_emails"`
}

type ListAudience struct {
	ListIDs []int `json:"list_ids"`
}

type AllClientsAudience struct{}

func (ManualAudience) Type() string     { return AudienceManual }
func (ListAudience) Type() string       { return AudienceList }
func (AllClientsAudience) Type() string { return AudienceAllClients }

// ManualEntry accepts either a bare address ("a@x.com") or an object.
type ManualEntry struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Status    string `json:"status,omitempty"`
}

func (e *ManualEntry) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ManualEntry{Email: s}
		return nil
	}
	type plain ManualEntry
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("manual entry: %w", err)
	}
	*e = ManualEntry(p)
	return nil
}

// flexibleID decodes 3 and "3" alike.
type flexibleID int

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexibleID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("list id: expected number, got %s", string(b))
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("list id %q: %w", s, err)
	}
	*f = flexibleID(n)
	return nil
}

var errFiltersNotObject = errors.New("audience filters must be a JSON object")

// DecodeAudience turns the stored filters payload into a typed audience.
// Unknown audience types fall back to all clients. Empty or null filters
// yield an empty audience; anything malformed is an error.
func DecodeAudience(audienceType string, raw []byte) (Audience, error) {
	raw = bytes.TrimSpace(raw)
	empty := len(raw) == 0 || bytes.Equal(raw, []byte("null"))
	if !empty && raw[0] != '{' {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("decode audience filters: invalid JSON")
		}
		return nil, errFiltersNotObject
	}

	switch strings.ToLower(strings.TrimSpace(audienceType)) {
	case AudienceManual:
		var payload struct {
			ManualEmails []ManualEntry `json:"manual_emails"`
		}
		if !empty {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, fmt.Errorf("decode manual filters: %w", err)
			}
		}
		return ManualAudience{Entries: payload.ManualEmails}, nil

	case AudienceList:
		var payload struct {
			ListIDs []flexibleID `json:"list_ids"`
		}
		if !empty {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, fmt.Errorf("decode list filters: %w", err)
			}
		}
		ids := make([]int, 0, len(payload.ListIDs))
		seen := make(map[int]struct{}, len(payload.ListIDs))
		for _, id := range payload.ListIDs {
			if id <= 0 {
				continue
			}
			if _, dup := seen[int(id)]; dup {
				continue
			}
			seen[int(id)] = struct{}{}
			ids = append(ids, int(id))
		}
		return ListAudience{ListIDs: ids}, nil

	default:
		if !empty && !json.Valid(raw) {
			return nil, fmt.Errorf("decode audience filters: invalid JSON")
		}
		return AllClientsAudience{}, nil
	}
}
