package appErrors

import "fmt"

// ErrCampaignNotFound is returned when a campaign id does not resolve.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrCampaignNotDispatchable means the campaign status does not allow a new send.
// It is a precondition failure; retrying without changing the campaign will not help.
type ErrCampaignNotDispatchable struct {
	CampaignID int
	Status     string
}

func (e *ErrCampaignNotDispatchable) Error() string {
	return fmt.Sprintf("campaign %d cannot be sent in status: %s", e.CampaignID, e.Status)
}

func NewCampaignNotDispatchable(id int, status string) error {
	return &ErrCampaignNotDispatchable{CampaignID: id, Status: status}
}

// ErrCampaignHasNoContent means neither the campaign nor its template has a body.
type ErrCampaignHasNoContent struct {
	CampaignID int
}

func (e *ErrCampaignHasNoContent) Error() string {
	return fmt.Sprintf("campaign %d has no content", e.CampaignID)
}

func NewCampaignHasNoContent(id int) error {
	return &ErrCampaignHasNoContent{CampaignID: id}
}

// ErrInvalidAudienceFilters wraps a decoding failure of campaigns.audience_filters.
type ErrInvalidAudienceFilters struct {
	CampaignID   int
	AudienceType string
	Err          error
}

func (e *ErrInvalidAudienceFilters) Error() string {
	return fmt.Sprintf("campaign %d: invalid %q audience filters: %v", e.CampaignID, e.AudienceType, e.Err)
}

func (e *ErrInvalidAudienceFilters) Unwrap() error { return e.Err }

func NewInvalidAudienceFilters(campaignID int, audienceType string, err error) error {
	return &ErrInvalidAudienceFilters{CampaignID: campaignID, AudienceType: audienceType, Err: err}
}
