// internal/service/campaign_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/mailer"
	"github.com/unclebandit/mailleopard-backend/internal/metrics"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

const (
	// MailChannel tags every campaign message for the transport.
	MailChannel = "campaign"

	transportDeclined = "Mailer returned false."
	noValidRecipients = "no valid recipients"
)

type CampaignService struct {
	CampaignRepo  repository.CampaignRepositoryInterface
	TemplateRepo  repository.TemplateRepositoryInterface
	RecipientRepo repository.RecipientRepositoryInterface
	EventRepo     repository.EventRepositoryInterface
	ActivityRepo  repository.ActivityRepositoryInterface

	Resolver     *AudienceResolver
	Synchronizer *RecipientSynchronizer

	Mailer   mailer.Mailer
	Renderer mailer.Renderer

	// PublicBaseURL prefixes unsubscribe links, e.g. https://mail.example.com.
	PublicBaseURL string
	Now           func() time.Time
}

type CampaignDetails struct {
	*model.Campaign
	Metrics model.MetricsSummary `json:"metrics"`
}

type PreviewResult struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// UnsubscribeURL builds the public link for a recipient token.
func (s *CampaignService) UnsubscribeURL(token string) string {
	if token == "" {
		return ""
	}
	return strings.TrimRight(s.PublicBaseURL, "/") + "/unsubscribe/" + url.PathEscape(token)
}

// Dispatch sends campaignID to its resolved audience and returns the run's counts.
//
// With dryRun the audience is resolved (unknown addresses still become
// subscribers) but the ledger, the campaign and the transport are left alone.
// Per-recipient failures never abort the run; only lookup, audience and
// persistence errors are returned.
func (s *CampaignService) Dispatch(ctx context.Context, campaignID int, dryRun bool, actor model.Actor) (*model.DispatchSummary, error) {
	start := time.Now()
	log := logger.From(ctx).With(logger.CampaignID(campaignID), logger.Bool("dry_run", dryRun))
	ctx = logger.ToContext(ctx, log)

	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !dryRun && !campaign.Dispatchable() {
		return nil, appErrors.NewCampaignNotDispatchable(campaign.ID, campaign.Status)
	}

	body, err := s.messageBody(ctx, campaign)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, appErrors.NewCampaignHasNoContent(campaign.ID)
	}

	candidates, err := s.Resolver.Resolve(ctx, campaign)
	if err != nil {
		return nil, err
	}

	if dryRun {
		summary := &model.DispatchSummary{Total: len(candidates), DryRun: true}
		for _, c := range candidates {
			if c.Sendable {
				summary.Sent++
			} else {
				summary.Skipped++
			}
		}
		metrics.DispatchRuns.WithLabelValues("dry_run").Inc()
		log.Info("dry run finished", logger.Int("would_send", summary.Sent), logger.Int("skipped", summary.Skipped))
		return summary, nil
	}

	ledger, err := s.Synchronizer.Sync(ctx, campaign.ID, candidates)
	if err != nil {
		return nil, err
	}

	summary := &model.DispatchSummary{Total: len(ledger)}
	if len(ledger) == 0 {
		reason := noValidRecipients
		if err := s.finish(ctx, campaign.ID, model.CampaignStatusFailed, &reason, nil); err != nil {
			return summary, err
		}
		s.record(ctx, campaign, actor, model.CampaignStatusFailed, summary, start)
		log.Warn("dispatch aborted", logger.String("reason", reason))
		return summary, nil
	}

	claimed, err := s.CampaignRepo.MarkSending(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// another dispatch got there first
		return nil, appErrors.NewCampaignNotDispatchable(campaign.ID, model.CampaignStatusSending)
	}

	sentAt := s.now()
	for _, rec := range s.deliverable(ledger, summary) {
		if msg, ok := s.deliver(ctx, campaign, body, rec); ok {
			summary.Sent++
			metrics.DispatchRecipients.WithLabelValues("sent").Inc()
			bestEffort(ctx, "mark recipient sent", func() error {
				return s.RecipientRepo.MarkSent(ctx, rec.ID, sentAt)
			})
		} else {
			summary.Failed++
			metrics.DispatchRecipients.WithLabelValues("failed").Inc()
			log.Warn("delivery failed", logger.RecipientID(rec.ID), logger.String("error", msg))
			bestEffort(ctx, "mark recipient failed", func() error {
				return s.RecipientRepo.MarkFailed(ctx, rec.ID, truncate(msg, maxErrorLength))
			})
		}
	}

	status := model.CampaignStatusFailed
	var lastError *string
	var finishedAt *time.Time
	if summary.Sent > 0 {
		status = model.CampaignStatusSent
		finishedAt = &sentAt
	}
	if summary.Failed > 0 {
		msg := fmt.Sprintf("delivery failed for %d recipient(s)", summary.Failed)
		lastError = &msg
	}
	if err := s.finish(ctx, campaign.ID, status, lastError, finishedAt); err != nil {
		return summary, err
	}

	s.record(ctx, campaign, actor, status, summary, start)
	log.Info("dispatch finished",
		logger.Status(status),
		logger.Int("total", summary.Total),
		logger.Int("sent", summary.Sent),
		logger.Int("failed", summary.Failed),
		logger.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// deliverable counts skipped rows into summary and returns the rest.
func (s *CampaignService) deliverable(ledger []*model.CampaignRecipient, summary *model.DispatchSummary) []*model.CampaignRecipient {
	out := make([]*model.CampaignRecipient, 0, len(ledger))
	for _, rec := range ledger {
		if rec.Status == model.RecipientStatusSkipped {
			summary.Skipped++
			metrics.DispatchRecipients.WithLabelValues("skipped").Inc()
			continue
		}
		out = append(out, rec)
	}
	return out
}

// messageBody picks the campaign's own HTML, falling back to its template.
func (s *CampaignService) messageBody(ctx context.Context, c *model.Campaign) (string, error) {
	if strings.TrimSpace(c.ContentHTML) != "" || c.TemplateID == nil || s.TemplateRepo == nil {
		return c.ContentHTML, nil
	}
	tmpl, err := s.TemplateRepo.GetByID(ctx, *c.TemplateID)
	if err != nil {
		return "", fmt.Errorf("load template %d: %w", *c.TemplateID, err)
	}
	if tmpl == nil {
		return "", nil
	}
	return tmpl.ContentHTML, nil
}

// render personalizes subject and body for p and wraps fragments in the layout.
func (s *CampaignService) render(subject, body string, p Personalization) (string, string, error) {
	subject, html := Personalize(subject, body, p)
	if s.Renderer != nil && !mailer.IsFullDocument(html) {
		wrapped, err := s.Renderer.Wrap(subject, html)
		if err != nil {
			return "", "", fmt.Errorf("wrap layout: %w", err)
		}
		html = wrapped
	}
	return subject, html, nil
}

// deliver renders and sends one message. On failure it returns the error text.
func (s *CampaignService) deliver(ctx context.Context, c *model.Campaign, body string, rec *model.CampaignRecipient) (string, bool) {
	token := ""
	if rec.UnsubscribeToken != nil {
		token = *rec.UnsubscribeToken
	}
	subject, html, err := s.render(c.Subject, body, Personalization{
		Email:          rec.Email,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		UnsubscribeURL: s.UnsubscribeURL(token),
	})
	if err != nil {
		return err.Error(), false
	}

	ok, err := s.send(ctx, rec.Email, subject, html, mailer.SendOptions{
		Channel: MailChannel,
		Metadata: map[string]string{
			"campaign_id":  strconv.Itoa(c.ID),
			"recipient_id": strconv.Itoa(rec.ID),
		},
	})
	switch {
	case err != nil:
		return err.Error(), false
	case !ok:
		return transportDeclined, false
	}
	return "", true
}

// send calls the transport and turns a panic into an error.
func (s *CampaignService) send(ctx context.Context, to, subject, html string, opts mailer.SendOptions) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("mailer panic: %v", r)
		}
	}()
	return s.Mailer.Send(ctx, to, subject, html, opts)
}

// finish writes the terminal status together with freshly computed metrics.
func (s *CampaignService) finish(ctx context.Context, campaignID int, status string, lastError *string, sentAt *time.Time) error {
	summary, err := ComputeMetrics(ctx, s.RecipientRepo, s.EventRepo, campaignID, s.now())
	if err != nil {
		return err
	}
	b, err := encodeMetrics(summary)
	if err != nil {
		return err
	}
	if err := s.CampaignRepo.FinishDispatch(ctx, campaignID, status, lastError, sentAt, b); err != nil {
		return fmt.Errorf("finish dispatch of campaign %d: %w", campaignID, err)
	}
	return nil
}

// record emits run metrics and the activity log entry.
func (s *CampaignService) record(ctx context.Context, c *model.Campaign, actor model.Actor, status string, summary *model.DispatchSummary, start time.Time) {
	metrics.DispatchRuns.WithLabelValues(status).Inc()
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())

	if s.ActivityRepo == nil {
		return
	}
	bestEffort(ctx, "activity log", func() error {
		details, err := json.Marshal(map[string]any{
			"name":    c.Name,
			"status":  status,
			"summary": summary,
		})
		if err != nil {
			return err
		}
		entry := &model.ActivityEntry{
			ActorName: actor.Name,
			Action:    "campaign.dispatched",
			EntityID:  c.ID,
			Details:   details,
		}
		if actor.ID > 0 {
			id := actor.ID
			entry.ActorID = &id
		}
		return s.ActivityRepo.Log(ctx, entry)
	})
}

// Preview renders the campaign for a sample recipient without touching any state.
// overrideBody replaces the campaign body when non-blank.
func (s *CampaignService) Preview(ctx context.Context, campaignID int, sample model.ManualEntry, overrideBody *string) (*PreviewResult, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	body := ""
	if overrideBody != nil && strings.TrimSpace(*overrideBody) != "" {
		body = *overrideBody
	} else if body, err = s.messageBody(ctx, campaign); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, appErrors.NewCampaignHasNoContent(campaignID)
	}

	email := NormalizeEmail(sample.Email)
	if email == "" {
		email = "preview@example.com"
	}
	subject, html, err := s.render(campaign.Subject, body, Personalization{
		Email:          email,
		FirstName:      sample.FirstName,
		LastName:       sample.LastName,
		UnsubscribeURL: s.UnsubscribeURL("preview"),
	})
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Subject: subject, HTML: html}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, audienceType, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, audienceType, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

// GetCampaignDetailsWithStats returns the campaign with metrics computed live
// rather than read from the cached summary column.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	summary, err := ComputeMetrics(ctx, s.RecipientRepo, s.EventRepo, campaignID, s.now())
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Metrics: summary}, nil
}
