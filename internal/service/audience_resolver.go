package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	appErrors "github.com/unclebandit/mailleopard-backend/internal/errors"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// AudienceResolver turns a campaign's audience selection into a deduplicated
// candidate list, creating subscribers for addresses it has not seen before.
type AudienceResolver struct {
	Subscribers repository.SubscriberRepositoryInterface
	Customers   repository.CustomerRepositoryInterface
}

// source is one raw address before subscriber lookup.
type source struct {
	email        string
	firstName    string
	lastName     string
	subscriberID *int
	status       string
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare, syntactically valid address.
func ValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// Resolve returns candidates in source order. The first occurrence of an email wins.
func (r *AudienceResolver) Resolve(ctx context.Context, campaign *model.Campaign) ([]model.Candidate, error) {
	audience, err := model.DecodeAudience(campaign.AudienceType, campaign.AudienceFilters)
	if err != nil {
		return nil, appErrors.NewInvalidAudienceFilters(campaign.ID, campaign.AudienceType, err)
	}

	sources, err := r.sources(ctx, audience)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Candidate, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		if _, dup := seen[src.email]; dup {
			continue
		}
		seen[src.email] = struct{}{}

		sub, err := r.ensureSubscriber(ctx, src)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidateFor(src, sub))
	}

	logger.From(ctx).Debug("audience resolved",
		logger.CampaignID(campaign.ID),
		logger.String("audience_type", audience.Type()),
		logger.Count(len(candidates)),
	)
	return candidates, nil
}

func (r *AudienceResolver) sources(ctx context.Context, audience model.Audience) ([]source, error) {
	switch a := audience.(type) {
	case model.ManualAudience:
		out := make([]source, 0, len(a.Entries))
		for _, e := range a.Entries {
			email := NormalizeEmail(e.Email)
			if !ValidEmail(email) {
				continue
			}
			out = append(out, source{email: email, firstName: e.FirstName, lastName: e.LastName, status: e.Status})
		}
		return out, nil

	case model.ListAudience:
		members, err := r.Subscribers.ListActiveMembers(ctx, a.ListIDs)
		if err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		out := make([]source, 0, len(members))
		for _, m := range members {
			email := NormalizeEmail(m.Email)
			if email == "" {
				continue
			}
			id := m.SubscriberID
			out = append(out, source{email: email, firstName: m.FirstName, lastName: m.LastName, subscriberID: &id})
		}
		return out, nil

	case model.AllClientsAudience:
		customers, err := r.Customers.ListWithEmail(ctx)
		if err != nil {
			return nil, fmt.Errorf("list customers: %w", err)
		}
		out := make([]source, 0, len(customers))
		for _, c := range customers {
			email := NormalizeEmail(c.Email)
			if email == "" {
				continue
			}
			out = append(out, source{email: email, firstName: c.FirstName, lastName: c.LastName})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported audience %T", audience)
}

// ensureSubscriber finds the subscriber for src by id, then by email, and
// creates one when neither exists.
func (r *AudienceResolver) ensureSubscriber(ctx context.Context, src source) (*model.Subscriber, error) {
	if src.subscriberID != nil {
		sub, err := r.Subscribers.GetByID(ctx, *src.subscriberID)
		if err != nil {
			return nil, fmt.Errorf("get subscriber %d: %w", *src.subscriberID, err)
		}
		if sub != nil {
			return sub, nil
		}
	}

	sub, err := r.Subscribers.GetByEmail(ctx, src.email)
	if err != nil {
		return nil, fmt.Errorf("get subscriber by email: %w", err)
	}
	if sub != nil {
		return sub, nil
	}

	status := strings.ToLower(strings.TrimSpace(src.status))
	if !model.ValidSubscriberStatus(status) {
		status = model.SubscriberStatusActive
	}
	sub = &model.Subscriber{
		Email:     src.email,
		FirstName: src.firstName,
		LastName:  src.lastName,
		Status:    status,
		Source:    model.SubscriberSourceImported,
	}
	if err := r.Subscribers.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}
	logger.From(ctx).Debug("subscriber created", logger.SubscriberID(sub.ID), logger.Status(sub.Status))
	return sub, nil
}

func candidateFor(src source, sub *model.Subscriber) model.Candidate {
	first, last := src.firstName, src.lastName
	if first == "" {
		first = sub.FirstName
	}
	if last == "" {
		last = sub.LastName
	}
	id := sub.ID
	c := model.Candidate{
		Email:        src.email,
		FirstName:    first,
		LastName:     last,
		SubscriberID: &id,
		Sendable:     sub.Status == model.SubscriberStatusActive,
	}
	if !c.Sendable {
		c.SkipReason = fmt.Sprintf("subscriber status is %s", sub.Status)
	}
	return c
}
