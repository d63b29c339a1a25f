package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
	"github.com/unclebandit/mailleopard-backend/internal/model"
	"github.com/unclebandit/mailleopard-backend/internal/repository"
)

// RecipientSynchronizer upserts candidates into a campaign's recipient ledger.
type RecipientSynchronizer struct {
	Recipients repository.RecipientRepositoryInterface
	// NewToken defaults to GenerateUnsubscribeToken.
	NewToken func() (string, error)
}

// GenerateUnsubscribeToken returns 64 hex characters of crypto randomness.
func GenerateUnsubscribeToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Sync writes one row per candidate and returns the fresh rows ordered by id.
// Rows that fail to upsert are logged and left out of the result.
func (s *RecipientSynchronizer) Sync(ctx context.Context, campaignID int, candidates []model.Candidate) ([]*model.CampaignRecipient, error) {
	log := logger.From(ctx).With(logger.CampaignID(campaignID))
	newToken := s.NewToken
	if newToken == nil {
		newToken = GenerateUnsubscribeToken
	}

	ids := make([]int, 0, len(candidates))
	for _, c := range candidates {
		rec := &model.CampaignRecipient{
			CampaignID:   campaignID,
			SubscriberID: c.SubscriberID,
			Email:        c.Email,
			FirstName:    c.FirstName,
			LastName:     c.LastName,
		}
		if c.Sendable {
			token, err := newToken()
			if err != nil {
				log.Warn("skipping recipient without unsubscribe token", logger.Email(c.Email), logger.Err(err))
				continue
			}
			rec.Status = model.RecipientStatusPending
			rec.UnsubscribeToken = &token
		} else {
			reason := truncate(c.SkipReason, maxErrorLength)
			rec.Status = model.RecipientStatusSkipped
			rec.LastError = &reason
		}

		id, err := s.Recipients.Upsert(ctx, rec)
		if err != nil {
			log.Warn("recipient upsert failed", logger.Email(c.Email), logger.Err(err))
			continue
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return []*model.CampaignRecipient{}, nil
	}
	ledger, err := s.Recipients.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload recipients: %w", err)
	}
	return ledger, nil
}
