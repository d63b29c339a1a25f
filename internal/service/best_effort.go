package service

import (
	"context"

	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

// bestEffort runs a write whose failure must never abort the caller.
// The error is logged and dropped.
func bestEffort(ctx context.Context, op string, fn func() error) {
	if err := fn(); err != nil {
		logger.From(ctx).Warn("best-effort write failed", logger.Op(op), logger.Err(err))
	}
}
