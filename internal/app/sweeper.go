package app

import (
	"context"
	"time"

	"ngoportal/internal/domain"

	"github.com/sirupsen/logrus"
)

// SweepSessions periodically deletes sessions idle for longer than
// idleTimeout until ctx is cancelled. Session expiry is checked lazily
// on access; the sweep clears the rows nobody comes back for, including
// abandoned anonymous pre-auth sessions.
func SweepSessions(ctx context.Context, sessions domain.SessionRepository, idleTimeout, every time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-idleTimeout)
			if err := sessions.DeleteExpired(ctx, cutoff); err != nil {
				log.WithError(err).Warn("session sweep failed")
			}
		}
	}
}
