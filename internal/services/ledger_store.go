package services

import (
	"context"

	"github.com/comunidad/backend/internal/models"
)

// LedgerDelta is the change one action applies to a user's ledger.
type LedgerDelta struct {
	Points  int64
	Badge   string
	Counter CounterField
}

// LedgerUpdate carries the ledger as read by the atomic write and the state it produced.
type LedgerUpdate struct {
	Before models.UserLedger
	After  models.UserLedger
}

// LedgerStore persists user ledgers. ApplyDelta must increment points and the counter,
// union the badge and write the tier for the new total in a single atomic operation.
// It returns ErrUserNotFound when the user document does not exist.
type LedgerStore interface {
	ApplyDelta(ctx context.Context, userID string, delta LedgerDelta) (LedgerUpdate, error)
	Get(ctx context.Context, userID string) (models.UserLedger, error)
}

// ApplyDeltaTo computes the ledger that results from applying delta to before.
// Store implementations that read and write in one critical section use it so every
// backend agrees on the outcome.
func ApplyDeltaTo(before models.UserLedger, delta LedgerDelta) models.UserLedger {
	after := before
	after.Points = before.Points + delta.Points

	after.Badges = append([]string(nil), before.Badges...)
	if delta.Badge != "" && !before.HasBadge(delta.Badge) {
		after.Badges = append(after.Badges, delta.Badge)
	}

	switch delta.Counter {
	case CounterServices:
		after.ServicesCount++
	case CounterEvents:
		after.EventsCount++
	}

	after.MembershipLevel = models.LevelForPoints(after.Points)
	return after
}
