package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/models"
)

// ActionResult reports the outcome of one rewarded action.
type ActionResult struct {
	PointsAdded    int64
	NewTotalPoints int64
	LevelChanged   bool
	// NewLevel is set only when LevelChanged is true.
	NewLevel *models.MembershipLevel
}

// GamificationService applies rule-table rewards to user ledgers.
type GamificationService struct {
	ledger LedgerStore
	guard  IdempotencyGuard
	logger *logrus.Entry
}

// NewGamificationService wires the orchestrator. guard may be nil, in which case request
// ids are accepted but not deduplicated.
func NewGamificationService(ledger LedgerStore, guard IdempotencyGuard, logger *logrus.Entry) *GamificationService {
	if logger == nil {
		logger = logging.Logger()
	}
	return &GamificationService{ledger: ledger, guard: guard, logger: logger}
}

// Apply validates the action, optionally claims the request id, and performs the ledger
// update as one atomic store write.
func (s *GamificationService) Apply(ctx context.Context, userID, action, requestID string) (ActionResult, error) {
	if s == nil || s.ledger == nil {
		return ActionResult{}, errors.New("gamification service is not initialized")
	}

	userID = strings.TrimSpace(userID)
	action = strings.TrimSpace(action)
	requestID = strings.TrimSpace(requestID)

	if userID == "" || action == "" {
		return ActionResult{}, fmt.Errorf("%w: userId and actionType are required", ErrValidation)
	}

	actionType, err := ParseActionType(action)
	if err != nil {
		return ActionResult{}, err
	}
	rule, err := RuleFor(actionType)
	if err != nil {
		return ActionResult{}, err
	}

	log := s.logger.WithFields(logging.Fields{
		"user_id": userID,
		"action":  string(actionType),
	})
	if requestID != "" {
		log = log.WithField("request_id", requestID)
	}

	claimKey := ""
	if requestID != "" && s.guard != nil {
		claimKey = GamificationKey(userID, requestID)
		claimed, err := s.guard.Claim(ctx, claimKey)
		if err != nil {
			log.WithError(err).Error("idempotency claim failed")
			return ActionResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		if !claimed {
			log.Warn("duplicate gamification request rejected")
			return ActionResult{}, fmt.Errorf("%w: %s", ErrDuplicateRequest, requestID)
		}
	}

	update, err := s.ledger.ApplyDelta(ctx, userID, rule.Delta())
	if err != nil {
		s.release(ctx, log, claimKey)
		if errors.Is(err, ErrUserNotFound) {
			log.Warn("gamification target user not found")
			return ActionResult{}, err
		}
		log.WithError(err).Error("ledger update failed")
		return ActionResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	result := resultFromUpdate(rule, update)

	log.WithFields(logging.Fields{
		"points_added":  result.PointsAdded,
		"new_total":     result.NewTotalPoints,
		"level_changed": result.LevelChanged,
	}).Info("gamification applied")

	return result, nil
}

// Ledger returns the stored ledger for a user.
func (s *GamificationService) Ledger(ctx context.Context, userID string) (models.UserLedger, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.UserLedger{}, fmt.Errorf("%w: userId is required", ErrValidation)
	}

	ledger, err := s.ledger.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.UserLedger{}, err
		}
		return models.UserLedger{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return ledger, nil
}

func (s *GamificationService) release(ctx context.Context, log *logrus.Entry, key string) {
	if key == "" {
		return
	}
	if err := s.guard.Release(context.WithoutCancel(ctx), key); err != nil {
		log.WithError(err).Warn("idempotency release failed")
	}
}

// resultFromUpdate compares the tier held before the write with the tier for the new
// total. The pre-image comes from the same atomic operation.
func resultFromUpdate(rule Rule, update LedgerUpdate) ActionResult {
	newTotal := update.Before.Points + rule.Points
	previous := update.Before.CurrentLevel()
	next := models.LevelForPoints(newTotal)

	result := ActionResult{
		PointsAdded:    rule.Points,
		NewTotalPoints: newTotal,
		LevelChanged:   next != previous,
	}
	if result.LevelChanged {
		result.NewLevel = &next
	}
	return result
}
