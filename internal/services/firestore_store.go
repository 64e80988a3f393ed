package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/comunidad/backend/internal/models"
)

var errFirestoreUninitialized = errors.New("firestore store is not initialized")

// FirestoreStore serves both the ledger and the admin directory from one Firestore
// collection of user documents.
type FirestoreStore struct {
	client *firestore.Client
	users  string
}

func NewFirestoreStore(client *firestore.Client, usersCollection string) *FirestoreStore {
	if strings.TrimSpace(usersCollection) == "" {
		usersCollection = "users"
	}
	return &FirestoreStore{client: client, users: usersCollection}
}

// ApplyDelta reads the document and writes increments, the badge union and the new tier
// inside one transaction. Firestore retries the transaction on contention, so the tier
// always matches the committed point total.
func (s *FirestoreStore) ApplyDelta(ctx context.Context, userID string, delta LedgerDelta) (LedgerUpdate, error) {
	if s == nil || s.client == nil {
		return LedgerUpdate{}, errFirestoreUninitialized
	}

	ref := s.client.Collection(s.users).Doc(userID)

	var result LedgerUpdate
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
			}
			return err
		}

		var before models.UserLedger
		if err := snap.DataTo(&before); err != nil {
			return fmt.Errorf("decode ledger: %w", err)
		}
		before.UserID = userID
		after := ApplyDeltaTo(before, delta)

		if err := tx.Update(ref, ledgerUpdates(delta, after.MembershipLevel)); err != nil {
			return err
		}

		result = LedgerUpdate{Before: before, After: after}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LedgerUpdate{}, err
		}
		return LedgerUpdate{}, fmt.Errorf("apply ledger delta: %w", err)
	}

	return result, nil
}

// ledgerUpdates lists the field writes for one delta. Points and the counter use server
// increments and the badge a set union, so the write never clobbers concurrent fields.
func ledgerUpdates(delta LedgerDelta, level models.MembershipLevel) []firestore.Update {
	updates := []firestore.Update{
		{Path: "points", Value: firestore.Increment(delta.Points)},
		{Path: "membershipLevel", Value: string(level)},
	}
	if delta.Badge != "" {
		updates = append(updates, firestore.Update{Path: "badges", Value: firestore.ArrayUnion(delta.Badge)})
	}
	if delta.Counter != CounterNone {
		updates = append(updates, firestore.Update{Path: string(delta.Counter), Value: firestore.Increment(1)})
	}
	return updates
}

func (s *FirestoreStore) Get(ctx context.Context, userID string) (models.UserLedger, error) {
	if s == nil || s.client == nil {
		return models.UserLedger{}, errFirestoreUninitialized
	}

	snap, err := s.client.Collection(s.users).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return models.UserLedger{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return models.UserLedger{}, fmt.Errorf("load ledger: %w", err)
	}

	var ledger models.UserLedger
	if err := snap.DataTo(&ledger); err != nil {
		return models.UserLedger{}, fmt.Errorf("decode ledger: %w", err)
	}
	ledger.UserID = userID
	return ledger, nil
}

func (s *FirestoreStore) RegionalAdmins(ctx context.Context, province string) ([]models.AdminUser, error) {
	if s == nil || s.client == nil {
		return nil, errFirestoreUninitialized
	}
	q := s.client.Collection(s.users).
		Where("role", "==", models.RoleRegionalAdmin).
		Where("managedProvince", "==", province)
	return s.queryAdmins(ctx, q)
}

func (s *FirestoreStore) GlobalAdmins(ctx context.Context) ([]models.AdminUser, error) {
	if s == nil || s.client == nil {
		return nil, errFirestoreUninitialized
	}
	return s.queryAdmins(ctx, s.client.Collection(s.users).Where("role", "==", models.RoleAdmin))
}

func (s *FirestoreStore) queryAdmins(ctx context.Context, q firestore.Query) ([]models.AdminUser, error) {
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}

	admins := make([]models.AdminUser, 0, len(docs))
	for _, doc := range docs {
		var admin models.AdminUser
		if err := doc.DataTo(&admin); err != nil {
			return nil, fmt.Errorf("decode admin %s: %w", doc.Ref.ID, err)
		}
		admins = append(admins, admin)
	}
	return admins, nil
}

// Ping issues a cheap read so health checks can tell whether Firestore is reachable.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errFirestoreUninitialized
	}
	_, err := s.client.Collection(s.users).Limit(1).Documents(ctx).GetAll()
	return err
}
