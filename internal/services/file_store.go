package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/comunidad/backend/internal/models"
	"github.com/comunidad/backend/internal/storage"
)

const fileStoreName = "users.json"

// FileUser is one user document in the development file backend.
type FileUser struct {
	Email           string            `json:"email,omitempty"`
	Name            string            `json:"name,omitempty"`
	Role            string            `json:"role,omitempty"`
	ManagedProvince string            `json:"managedProvince,omitempty"`
	Ledger          models.UserLedger `json:"ledger"`
}

type fileSnapshot struct {
	Users map[string]FileUser `json:"users"`
}

// FileStore serves the ledger and the admin directory from a JSON file. A single mutex
// serializes every read-modify-write, which is enough for one local process.
type FileStore struct {
	mu    sync.Mutex
	store *storage.JSONStore
}

func NewFileStore(dataDir string) (*FileStore, error) {
	js, err := storage.NewJSONStore(dataDir, fileStoreName)
	if err != nil {
		return nil, err
	}
	return &FileStore{store: js}, nil
}

// PutUser creates or replaces a user document. Used for seeding local data.
func (s *FileStore) PutUser(userID string, user FileUser) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}
	user.Ledger.UserID = userID
	snap.Users[userID] = user
	return s.store.Save(snap)
}

func (s *FileStore) ApplyDelta(ctx context.Context, userID string, delta LedgerDelta) (LedgerUpdate, error) {
	if err := ctx.Err(); err != nil {
		return LedgerUpdate{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return LedgerUpdate{}, err
	}

	user, ok := snap.Users[userID]
	if !ok {
		return LedgerUpdate{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	before := user.Ledger
	before.UserID = userID
	after := ApplyDeltaTo(before, delta)

	user.Ledger = after
	snap.Users[userID] = user
	if err := s.store.Save(snap); err != nil {
		return LedgerUpdate{}, fmt.Errorf("apply ledger delta: %w", err)
	}

	return LedgerUpdate{Before: before, After: after}, nil
}

func (s *FileStore) Get(ctx context.Context, userID string) (models.UserLedger, error) {
	if err := ctx.Err(); err != nil {
		return models.UserLedger{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return models.UserLedger{}, err
	}
	user, ok := snap.Users[userID]
	if !ok {
		return models.UserLedger{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	user.Ledger.UserID = userID
	return user.Ledger, nil
}

func (s *FileStore) RegionalAdmins(ctx context.Context, province string) ([]models.AdminUser, error) {
	return s.admins(ctx, func(u FileUser) bool {
		return u.Role == models.RoleRegionalAdmin && u.ManagedProvince == province
	})
}

func (s *FileStore) GlobalAdmins(ctx context.Context) ([]models.AdminUser, error) {
	return s.admins(ctx, func(u FileUser) bool {
		return u.Role == models.RoleAdmin
	})
}

// Ping reports whether the backing file is readable.
func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.load()
	return err
}

func (s *FileStore) admins(ctx context.Context, match func(FileUser) bool) ([]models.AdminUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(snap.Users))
	for id := range snap.Users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.AdminUser
	for _, id := range ids {
		u := snap.Users[id]
		if !match(u) {
			continue
		}
		out = append(out, models.AdminUser{
			Email:           u.Email,
			Name:            u.Name,
			Role:            u.Role,
			ManagedProvince: u.ManagedProvince,
		})
	}
	return out, nil
}

func (s *FileStore) load() (fileSnapshot, error) {
	var snap fileSnapshot
	if _, err := s.store.Load(&snap); err != nil {
		return fileSnapshot{}, err
	}
	if snap.Users == nil {
		snap.Users = make(map[string]FileUser)
	}
	return snap, nil
}
