package repository

import (
	"context"
	"errors"
	"fmt"

	"stride-sync/internal/model"
	"stride-sync/internal/store"
)

// ProtectionRepository persists the single StreakProtection document per
// user.
type ProtectionRepository struct {
	store store.Store
}

// NewProtectionRepository creates a ProtectionRepository on the given store.
func NewProtectionRepository(s store.Store) *ProtectionRepository {
	return &ProtectionRepository{store: s}
}

// Get returns the user's protection state, or ErrRecordNotFound.
func (r *ProtectionRepository) Get(ctx context.Context, userID string) (*model.StreakProtection, error) {
	var prot model.StreakProtection
	err := store.GetAs(ctx, r.store, store.CollectionStreakProtections, userID, &prot)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get streak protection: %w", err)
	}
	return &prot, nil
}

// Save replaces the user's protection document.
func (r *ProtectionRepository) Save(ctx context.Context, prot model.StreakProtection) error {
	if err := r.store.Put(ctx, store.CollectionStreakProtections, prot.UserID, prot, false); err != nil {
		return fmt.Errorf("failed to save streak protection: %w", err)
	}
	return nil
}
