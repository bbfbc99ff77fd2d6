package repository

import (
	"context"
	"errors"
	"fmt"

	"stride-sync/internal/model"
	"stride-sync/internal/store"
)

// LevelRepository persists the authoritative UserLevelState document per
// user. The Redis display cache lives elsewhere; this document is the
// source of truth.
type LevelRepository struct {
	store store.Store
}

// NewLevelRepository creates a LevelRepository on the given store.
func NewLevelRepository(s store.Store) *LevelRepository {
	return &LevelRepository{store: s}
}

// Get returns the stored level state, or ErrRecordNotFound.
func (r *LevelRepository) Get(ctx context.Context, userID string) (*model.UserLevelState, error) {
	var state model.UserLevelState
	err := store.GetAs(ctx, r.store, store.CollectionUserLevel, userID, &state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get level state: %w", err)
	}
	return &state, nil
}

// Save replaces the stored level state. Recomputation is idempotent, so
// repeated saves of the same series converge.
func (r *LevelRepository) Save(ctx context.Context, userID string, state model.UserLevelState) error {
	if err := r.store.Put(ctx, store.CollectionUserLevel, userID, state, false); err != nil {
		return fmt.Errorf("failed to save level state: %w", err)
	}
	return nil
}
