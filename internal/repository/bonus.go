package repository

import (
	"context"
	"errors"
	"fmt"

	"stride-sync/internal/model"
	"stride-sync/internal/store"
)

// BonusRepository persists the single DailyBonus document per user.
type BonusRepository struct {
	store store.Store
}

// NewBonusRepository creates a BonusRepository on the given store.
func NewBonusRepository(s store.Store) *BonusRepository {
	return &BonusRepository{store: s}
}

// Get returns the user's bonus state, or ErrRecordNotFound when the user
// has never claimed.
func (r *BonusRepository) Get(ctx context.Context, userID string) (*model.DailyBonus, error) {
	var bonus model.DailyBonus
	err := store.GetAs(ctx, r.store, store.CollectionDailyBonuses, userID, &bonus)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get daily bonus: %w", err)
	}
	return &bonus, nil
}

// Save replaces the user's bonus document in a single write. All claim
// mutation happens in memory first, so the write is atomic.
func (r *BonusRepository) Save(ctx context.Context, bonus model.DailyBonus) error {
	if err := r.store.Put(ctx, store.CollectionDailyBonuses, bonus.UserID, bonus, false); err != nil {
		return fmt.Errorf("failed to save daily bonus: %w", err)
	}
	return nil
}
