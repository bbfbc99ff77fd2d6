package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stride-sync/internal/model"
	"stride-sync/internal/store"
)

// BadgeRepository persists BadgeRecord documents. The document key embeds
// (userId, date, type), so duplicate award attempts collapse onto the same
// document.
type BadgeRepository struct {
	store store.Store
}

// NewBadgeRepository creates a BadgeRepository on the given store.
func NewBadgeRepository(s store.Store) *BadgeRepository {
	return &BadgeRepository{store: s}
}

// Exists reports whether the badge is already awarded.
func (r *BadgeRepository) Exists(ctx context.Context, userID string, date model.Date, badgeType string) (bool, error) {
	rec := model.BadgeRecord{UserID: userID, Date: date, Type: badgeType}
	_, err := r.store.Get(ctx, store.CollectionUserBadges, rec.Key())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check badge existence: %w", err)
	}
	return true, nil
}

// Put writes the badge under its identity key. Merge semantics make a
// repeated write with the same key a no-op rather than a duplicate.
func (r *BadgeRepository) Put(ctx context.Context, rec model.BadgeRecord) error {
	if err := r.store.Put(ctx, store.CollectionUserBadges, rec.Key(), rec, true); err != nil {
		return fmt.Errorf("failed to put badge %s: %w", rec.Key(), err)
	}
	return nil
}

// ListByDate returns the user's badges awarded for the given date.
func (r *BadgeRepository) ListByDate(ctx context.Context, userID string, date model.Date) ([]model.BadgeRecord, error) {
	docs, err := r.store.Query(ctx, store.CollectionUserBadges, store.Query{
		Filters: []store.Filter{
			{Field: "userId", Op: store.OpEqual, Value: userID},
			{Field: "date", Op: store.OpEqual, Value: string(date)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query badges: %w", err)
	}

	badges := make([]model.BadgeRecord, 0, len(docs))
	for _, doc := range docs {
		var rec model.BadgeRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode badge: %w", err)
		}
		badges = append(badges, rec)
	}
	return badges, nil
}
