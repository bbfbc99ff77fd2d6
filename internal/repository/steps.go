// Package repository provides typed persistence over the document store.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stride-sync/internal/model"
	"stride-sync/internal/store"
)

// ErrRecordNotFound is returned when no document exists under a key.
var ErrRecordNotFound = errors.New("record not found")

// StepRepository persists DailyStepRecord documents. Keys are
// {userId}_{date}, one document per user per calendar day.
type StepRepository struct {
	store store.Store
}

// NewStepRepository creates a StepRepository on the given store.
func NewStepRepository(s store.Store) *StepRepository {
	return &StepRepository{store: s}
}

func stepKey(userID string, date model.Date) string {
	return userID + "_" + string(date)
}

// Upsert writes the record under its identity key. Last write wins.
func (r *StepRepository) Upsert(ctx context.Context, rec model.DailyStepRecord) error {
	if err := r.store.Put(ctx, store.CollectionUserSteps, stepKey(rec.UserID, rec.Date), rec, false); err != nil {
		return fmt.Errorf("failed to upsert step record %s: %w", stepKey(rec.UserID, rec.Date), err)
	}
	return nil
}

// Get returns the record for (userID, date), or ErrRecordNotFound.
func (r *StepRepository) Get(ctx context.Context, userID string, date model.Date) (*model.DailyStepRecord, error) {
	var rec model.DailyStepRecord
	err := store.GetAs(ctx, r.store, store.CollectionUserSteps, stepKey(userID, date), &rec)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get step record: %w", err)
	}
	return &rec, nil
}

// GetRange returns the user's records with from <= date <= to, newest
// first. Days without a record are simply absent.
func (r *StepRepository) GetRange(ctx context.Context, userID string, from, to model.Date) ([]model.DailyStepRecord, error) {
	docs, err := r.store.Query(ctx, store.CollectionUserSteps, store.Query{
		Filters: []store.Filter{
			{Field: "userId", Op: store.OpEqual, Value: userID},
			{Field: "date", Op: store.OpGte, Value: string(from)},
			{Field: "date", Op: store.OpLte, Value: string(to)},
		},
		OrderBy:    "date",
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query step records: %w", err)
	}
	return decodeRecords(docs)
}

// TotalSteps sums the user's entire lifetime series.
func (r *StepRepository) TotalSteps(ctx context.Context, userID string) (int64, error) {
	docs, err := r.store.Query(ctx, store.CollectionUserSteps, store.Query{
		Filters: []store.Filter{
			{Field: "userId", Op: store.OpEqual, Value: userID},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query step records: %w", err)
	}

	var total int64
	recs, err := decodeRecords(docs)
	if err != nil {
		return 0, err
	}
	for _, rec := range recs {
		total += int64(rec.Steps)
	}
	return total, nil
}

func decodeRecords(docs []json.RawMessage) ([]model.DailyStepRecord, error) {
	recs := make([]model.DailyStepRecord, 0, len(docs))
	for _, doc := range docs {
		var rec model.DailyStepRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode step record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
