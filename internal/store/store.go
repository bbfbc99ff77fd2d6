// Package store defines the keyed document store contract the service
// persists through, together with a PostgreSQL (JSONB) implementation and
// an in-memory implementation for tests.
//
// Documents are addressed by (collection, key). Writes are keyed upserts;
// rewriting identical content is a harmless no-op, which is what makes the
// sync pipeline's writes idempotent.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("document not found")

// Op is a filter comparison operator.
type Op string

// Supported filter operators.
const (
	OpEqual Op = "=="
	OpGte   Op = ">="
	OpLte   Op = "<="
)

// Filter matches documents whose field compares against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query describes a filtered, optionally ordered and limited collection
// read.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is the document store contract. Implementations must treat the
// (collection, key) pair as the sole identity of a document.
type Store interface {
	// Put upserts the document under (collection, key). With merge set,
	// top-level fields of doc are merged into any existing document;
	// otherwise the document is replaced.
	Put(ctx context.Context, collection, key string, doc any, merge bool) error

	// Get returns the raw document under (collection, key), or ErrNotFound.
	Get(ctx context.Context, collection, key string) (json.RawMessage, error)

	// Query returns raw documents in the collection matching all filters.
	Query(ctx context.Context, collection string, q Query) ([]json.RawMessage, error)
}

// Collections used by the service.
const (
	CollectionUserSteps         = "userSteps"
	CollectionUserBadges        = "userBadges"
	CollectionDailyBonuses      = "dailyBonuses"
	CollectionStreakProtections = "streakProtections"
	CollectionUserLevel         = "userLevel"
)

// GetAs reads the document under (collection, key) and unmarshals it into
// out.
func GetAs(ctx context.Context, s Store, collection, key string, out any) error {
	raw, err := s.Get(ctx, collection, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
