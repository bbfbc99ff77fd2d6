package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Store. It backs unit tests and local development;
// semantics match the PostgreSQL implementation.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]json.RawMessage // collection -> key -> doc
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]json.RawMessage)}
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, collection, key string, doc any, merge bool) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.docs[collection]
	if col == nil {
		col = make(map[string]json.RawMessage)
		m.docs[collection] = col
	}

	if merge {
		if existing, ok := col[key]; ok {
			merged, err := mergeDocs(existing, raw)
			if err != nil {
				return err
			}
			col[key] = merged
			return nil
		}
	}

	col[key] = raw
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, nil
}

// Query implements Store.
func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type entry struct {
		raw    json.RawMessage
		fields map[string]any
	}

	var matched []entry
	for _, raw := range m.docs[collection] {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}

		ok := true
		for _, f := range q.Filters {
			if !matchFilter(fields[f.Field], f) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, entry{raw: raw, fields: fields})
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			less := compareValues(matched[i].fields[q.OrderBy], matched[j].fields[q.OrderBy]) < 0
			if q.Descending {
				return !less
			}
			return less
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]json.RawMessage, len(matched))
	for i, e := range matched {
		out[i] = e.raw
	}
	return out, nil
}

// mergeDocs shallow-merges the top-level fields of update into base.
func mergeDocs(base, update json.RawMessage) (json.RawMessage, error) {
	var baseFields, updateFields map[string]any
	if err := json.Unmarshal(base, &baseFields); err != nil {
		return nil, fmt.Errorf("failed to decode existing document: %w", err)
	}
	if err := json.Unmarshal(update, &updateFields); err != nil {
		return nil, fmt.Errorf("failed to decode update document: %w", err)
	}
	for k, v := range updateFields {
		baseFields[k] = v
	}
	merged, err := json.Marshal(baseFields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged document: %w", err)
	}
	return merged, nil
}

func matchFilter(field any, f Filter) bool {
	cmp := compareValues(field, f.Value)
	switch f.Op {
	case OpEqual:
		return cmp == 0
	case OpGte:
		return cmp >= 0
	case OpLte:
		return cmp <= 0
	default:
		return false
	}
}

// compareValues orders two JSON scalar values. Numbers compare numerically,
// everything else compares as strings.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
