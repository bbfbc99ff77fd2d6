package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production Store backed by a single JSONB documents
// table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store on the given pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the documents table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			key TEXT NOT NULL,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, key)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`)
	if err != nil {
		return fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return nil
}

// Put implements Store.
func (p *Postgres) Put(ctx context.Context, collection, key string, doc any, merge bool) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	set := "doc = EXCLUDED.doc"
	if merge {
		// JSONB || merges top-level fields, matching Memory.Put.
		set = "doc = documents.doc || EXCLUDED.doc"
	}

	query := fmt.Sprintf(`
		INSERT INTO documents (collection, key, doc, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (collection, key) DO UPDATE SET %s, updated_at = NOW()
	`, set)

	if _, err := p.pool.Exec(ctx, query, collection, key, raw); err != nil {
		return fmt.Errorf("failed to put document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Get implements Store.
func (p *Postgres) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	const query = `SELECT doc FROM documents WHERE collection = $1 AND key = $2`

	var raw json.RawMessage
	err := p.pool.QueryRow(ctx, query, collection, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s/%s: %w", collection, key, err)
	}
	return raw, nil
}

// Query implements Store. Filters compare JSONB fields; numeric filter
// values compare numerically, everything else as text.
func (p *Postgres) Query(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	var sb strings.Builder
	sb.WriteString("SELECT doc FROM documents WHERE collection = $1")
	args := []any{collection}

	for _, f := range q.Filters {
		op, ok := sqlOp(f.Op)
		if !ok {
			return nil, fmt.Errorf("unsupported filter operator %q", f.Op)
		}
		args = append(args, fmt.Sprintf("%v", f.Value))
		if isNumeric(f.Value) {
			sb.WriteString(fmt.Sprintf(" AND (doc->>%s)::numeric %s $%d::numeric",
				quoteLiteral(f.Field), op, len(args)))
		} else {
			sb.WriteString(fmt.Sprintf(" AND doc->>%s %s $%d",
				quoteLiteral(f.Field), op, len(args)))
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		sb.WriteString(fmt.Sprintf(" ORDER BY doc->>%s %s", quoteLiteral(q.OrderBy), dir))
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, err := p.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var raw json.RawMessage
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

func sqlOp(op Op) (string, bool) {
	switch op {
	case OpEqual:
		return "=", true
	case OpGte:
		return ">=", true
	case OpLte:
		return "<=", true
	default:
		return "", false
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// quoteLiteral quotes a field name for use as a JSONB path element. Field
// names come from code, not user input, but quoting keeps the query builder
// honest.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
