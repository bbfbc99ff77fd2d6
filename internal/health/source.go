// Package health defines the step data source contract. The platform
// health API behind it is opaque; the service only depends on the two query
// shapes below.
package health

import (
	"context"
	"time"
)

// Sample is one timestamped step reading.
type Sample struct {
	TimestampStart time.Time
	Value          int
}

// Source is the step data source contract. Callers scope both queries to
// local midnight-to-midnight boundaries; errors from either query are
// non-fatal to reconciliation and coerce to zero.
type Source interface {
	// QuerySamples returns individual step samples in [start, end).
	QuerySamples(ctx context.Context, start, end time.Time) ([]Sample, error)

	// QueryTotal returns the source's own aggregate for [start, end).
	QueryTotal(ctx context.Context, start, end time.Time) (int, error)
}
