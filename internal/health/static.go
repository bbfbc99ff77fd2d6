package health

import (
	"context"
	"sync"
	"time"
)

// Static is a scripted Source keyed by calendar day. It stands in for the
// real device API in tests and local development, including misbehaving
// shapes (errors, sentinel repeats, out-of-window bleed).
type Static struct {
	mu      sync.RWMutex
	samples map[string][]Sample // day key -> samples
	totals  map[string]int      // day key -> aggregate
	errs    map[string]error    // day key -> forced error for both queries
	loc     *time.Location
}

// NewStatic creates an empty scripted source in the given location.
func NewStatic(loc *time.Location) *Static {
	if loc == nil {
		loc = time.Local
	}
	return &Static{
		samples: make(map[string][]Sample),
		totals:  make(map[string]int),
		errs:    make(map[string]error),
		loc:     loc,
	}
}

// SetDay scripts both query shapes for the day containing t.
func (s *Static) SetDay(t time.Time, samples []Sample, total int) {
	key := s.dayKey(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[key] = samples
	s.totals[key] = total
}

// FailDay forces both queries for the day containing t to return err.
func (s *Static) FailDay(t time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[s.dayKey(t)] = err
}

// QuerySamples implements Source.
func (s *Static) QuerySamples(ctx context.Context, start, end time.Time) ([]Sample, error) {
	key := s.dayKey(start)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.errs[key]; err != nil {
		return nil, err
	}
	out := make([]Sample, len(s.samples[key]))
	copy(out, s.samples[key])
	return out, nil
}

// QueryTotal implements Source.
func (s *Static) QueryTotal(ctx context.Context, start, end time.Time) (int, error) {
	key := s.dayKey(start)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.errs[key]; err != nil {
		return 0, err
	}
	return s.totals[key], nil
}

func (s *Static) dayKey(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02")
}
