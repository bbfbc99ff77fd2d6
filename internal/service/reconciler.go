// Package service provides business logic implementations.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stride-sync/internal/config"
	"stride-sync/internal/health"
	"stride-sync/internal/model"
)

// AnomalyPolicy configures detection of source misbehavior. The sentinel
// list and the identical-days threshold are empirical workarounds for an
// external sensor bug; both carry false-positive risk and can be disabled.
type AnomalyPolicy struct {
	Enabled            bool
	TolerancePct       int
	Sentinels          []int
	DuplicateThreshold int
}

// PolicyFromConfig builds an AnomalyPolicy from configuration.
func PolicyFromConfig(cfg *config.AnomalyConfig) AnomalyPolicy {
	return AnomalyPolicy{
		Enabled:            cfg.Enabled,
		TolerancePct:       cfg.TolerancePct,
		Sentinels:          cfg.Sentinels,
		DuplicateThreshold: cfg.DuplicateThreshold,
	}
}

// IsSentinel reports whether v matches a known-bad fixed value.
func (p AnomalyPolicy) IsSentinel(v int) bool {
	if !p.Enabled || v == 0 {
		return false
	}
	for _, s := range p.Sentinels {
		if v == s {
			return true
		}
	}
	return false
}

// Sync methods recorded on DailyStepRecord.SyncMethod.
const (
	MethodSamplesSum = "samples-sum"
	MethodTotalQuery = "total-query"
)

// DayCount is one reconciled day. Flagged days are persisted only when no
// trustworthy record already exists, and are logged for downstream repair.
type DayCount struct {
	Date       model.Date
	Steps      int
	Method     string
	Flagged    bool
	FlagReason string
}

// StepReconciler produces one trustworthy step count for a single calendar
// day by cross-validating the source's two query shapes.
type StepReconciler struct {
	source health.Source
	policy AnomalyPolicy
	loc    *time.Location
}

// NewStepReconciler creates a StepReconciler.
func NewStepReconciler(source health.Source, policy AnomalyPolicy, loc *time.Location) *StepReconciler {
	if loc == nil {
		loc = time.Local
	}
	return &StepReconciler{source: source, policy: policy, loc: loc}
}

// Reconcile computes the day's step count. Source errors coerce to zero;
// reconciliation never fails and never blocks a window sync.
func (r *StepReconciler) Reconcile(ctx context.Context, date model.Date) DayCount {
	start, end := date.DayBounds(r.loc)

	// The two query shapes are independent reads, so they run concurrently.
	var (
		wg       sync.WaitGroup
		total    int
		totalErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		total, totalErr = r.source.QueryTotal(ctx, start, end)
	}()

	samples, samplesErr := r.source.QuerySamples(ctx, start, end)
	wg.Wait()

	if samplesErr != nil {
		log.Warn().Err(samplesErr).Str("date", string(date)).Msg("Samples query failed, treating as zero")
		samples = nil
	}
	if totalErr != nil {
		log.Warn().Err(totalErr).Str("date", string(date)).Msg("Total query failed, treating as zero")
		total = 0
	}

	samplesSum := sumInWindow(samples, start, end)
	steps, method := chooseCount(samplesSum, total, r.policy.TolerancePct)

	count := DayCount{Date: date, Steps: steps, Method: method}
	if r.policy.IsSentinel(steps) {
		count.Flagged = true
		count.FlagReason = "sentinel value"
		log.Warn().
			Str("date", string(date)).
			Int("steps", steps).
			Msg("Reconciled value matches known-bad sentinel")
	}
	return count
}

// sumInWindow sums samples whose timestamp falls inside [start, end).
// Out-of-window samples are data bleeding across day boundaries and are
// discarded.
func sumInWindow(samples []health.Sample, start, end time.Time) int {
	sum := 0
	for _, s := range samples {
		if s.TimestampStart.Before(start) || !s.TimestampStart.Before(end) {
			continue
		}
		sum += s.Value
	}
	return sum
}

// chooseCount cross-validates the two query results. The total query is
// treated as more authoritative when the two disagree beyond the relative
// tolerance or when the samples query returned nothing; otherwise the
// samples sum wins. The tolerance is a percentage of the larger reading, so
// a 200-step gap on a 5000-step day agrees while the same gap on a 500-step
// day does not. The percentage is an empirically tuned heuristic.
func chooseCount(samplesSum, total, tolerancePct int) (int, string) {
	if samplesSum == 0 && total > 0 {
		return total, MethodTotalQuery
	}
	if total > 0 {
		diff := samplesSum - total
		if diff < 0 {
			diff = -diff
		}
		larger := samplesSum
		if total > larger {
			larger = total
		}
		if diff*100 > larger*tolerancePct {
			return total, MethodTotalQuery
		}
	}
	return samplesSum, MethodSamplesSum
}
