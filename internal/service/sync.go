package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"stride-sync/internal/auth"
	"stride-sync/internal/model"
	"stride-sync/internal/repository"
)

// SeriesListener receives the user's refreshed window series after a sync
// writes today's record.
type SeriesListener func(userID string, series []model.DailyStepRecord)

// SyncEngine reconciles and persists a rolling window of days for one user.
// Repeated invocations converge to the same persisted state given unchanged
// source data; rapid re-invocations within the repair cooldown are refused
// to bound source load.
type SyncEngine struct {
	stepRepo   *repository.StepRepository
	reconciler *StepReconciler
	badges     *BadgeAwarder
	authp      auth.Provider
	policy     AnomalyPolicy
	limiter    *rate.Limiter
	windowDays int
	cooldown   time.Duration
	loc        *time.Location
	now        func() time.Time

	mu        sync.Mutex
	lastStart map[string]time.Time

	listenerMu sync.RWMutex
	listeners  map[int]SeriesListener
	nextID     int
}

// NewSyncEngine creates a SyncEngine. queryInterval paces successive source
// reconciliations; cooldown gates repeated full syncs per user.
func NewSyncEngine(
	stepRepo *repository.StepRepository,
	reconciler *StepReconciler,
	badges *BadgeAwarder,
	authp auth.Provider,
	policy AnomalyPolicy,
	windowDays int,
	queryInterval time.Duration,
	cooldown time.Duration,
	loc *time.Location,
) *SyncEngine {
	if windowDays <= 0 {
		windowDays = 7
	}
	if loc == nil {
		loc = time.Local
	}
	limit := rate.Inf
	if queryInterval > 0 {
		limit = rate.Every(queryInterval)
	}
	return &SyncEngine{
		stepRepo:   stepRepo,
		reconciler: reconciler,
		badges:     badges,
		authp:      authp,
		policy:     policy,
		limiter:    rate.NewLimiter(limit, 1),
		windowDays: windowDays,
		cooldown:   cooldown,
		loc:        loc,
		now:        time.Now,
		lastStart:  make(map[string]time.Time),
		listeners:  make(map[int]SeriesListener),
	}
}

// OnSeriesUpdated registers a listener for post-sync series updates and
// returns its unsubscribe function.
func (e *SyncEngine) OnSeriesUpdated(fn SeriesListener) func() {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	return func() {
		e.listenerMu.Lock()
		defer e.listenerMu.Unlock()
		delete(e.listeners, id)
	}
}

// SyncWindow reconciles and persists the rolling window ending today.
// Per-day write failures are isolated: the remaining days still sync, and
// the collected failures come back joined.
func (e *SyncEngine) SyncWindow(ctx context.Context, userID string) error {
	if err := auth.RequireUser(ctx, e.authp, userID); err != nil {
		return err
	}

	if !e.tryStart(userID) {
		log.Debug().Str("user_id", userID).Msg("Sync refused inside cooldown window")
		return nil
	}

	runID := uuid.NewString()
	today := model.DateOf(e.now().In(e.loc))
	log.Info().
		Str("run_id", runID).
		Str("user_id", userID).
		Int("window_days", e.windowDays).
		Msg("Starting window sync")

	// Oldest to newest, sequentially: bounds source load and lets the
	// duplicate heuristic compare against already-fetched days.
	counts := make([]DayCount, 0, e.windowDays)
	for i := e.windowDays - 1; i >= 0; i-- {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("sync interrupted: %w", err)
		}
		counts = append(counts, e.reconciler.Reconcile(ctx, today.AddDays(-i)))
	}

	flagDuplicateRuns(counts, e.policy)

	var (
		dayErrs      []error
		todayWritten bool
		todaySteps   int
	)
	for _, c := range counts {
		wrote, err := e.persistDay(ctx, userID, c)
		if err != nil {
			log.Error().Err(err).
				Str("run_id", runID).
				Str("user_id", userID).
				Str("date", string(c.Date)).
				Msg("Day persistence failed, continuing window")
			dayErrs = append(dayErrs, err)
			continue
		}
		if c.Date == today {
			todaySteps = c.Steps
			todayWritten = wrote
		}
	}

	if todayWritten {
		e.afterTodaySync(ctx, userID, today, todaySteps)
	}

	log.Info().
		Str("run_id", runID).
		Str("user_id", userID).
		Int("failed_days", len(dayErrs)).
		Msg("Window sync finished")
	return errors.Join(dayErrs...)
}

// Repair re-runs the full window sync. Repair is not a separate algorithm;
// the cooldown inside SyncWindow prevents repair loops.
func (e *SyncEngine) Repair(ctx context.Context, userID string) error {
	log.Info().Str("user_id", userID).Msg("Attempting anomaly repair via full re-sync")
	return e.SyncWindow(ctx, userID)
}

// tryStart records a sync start unless one began within the cooldown.
func (e *SyncEngine) tryStart(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.lastStart[userID]; ok && e.cooldown > 0 && e.now().Sub(last) < e.cooldown {
		return false
	}
	e.lastStart[userID] = e.now()
	return true
}

// persistDay writes one reconciled day, honoring the skip rules. Returns
// whether a write happened.
func (e *SyncEngine) persistDay(ctx context.Context, userID string, c DayCount) (bool, error) {
	existing, err := e.stepRepo.Get(ctx, userID, c.Date)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		return false, err
	}

	// Never replace trustworthy data with a flagged anomaly.
	if c.Flagged && existing != nil && existing.Steps > 0 {
		log.Warn().
			Str("user_id", userID).
			Str("date", string(c.Date)).
			Int("stored", existing.Steps).
			Int("flagged", c.Steps).
			Str("reason", c.FlagReason).
			Msg("Keeping stored value over flagged reconciliation")
		return false, nil
	}

	// Unchanged values need no churn.
	if existing != nil && existing.Steps == c.Steps {
		return false, nil
	}

	rec := model.DailyStepRecord{
		UserID:     userID,
		Date:       c.Date,
		Steps:      c.Steps,
		Source:     model.SourcePrimarySensor,
		SyncMethod: c.Method,
		UpdatedAt:  e.now(),
	}
	if err := e.stepRepo.Upsert(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}

// afterTodaySync runs the dependents of a fresh today value: badge
// evaluation and series listeners.
func (e *SyncEngine) afterTodaySync(ctx context.Context, userID string, today model.Date, steps int) {
	if e.badges != nil {
		if _, err := e.badges.EvaluateAndAward(ctx, userID, today, steps); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Badge evaluation failed after sync")
		}
	}

	series, err := e.stepRepo.GetRange(ctx, userID, today.AddDays(-(e.windowDays-1)), today)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load series for listeners")
		return
	}

	e.listenerMu.RLock()
	fns := make([]SeriesListener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(userID, series)
	}
}

// flagDuplicateRuns marks days sharing one non-zero value when the value
// repeats across at least DuplicateThreshold days, a near-certain simulator
// or stub artifact. Two coincidentally equal days are genuine data and stay
// untouched.
func flagDuplicateRuns(counts []DayCount, policy AnomalyPolicy) {
	if !policy.Enabled || policy.DuplicateThreshold <= 0 {
		return
	}

	freq := make(map[int]int)
	for _, c := range counts {
		if c.Steps > 0 {
			freq[c.Steps]++
		}
	}

	for i := range counts {
		if counts[i].Steps > 0 && freq[counts[i].Steps] >= policy.DuplicateThreshold && !counts[i].Flagged {
			counts[i].Flagged = true
			counts[i].FlagReason = fmt.Sprintf("value repeated across %d days", freq[counts[i].Steps])
			log.Warn().
				Str("date", string(counts[i].Date)).
				Int("steps", counts[i].Steps).
				Int("occurrences", freq[counts[i].Steps]).
				Msg("Duplicate-day heuristic flagged suspicious value")
		}
	}
}
