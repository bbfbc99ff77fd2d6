package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stride-sync/internal/auth"
	"stride-sync/internal/config"
	"stride-sync/internal/model"
	"stride-sync/internal/repository"
)

// BadgeRules holds the thresholds the awarder evaluates.
type BadgeRules struct {
	StepThreshold    int
	BigStepThreshold int
	StreakDays       int
	StreakDayMinimum int
}

// RulesFromConfig builds BadgeRules from configuration.
func RulesFromConfig(cfg *config.BadgesConfig) BadgeRules {
	return BadgeRules{
		StepThreshold:    cfg.StepThreshold,
		BigStepThreshold: cfg.BigStepThreshold,
		StreakDays:       cfg.StreakDays,
		StreakDayMinimum: cfg.StreakDayMinimum,
	}
}

// BadgeAwarder evaluates a day's reconciled steps against badge rules and
// performs at-most-once awarding. Idempotence comes from the badge identity
// key (userId, date, type): an existing key is a silent no-op that never
// re-notifies listeners.
type BadgeAwarder struct {
	badgeRepo *repository.BadgeRepository
	stepRepo  *repository.StepRepository
	authp     auth.Provider
	rules     BadgeRules
	now       func() time.Time

	mu        sync.RWMutex
	listeners map[int]func(model.BadgeEvent)
	nextID    int
}

// NewBadgeAwarder creates a BadgeAwarder.
func NewBadgeAwarder(
	badgeRepo *repository.BadgeRepository,
	stepRepo *repository.StepRepository,
	authp auth.Provider,
	rules BadgeRules,
) *BadgeAwarder {
	return &BadgeAwarder{
		badgeRepo: badgeRepo,
		stepRepo:  stepRepo,
		authp:     authp,
		rules:     rules,
		now:       time.Now,
		listeners: make(map[int]func(model.BadgeEvent)),
	}
}

// OnBadgeAcquired registers a listener invoked synchronously for each
// genuinely new award. The returned function unsubscribes only this
// listener; other subscribers are unaffected.
func (a *BadgeAwarder) OnBadgeAcquired(fn func(model.BadgeEvent)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

// EvaluateAndAward checks the day's step count against every rule and
// awards the badges not yet present. Each rule fires independently; any
// subset may award. Returns only the genuinely new records.
func (a *BadgeAwarder) EvaluateAndAward(ctx context.Context, userID string, date model.Date, steps int) ([]model.BadgeRecord, error) {
	if err := auth.RequireUser(ctx, a.authp, userID); err != nil {
		return nil, err
	}

	var candidates []string
	if steps >= a.rules.StepThreshold {
		candidates = append(candidates, model.BadgeSteps7500)
	}
	if steps >= a.rules.BigStepThreshold {
		candidates = append(candidates, model.BadgeSteps10000)
	}
	if a.hasRecentRun(ctx, userID, date, steps) {
		candidates = append(candidates, model.BadgeThreeDayRun)
	}

	var awarded []model.BadgeRecord
	for _, badgeType := range candidates {
		rec, err := a.award(ctx, userID, date, badgeType)
		if err != nil {
			return awarded, err
		}
		if rec != nil {
			awarded = append(awarded, *rec)
		}
	}
	return awarded, nil
}

// hasRecentRun reports whether the most recent StreakDays calendar days
// (today included, using the freshly reconciled value) each meet the
// per-day minimum.
func (a *BadgeAwarder) hasRecentRun(ctx context.Context, userID string, date model.Date, todaySteps int) bool {
	if a.rules.StreakDays <= 0 || todaySteps < a.rules.StreakDayMinimum {
		return false
	}
	for i := 1; i < a.rules.StreakDays; i++ {
		rec, err := a.stepRepo.Get(ctx, userID, date.AddDays(-i))
		if err != nil {
			if !errors.Is(err, repository.ErrRecordNotFound) {
				log.Warn().Err(err).Str("user_id", userID).Msg("Streak badge lookup failed")
			}
			return false
		}
		if rec.Steps < a.rules.StreakDayMinimum {
			return false
		}
	}
	return true
}

// award writes one badge if absent and notifies listeners. Returns nil
// without side effects when the badge already exists.
func (a *BadgeAwarder) award(ctx context.Context, userID string, date model.Date, badgeType string) (*model.BadgeRecord, error) {
	exists, err := a.badgeRepo.Exists(ctx, userID, date, badgeType)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	rec := model.BadgeRecord{
		UserID:    userID,
		Date:      date,
		Type:      badgeType,
		AwardedAt: a.now(),
	}
	if err := a.badgeRepo.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to award badge %s: %w", badgeType, err)
	}

	log.Info().
		Str("user_id", userID).
		Str("date", string(date)).
		Str("badge", badgeType).
		Msg("Badge awarded")

	a.notify(model.BadgeEvent{BadgeRecord: rec, IsNew: true})
	return &rec, nil
}

func (a *BadgeAwarder) notify(ev model.BadgeEvent) {
	a.mu.RLock()
	fns := make([]func(model.BadgeEvent), 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
