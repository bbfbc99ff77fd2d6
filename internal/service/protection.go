package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"stride-sync/internal/auth"
	"stride-sync/internal/model"
	"stride-sync/internal/repository"
)

// ProtectionEngine manages the consumable streak protections: use is gated
// by a cooldown, and the stock refills by one per elapsed refill period,
// capped at the maximum.
type ProtectionEngine struct {
	protRepo     *repository.ProtectionRepository
	authp        auth.Provider
	maxActive    int
	cooldownDays int
	refillDays   int
	loc          *time.Location
	now          func() time.Time
}

// NewProtectionEngine creates a ProtectionEngine.
func NewProtectionEngine(
	protRepo *repository.ProtectionRepository,
	authp auth.Provider,
	maxActive, cooldownDays, refillDays int,
	loc *time.Location,
) *ProtectionEngine {
	if loc == nil {
		loc = time.Local
	}
	return &ProtectionEngine{
		protRepo:     protRepo,
		authp:        authp,
		maxActive:    maxActive,
		cooldownDays: cooldownDays,
		refillDays:   refillDays,
		loc:          loc,
		now:          time.Now,
	}
}

// UseProtection consumes one protection. A false return is the expected
// outcome when none remain or the cooldown has not elapsed, not an error.
func (e *ProtectionEngine) UseProtection(ctx context.Context, userID string) (bool, error) {
	if err := auth.RequireUser(ctx, e.authp, userID); err != nil {
		return false, err
	}

	today := model.DateOf(e.now().In(e.loc))
	prot, err := e.load(ctx, userID, today)
	if err != nil {
		return false, err
	}

	if prot.ActiveProtections <= 0 {
		return false, nil
	}
	if !prot.LastUsedDate.IsZero() && today.DaysSince(prot.LastUsedDate) < e.cooldownDays {
		return false, nil
	}

	prot.ActiveProtections--
	prot.UsedProtections++
	prot.LastUsedDate = today

	if err := e.protRepo.Save(ctx, *prot); err != nil {
		return false, err
	}

	log.Info().
		Str("user_id", userID).
		Int("remaining", prot.ActiveProtections).
		Msg("Streak protection used")
	return true, nil
}

// CheckAndRefill adds one protection when a full refill period has elapsed.
// Intended to run opportunistically (every app foreground); the period gate
// makes arbitrarily frequent calls safe.
func (e *ProtectionEngine) CheckAndRefill(ctx context.Context, userID string) error {
	if err := auth.RequireUser(ctx, e.authp, userID); err != nil {
		return err
	}

	today := model.DateOf(e.now().In(e.loc))
	prot, err := e.load(ctx, userID, today)
	if err != nil {
		return err
	}

	if prot.ActiveProtections >= e.maxActive {
		return nil
	}
	if !prot.LastRefillDate.IsZero() && today.DaysSince(prot.LastRefillDate) < e.refillDays {
		return nil
	}

	prot.ActiveProtections++
	if prot.ActiveProtections > e.maxActive {
		prot.ActiveProtections = e.maxActive
	}
	prot.LastRefillDate = today

	if err := e.protRepo.Save(ctx, *prot); err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID).
		Int("active", prot.ActiveProtections).
		Msg("Streak protection refilled")
	return nil
}

// Get returns the user's protection state, initializing new users with a
// full stock. The initialization write makes this a mutating path, so it
// passes the same identity gate as the other operations.
func (e *ProtectionEngine) Get(ctx context.Context, userID string) (*model.StreakProtection, error) {
	if err := auth.RequireUser(ctx, e.authp, userID); err != nil {
		return nil, err
	}
	today := model.DateOf(e.now().In(e.loc))
	return e.load(ctx, userID, today)
}

// load fetches the state, creating the initial full-stock document for new
// users so the first refill period starts counting from first sight.
func (e *ProtectionEngine) load(ctx context.Context, userID string, today model.Date) (*model.StreakProtection, error) {
	prot, err := e.protRepo.Get(ctx, userID)
	if err == nil {
		return prot, nil
	}
	if !errors.Is(err, repository.ErrRecordNotFound) {
		return nil, err
	}

	prot = &model.StreakProtection{
		UserID:            userID,
		ActiveProtections: e.maxActive,
		LastRefillDate:    today,
	}
	if err := e.protRepo.Save(ctx, *prot); err != nil {
		return nil, err
	}
	return prot, nil
}
