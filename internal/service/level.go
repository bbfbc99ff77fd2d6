package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"stride-sync/internal/model"
	"stride-sync/internal/pkg/cache"
	"stride-sync/internal/repository"
)

// cachedLevelKey is the display-cache key prefix for level state.
const cachedLevelKey = "cachedLevel/"

// ComputeLevel derives level state from lifetime total steps:
// level = floor(sqrt(total/1000)) + 1, with experience thresholds
// base(L) = (L-1)^2 * 1000. The mapping is monotonic and continuous at
// level boundaries. ProgressPercentage is clamped to [0,100].
func ComputeLevel(totalSteps int64) model.UserLevelState {
	if totalSteps < 0 {
		totalSteps = 0
	}

	level := int(math.Floor(math.Sqrt(float64(totalSteps)/1000.0))) + 1
	base := func(l int) int64 {
		return int64(l-1) * int64(l-1) * 1000
	}

	// Float rounding near exact squares can land one level off; nudge back
	// into the half-open range [base(level), base(level+1)).
	for totalSteps < base(level) && level > 1 {
		level--
	}
	for totalSteps >= base(level+1) {
		level++
	}

	currentExp := totalSteps - base(level)
	nextLevelExp := base(level+1) - base(level)

	progress := float64(currentExp) / float64(nextLevelExp) * 100
	if progress > 100 {
		progress = 100
	}
	if progress < 0 {
		progress = 0
	}

	return model.UserLevelState{
		Level:              level,
		CurrentExp:         currentExp,
		NextLevelExp:       nextLevelExp,
		TotalSteps:         totalSteps,
		ProgressPercentage: progress,
	}
}

// LevelEngine recomputes level state from the lifetime series and maintains
// the authoritative level document plus a Redis display cache. The cache is
// a display optimization only; the stored document and the fresh recompute
// are the truth.
type LevelEngine struct {
	stepRepo  *repository.StepRepository
	levelRepo *repository.LevelRepository
	cache     *cache.Cache
}

// NewLevelEngine creates a LevelEngine. cache may be nil.
func NewLevelEngine(stepRepo *repository.StepRepository, levelRepo *repository.LevelRepository, c *cache.Cache) *LevelEngine {
	return &LevelEngine{stepRepo: stepRepo, levelRepo: levelRepo, cache: c}
}

// Refresh recomputes level state from the full lifetime series, persists
// the authoritative document, and best-effort refreshes the display cache.
// Recomputation is idempotent and order-independent.
func (e *LevelEngine) Refresh(ctx context.Context, userID string) (model.UserLevelState, error) {
	total, err := e.stepRepo.TotalSteps(ctx, userID)
	if err != nil {
		return model.UserLevelState{}, fmt.Errorf("failed to total lifetime steps: %w", err)
	}

	state := ComputeLevel(total)
	if err := e.levelRepo.Save(ctx, userID, state); err != nil {
		return model.UserLevelState{}, err
	}

	e.cache.SetJSON(ctx, cachedLevelKey+userID, state)
	return state, nil
}

// LoadCached returns level state for instant display: the cache when warm,
// else the stored document, else a fresh recompute. Callers should still
// Refresh afterwards; the cached value may be stale.
func (e *LevelEngine) LoadCached(ctx context.Context, userID string) (model.UserLevelState, error) {
	var state model.UserLevelState
	if e.cache.GetJSON(ctx, cachedLevelKey+userID, &state) {
		return state, nil
	}

	stored, err := e.levelRepo.Get(ctx, userID)
	if err == nil {
		return *stored, nil
	}
	if !errors.Is(err, repository.ErrRecordNotFound) {
		log.Warn().Err(err).Str("user_id", userID).Msg("Level document read failed, recomputing")
	}

	return e.Refresh(ctx, userID)
}
