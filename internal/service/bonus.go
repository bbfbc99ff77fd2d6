package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"stride-sync/internal/auth"
	"stride-sync/internal/model"
	"stride-sync/internal/repository"
)

// Common errors for daily bonus operations. Both are expected business
// outcomes, not crashes.
var (
	ErrBonusAlreadyClaimed = errors.New("daily bonus already claimed today")
	ErrNoBonusesRemaining  = errors.New("no bonuses remaining this month")
)

// ClaimState names the bonus state machine states explicitly instead of
// deriving them from nullable-field combinations.
type ClaimState int

// Claim states.
const (
	StateNeverClaimed ClaimState = iota
	StateClaimable
	StateClaimedToday
	StateExhausted
)

func (s ClaimState) String() string {
	switch s {
	case StateNeverClaimed:
		return "never-claimed"
	case StateClaimable:
		return "claimable"
	case StateClaimedToday:
		return "claimed-today"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// ClaimResult is a successful claim: the drawn reward and the updated
// bonus state.
type ClaimResult struct {
	Reward model.BonusReward
	Bonus  model.DailyBonus
}

// rewardTiers maps claim-streak length to the reward pool drawn from.
var rewardTiers = map[model.Rarity][]model.BonusReward{
	model.RarityCommon: {
		{Type: "bonus_steps_small", Rarity: model.RarityCommon, Title: "Small step boost"},
		{Type: "encouragement", Rarity: model.RarityCommon, Title: "Words of encouragement"},
		{Type: "bonus_exp_small", Rarity: model.RarityCommon, Title: "Small experience boost"},
	},
	model.RarityRare: {
		{Type: "bonus_steps_medium", Rarity: model.RarityRare, Title: "Medium step boost"},
		{Type: "bonus_exp_medium", Rarity: model.RarityRare, Title: "Medium experience boost"},
	},
	model.RarityEpic: {
		{Type: "bonus_steps_large", Rarity: model.RarityEpic, Title: "Large step boost"},
		{Type: "streak_shield_shard", Rarity: model.RarityEpic, Title: "Streak shield shard"},
	},
	model.RarityLegendary: {
		{Type: "golden_stride", Rarity: model.RarityLegendary, Title: "Golden stride"},
	},
}

// DailyBonusEngine gates a once-per-day claim and tracks the claim streak.
// Independent of the step pipeline.
type DailyBonusEngine struct {
	bonusRepo *repository.BonusRepository
	authp     auth.Provider
	allotment int
	loc       *time.Location
	now       func() time.Time
	intn      func(n int) int
}

// NewDailyBonusEngine creates a DailyBonusEngine. allotment is the monthly
// claim budget.
func NewDailyBonusEngine(bonusRepo *repository.BonusRepository, authp auth.Provider, allotment int, loc *time.Location) *DailyBonusEngine {
	if loc == nil {
		loc = time.Local
	}
	return &DailyBonusEngine{
		bonusRepo: bonusRepo,
		authp:     authp,
		allotment: allotment,
		loc:       loc,
		now:       time.Now,
		intn:      rand.Intn,
	}
}

// ClaimStateOf classifies the bonus state for the given day.
func ClaimStateOf(bonus *model.DailyBonus, today model.Date) ClaimState {
	switch {
	case bonus == nil:
		return StateNeverClaimed
	case bonus.LastBonusDate == today:
		return StateClaimedToday
	case bonus.AvailableBonuses <= 0 && bonus.MonthlyResetDate == today.MonthKey():
		return StateExhausted
	default:
		return StateClaimable
	}
}

// Claim performs the once-per-day claim as a single atomic document write.
// Consecutive days increment across adjacent calendar dates and reset to 1
// on a gap or a month rollover.
func (e *DailyBonusEngine) Claim(ctx context.Context, userID string) (*ClaimResult, error) {
	if err := auth.RequireUser(ctx, e.authp, userID); err != nil {
		return nil, err
	}

	today := model.DateOf(e.now().In(e.loc))

	bonus, err := e.bonusRepo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrRecordNotFound) {
			return nil, err
		}
		bonus = &model.DailyBonus{
			UserID:           userID,
			AvailableBonuses: e.allotment,
			MonthlyResetDate: today.MonthKey(),
		}
	}

	// Month rollover replenishes the allotment and breaks the streak.
	rolledOver := bonus.MonthlyResetDate != today.MonthKey()
	if rolledOver {
		bonus.AvailableBonuses = e.allotment
		bonus.MonthlyResetDate = today.MonthKey()
	}

	switch ClaimStateOf(bonus, today) {
	case StateClaimedToday:
		return nil, ErrBonusAlreadyClaimed
	case StateExhausted:
		return nil, ErrNoBonusesRemaining
	}
	if bonus.AvailableBonuses <= 0 {
		return nil, ErrNoBonusesRemaining
	}

	switch {
	case rolledOver:
		bonus.ConsecutiveDays = 1
	case bonus.LastBonusDate == today.AddDays(-1):
		bonus.ConsecutiveDays++
	default:
		bonus.ConsecutiveDays = 1
	}

	reward := e.drawReward(bonus.ConsecutiveDays)

	bonus.LastBonusDate = today
	bonus.AvailableBonuses--
	bonus.TotalBonuses++

	if err := e.bonusRepo.Save(ctx, *bonus); err != nil {
		return nil, fmt.Errorf("failed to persist bonus claim: %w", err)
	}

	return &ClaimResult{Reward: reward, Bonus: *bonus}, nil
}

// State returns the user's current claim state.
func (e *DailyBonusEngine) State(ctx context.Context, userID string) (ClaimState, error) {
	bonus, err := e.bonusRepo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return StateNeverClaimed, nil
		}
		return StateNeverClaimed, err
	}
	return ClaimStateOf(bonus, model.DateOf(e.now().In(e.loc))), nil
}

// drawReward picks a random reward from the rarity tier keyed on the new
// streak length: <3 common, <7 rare, >=7 epic or legendary.
func (e *DailyBonusEngine) drawReward(streak int) model.BonusReward {
	var pool []model.BonusReward
	switch {
	case streak < 3:
		pool = rewardTiers[model.RarityCommon]
	case streak < 7:
		pool = rewardTiers[model.RarityRare]
	default:
		pool = append(pool, rewardTiers[model.RarityEpic]...)
		pool = append(pool, rewardTiers[model.RarityLegendary]...)
	}
	return pool[e.intn(len(pool))]
}
