package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride-sync/internal/auth"
	"stride-sync/internal/model"
	"stride-sync/internal/repository"
	"stride-sync/internal/store"
)

func newTestBonusEngine(t *testing.T, allotment int) *DailyBonusEngine {
	t.Helper()
	engine := NewDailyBonusEngine(
		repository.NewBonusRepository(store.NewMemory()),
		auth.StaticProvider{ID: "u1"},
		allotment,
		time.UTC,
	)
	engine.intn = func(n int) int { return 0 } // deterministic reward draw
	return engine
}

func setEngineDay(engine *DailyBonusEngine, day time.Time) {
	engine.now = func() time.Time { return day }
}

func TestClaimConsecutiveDays(t *testing.T) {
	engine := newTestBonusEngine(t, 30)
	ctx := context.Background()
	day := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)

	setEngineDay(engine, day)
	res, err := engine.Claim(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Bonus.ConsecutiveDays)

	// Next calendar day extends the claim streak.
	setEngineDay(engine, day.AddDate(0, 0, 1))
	res, err = engine.Claim(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Bonus.ConsecutiveDays)
	assert.Equal(t, 2, res.Bonus.TotalBonuses)
	assert.Equal(t, 28, res.Bonus.AvailableBonuses)
}

func TestClaimGapResetsStreak(t *testing.T) {
	engine := newTestBonusEngine(t, 30)
	ctx := context.Background()
	day := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)

	setEngineDay(engine, day)
	_, err := engine.Claim(ctx, "u1")
	require.NoError(t, err)

	// Two skipped days reset the streak to 1.
	setEngineDay(engine, day.AddDate(0, 0, 3))
	res, err := engine.Claim(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Bonus.ConsecutiveDays)
}

func TestClaimTwiceSameDayFails(t *testing.T) {
	engine := newTestBonusEngine(t, 30)
	ctx := context.Background()
	setEngineDay(engine, time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC))

	_, err := engine.Claim(ctx, "u1")
	require.NoError(t, err)

	_, err = engine.Claim(ctx, "u1")
	assert.ErrorIs(t, err, ErrBonusAlreadyClaimed)
}

func TestClaimExhaustedAllotment(t *testing.T) {
	engine := newTestBonusEngine(t, 2)
	ctx := context.Background()
	day := time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		setEngineDay(engine, day.AddDate(0, 0, i))
		_, err := engine.Claim(ctx, "u1")
		require.NoError(t, err)
	}

	setEngineDay(engine, day.AddDate(0, 0, 2))
	_, err := engine.Claim(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoBonusesRemaining)

	state, err := engine.State(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateExhausted, state)
}

func TestClaimMonthRolloverReplenishesAndResets(t *testing.T) {
	engine := newTestBonusEngine(t, 5)
	ctx := context.Background()

	// Build a streak at the end of August.
	for i := 29; i <= 31; i++ {
		setEngineDay(engine, time.Date(2026, 8, i, 8, 0, 0, 0, time.UTC))
		_, err := engine.Claim(ctx, "u1")
		require.NoError(t, err)
	}

	// September 1st: consecutive with Aug 31st, but the month rollover
	// still resets the streak and replenishes the allotment.
	setEngineDay(engine, time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))
	res, err := engine.Claim(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Bonus.ConsecutiveDays)
	assert.Equal(t, 4, res.Bonus.AvailableBonuses)
	assert.Equal(t, "2026-09", res.Bonus.MonthlyResetDate)
	assert.Equal(t, 4, res.Bonus.TotalBonuses)
}

func TestRewardTiersByStreak(t *testing.T) {
	engine := newTestBonusEngine(t, 30)

	tests := []struct {
		streak int
		rarity model.Rarity
	}{
		{1, model.RarityCommon},
		{2, model.RarityCommon},
		{3, model.RarityRare},
		{6, model.RarityRare},
		{7, model.RarityEpic},
		{30, model.RarityEpic},
	}

	for _, tt := range tests {
		reward := engine.drawReward(tt.streak)
		assert.Equal(t, tt.rarity, reward.Rarity, "streak %d", tt.streak)
	}
}

func TestRewardTierIncludesLegendary(t *testing.T) {
	engine := newTestBonusEngine(t, 30)
	epicPool := len(rewardTiers[model.RarityEpic])
	engine.intn = func(n int) int { return epicPool } // first legendary slot

	reward := engine.drawReward(10)
	assert.Equal(t, model.RarityLegendary, reward.Rarity)
}

func TestClaimStateOf(t *testing.T) {
	today := model.Date("2026-08-28")

	assert.Equal(t, StateNeverClaimed, ClaimStateOf(nil, today))
	assert.Equal(t, StateClaimedToday, ClaimStateOf(&model.DailyBonus{LastBonusDate: today}, today))
	assert.Equal(t, StateExhausted, ClaimStateOf(&model.DailyBonus{
		LastBonusDate:    today.AddDays(-1),
		AvailableBonuses: 0,
		MonthlyResetDate: today.MonthKey(),
	}, today))
	assert.Equal(t, StateClaimable, ClaimStateOf(&model.DailyBonus{
		LastBonusDate:    today.AddDays(-1),
		AvailableBonuses: 3,
		MonthlyResetDate: today.MonthKey(),
	}, today))
	// Exhausted last month but the rollover will replenish: claimable.
	assert.Equal(t, StateClaimable, ClaimStateOf(&model.DailyBonus{
		LastBonusDate:    today.AddDays(-40),
		AvailableBonuses: 0,
		MonthlyResetDate: today.AddDays(-40).MonthKey(),
	}, today))
}

func TestClaimUnauthorized(t *testing.T) {
	engine := NewDailyBonusEngine(
		repository.NewBonusRepository(store.NewMemory()),
		auth.StaticProvider{ID: "someone-else"},
		30,
		time.UTC,
	)

	_, err := engine.Claim(context.Background(), "u1")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}
