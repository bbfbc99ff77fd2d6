package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stride-sync/internal/auth"
	"stride-sync/internal/health"
	"stride-sync/internal/model"
	"stride-sync/internal/repository"
	"stride-sync/internal/store"
)

type syncFixture struct {
	engine    *SyncEngine
	source    *health.Static
	stepRepo  *repository.StepRepository
	badgeRepo *repository.BadgeRepository
	now       time.Time
	today     model.Date
}

func newSyncFixture(t *testing.T, windowDays int, cooldown time.Duration) *syncFixture {
	t.Helper()
	mem := store.NewMemory()
	stepRepo := repository.NewStepRepository(mem)
	badgeRepo := repository.NewBadgeRepository(mem)
	source := health.NewStatic(time.UTC)
	policy := testPolicy()

	badges := NewBadgeAwarder(
		badgeRepo,
		stepRepo,
		auth.StaticProvider{ID: "u1"},
		testRules(),
	)

	engine := NewSyncEngine(
		stepRepo,
		NewStepReconciler(source, policy, time.UTC),
		badges,
		auth.StaticProvider{ID: "u1"},
		policy,
		windowDays,
		0, // no pacing in tests
		cooldown,
		time.UTC,
	)

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	return &syncFixture{
		engine:    engine,
		source:    source,
		stepRepo:  stepRepo,
		badgeRepo: badgeRepo,
		now:       now,
		today:     model.DateOf(now),
	}
}

// scriptDay scripts a plain agreeing day (samples sum equals total) at the
// given offset back from today.
func (f *syncFixture) scriptDay(daysAgo, steps int) {
	start, _ := f.today.AddDays(-daysAgo).DayBounds(time.UTC)
	f.source.SetDay(start, []health.Sample{
		{TimestampStart: start.Add(9 * time.Hour), Value: steps},
	}, steps)
}

func TestSyncWindowPersistsAllDays(t *testing.T) {
	f := newSyncFixture(t, 3, 0)
	ctx := context.Background()

	for i, steps := range map[int]int{0: 8000, 1: 6000, 2: 9500} {
		f.scriptDay(i, steps)
	}

	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	for daysAgo, want := range map[int]int{0: 8000, 1: 6000, 2: 9500} {
		rec, err := f.stepRepo.Get(ctx, "u1", f.today.AddDays(-daysAgo))
		require.NoError(t, err)
		assert.Equal(t, want, rec.Steps)
		assert.Equal(t, model.SourcePrimarySensor, rec.Source)
		assert.Equal(t, MethodSamplesSum, rec.SyncMethod)
	}
}

// TestSyncWindowKeepsStoredOverFlagged checks the non-overwrite rule: a
// stored trustworthy value survives a later flagged reconciliation.
func TestSyncWindowKeepsStoredOverFlagged(t *testing.T) {
	f := newSyncFixture(t, 1, 0)
	ctx := context.Background()

	require.NoError(t, f.stepRepo.Upsert(ctx, model.DailyStepRecord{
		UserID: "u1", Date: f.today, Steps: 8000, Source: model.SourcePrimarySensor,
	}))

	// The source now reports the sentinel for today.
	f.scriptDay(0, 210)

	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	rec, err := f.stepRepo.Get(ctx, "u1", f.today)
	require.NoError(t, err)
	assert.Equal(t, 8000, rec.Steps)
}

func TestSyncWindowFlaggedWritesWhenNothingStored(t *testing.T) {
	f := newSyncFixture(t, 1, 0)
	ctx := context.Background()
	f.scriptDay(0, 210)

	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	// With no prior data the flagged value is still better than a gap.
	rec, err := f.stepRepo.Get(ctx, "u1", f.today)
	require.NoError(t, err)
	assert.Equal(t, 210, rec.Steps)
}

func TestSyncWindowSkipsUnchangedWrites(t *testing.T) {
	f := newSyncFixture(t, 1, 0)
	ctx := context.Background()

	stamp := time.Date(2026, 8, 27, 18, 0, 0, 0, time.UTC)
	require.NoError(t, f.stepRepo.Upsert(ctx, model.DailyStepRecord{
		UserID: "u1", Date: f.today, Steps: 8000,
		Source: model.SourcePrimarySensor, UpdatedAt: stamp,
	}))
	f.scriptDay(0, 8000)

	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	rec, err := f.stepRepo.Get(ctx, "u1", f.today)
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.Equal(stamp), "unchanged value rewrote the record")
}

func TestSyncWindowDuplicateRunKeepsStoredValues(t *testing.T) {
	f := newSyncFixture(t, 5, 0)
	ctx := context.Background()

	// Genuine data already synced for the window.
	for daysAgo, steps := range map[int]int{0: 8000, 1: 6000, 2: 9500, 3: 7100, 4: 5200} {
		require.NoError(t, f.stepRepo.Upsert(ctx, model.DailyStepRecord{
			UserID: "u1", Date: f.today.AddDays(-daysAgo), Steps: steps,
			Source: model.SourcePrimarySensor,
		}))
	}

	// The source regresses into repeating one value across the window.
	for i := 0; i < 5; i++ {
		f.scriptDay(i, 4242)
	}

	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	for daysAgo, want := range map[int]int{0: 8000, 1: 6000, 2: 9500, 3: 7100, 4: 5200} {
		rec, err := f.stepRepo.Get(ctx, "u1", f.today.AddDays(-daysAgo))
		require.NoError(t, err)
		assert.Equal(t, want, rec.Steps, "day -%d", daysAgo)
	}
}

func TestFlagDuplicateRuns(t *testing.T) {
	counts := []DayCount{
		{Date: "2026-08-22", Steps: 4242},
		{Date: "2026-08-23", Steps: 4242},
		{Date: "2026-08-24", Steps: 4242},
		{Date: "2026-08-25", Steps: 4242},
		{Date: "2026-08-26", Steps: 8000},
		{Date: "2026-08-27", Steps: 8000},
		{Date: "2026-08-28", Steps: 0},
	}

	flagDuplicateRuns(counts, testPolicy())

	for i := 0; i < 4; i++ {
		assert.True(t, counts[i].Flagged, "repeated value on day %d not flagged", i)
	}
	// Two equal days are genuine data, and zeros never count.
	assert.False(t, counts[4].Flagged)
	assert.False(t, counts[5].Flagged)
	assert.False(t, counts[6].Flagged)
}

func TestSyncWindowCooldownDebounce(t *testing.T) {
	f := newSyncFixture(t, 1, 5*time.Minute)
	ctx := context.Background()

	f.scriptDay(0, 8000)
	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	// The source moved on, but the second sync lands inside the cooldown.
	f.scriptDay(0, 9000)
	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	rec, err := f.stepRepo.Get(ctx, "u1", f.today)
	require.NoError(t, err)
	assert.Equal(t, 8000, rec.Steps)

	// Past the cooldown the sync runs for real again.
	later := f.now.Add(6 * time.Minute)
	f.engine.now = func() time.Time { return later }
	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	rec, err = f.stepRepo.Get(ctx, "u1", f.today)
	require.NoError(t, err)
	assert.Equal(t, 9000, rec.Steps)
}

func TestSyncWindowNotifiesSeriesListeners(t *testing.T) {
	f := newSyncFixture(t, 3, 0)
	ctx := context.Background()

	for i, steps := range map[int]int{0: 8000, 1: 6000, 2: 9500} {
		f.scriptDay(i, steps)
	}

	var gotUser string
	var gotSeries []model.DailyStepRecord
	calls := 0
	unsub := f.engine.OnSeriesUpdated(func(userID string, series []model.DailyStepRecord) {
		gotUser = userID
		gotSeries = series
		calls++
	})
	defer unsub()

	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	require.Equal(t, 1, calls)
	assert.Equal(t, "u1", gotUser)
	require.Len(t, gotSeries, 3)
	assert.Equal(t, f.today, gotSeries[0].Date)
	assert.Equal(t, 8000, gotSeries[0].Steps)

	// A run that writes nothing stays silent.
	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))
	assert.Equal(t, 1, calls)
}

func TestSyncWindowAwardsBadgesForToday(t *testing.T) {
	f := newSyncFixture(t, 1, 0)
	ctx := context.Background()
	f.scriptDay(0, 12000)

	require.NoError(t, f.engine.SyncWindow(ctx, "u1"))

	exists, err := f.badgeRepo.Exists(ctx, "u1", f.today, model.BadgeSteps10000)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = f.badgeRepo.Exists(ctx, "u1", f.today, model.BadgeSteps7500)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSyncWindowUnauthorized(t *testing.T) {
	mem := store.NewMemory()
	engine := NewSyncEngine(
		repository.NewStepRepository(mem),
		NewStepReconciler(health.NewStatic(time.UTC), testPolicy(), time.UTC),
		nil,
		auth.StaticProvider{ID: "someone-else"},
		testPolicy(),
		7, 0, 0,
		time.UTC,
	)

	err := engine.SyncWindow(context.Background(), "u1")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestRepairIsFullResync(t *testing.T) {
	f := newSyncFixture(t, 2, 0)
	ctx := context.Background()
	f.scriptDay(0, 8000)
	f.scriptDay(1, 6000)

	require.NoError(t, f.engine.Repair(ctx, "u1"))

	rec, err := f.stepRepo.Get(ctx, "u1", f.today.AddDays(-1))
	require.NoError(t, err)
	assert.Equal(t, 6000, rec.Steps)
}
