package service

import (
	"context"
	"fmt"
	"time"

	"stride-sync/internal/model"
	"stride-sync/internal/repository"
)

// streakScanDays bounds the backward scan over the persisted series.
const streakScanDays = 365

// StreakCalculator derives streak state from the persisted daily series.
// Computation is pure over the stored records; nothing is written back.
type StreakCalculator struct {
	stepRepo *repository.StepRepository
	loc      *time.Location
	now      func() time.Time
}

// NewStreakCalculator creates a StreakCalculator.
func NewStreakCalculator(stepRepo *repository.StepRepository, loc *time.Location) *StreakCalculator {
	if loc == nil {
		loc = time.Local
	}
	return &StreakCalculator{stepRepo: stepRepo, loc: loc, now: time.Now}
}

// ComputeStreak scans backward from today for up to a year of records and
// derives the current and longest streaks against the goal. An empty series
// yields the zero state, not an error.
func (c *StreakCalculator) ComputeStreak(ctx context.Context, userID string, goal int) (model.StreakState, error) {
	today := model.DateOf(c.now().In(c.loc))
	from := today.AddDays(-(streakScanDays - 1))

	recs, err := c.stepRepo.GetRange(ctx, userID, from, today)
	if err != nil {
		return model.StreakState{}, fmt.Errorf("failed to load step series: %w", err)
	}

	steps := make(map[model.Date]int, len(recs))
	for _, rec := range recs {
		steps[rec.Date] = rec.Steps
	}

	return computeStreak(steps, today, goal), nil
}

// computeStreak is the pure core. Today anchors the current streak only
// when already active; otherwise yesterday may anchor it, so a user who has
// not yet moved today does not appear to have lost their streak.
func computeStreak(steps map[model.Date]int, today model.Date, goal int) model.StreakState {
	qualifies := func(d model.Date) bool {
		return steps[d] >= goal
	}

	state := model.StreakState{
		IsActiveToday: qualifies(today),
	}

	// Anchor of the current run: today when active, else yesterday.
	var anchor model.Date
	switch {
	case qualifies(today):
		anchor = today
	case qualifies(today.AddDays(-1)):
		anchor = today.AddDays(-1)
	}

	if !anchor.IsZero() {
		d := anchor
		for i := 0; i < streakScanDays && qualifies(d); i++ {
			state.CurrentStreak++
			state.StreakStartDate = d
			d = d.AddDays(-1)
		}
	}

	// Longest run anywhere in the scanned window. A non-qualifying day
	// terminates a run but the scan continues for historical runs.
	run := 0
	for i := streakScanDays - 1; i >= 0; i-- {
		d := today.AddDays(-i)
		if qualifies(d) {
			run++
			if run > state.LongestStreak {
				state.LongestStreak = run
			}
			if state.LastActivityDate.IsZero() || state.LastActivityDate.Before(d) {
				state.LastActivityDate = d
			}
		} else {
			run = 0
		}
	}

	return state
}
