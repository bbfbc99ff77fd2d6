// Package model defines the data models for the step sync service.
package model

import "time"

// StepSource identifies where a daily step count came from.
type StepSource string

// Step sources.
const (
	SourcePrimarySensor StepSource = "primary-sensor"
	SourceFallback      StepSource = "fallback"
	SourceTest          StepSource = "test"
)

// DailyStepRecord is one reconciled step count for one user and one calendar
// day. (UserID, Date) is the identity key; later writes overwrite.
type DailyStepRecord struct {
	UserID     string     `json:"userId"`
	Date       Date       `json:"date"`
	Steps      int        `json:"steps"`
	Source     StepSource `json:"source"`
	SyncMethod string     `json:"syncMethod"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// StreakState is the derived streak view over a user's daily series. It is
// recomputed on every query, never stored canonically.
// Invariant: LongestStreak >= CurrentStreak.
type StreakState struct {
	CurrentStreak    int  `json:"currentStreak"`
	LongestStreak    int  `json:"longestStreak"`
	StreakStartDate  Date `json:"streakStartDate,omitempty"`
	LastActivityDate Date `json:"lastActivityDate,omitempty"`
	IsActiveToday    bool `json:"isActiveToday"`
}

// UserLevelState is derived purely from lifetime total steps.
// ProgressPercentage is clamped to [0,100] for display.
type UserLevelState struct {
	Level              int     `json:"level"`
	CurrentExp         int64   `json:"currentExp"`
	NextLevelExp       int64   `json:"nextLevelExp"`
	TotalSteps         int64   `json:"totalSteps"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// BadgeRecord is an awarded badge. Identity key is (UserID, Date, Type),
// enforced by using the concatenation as the document key, which makes a
// second award attempt a natural no-op.
type BadgeRecord struct {
	UserID    string    `json:"userId"`
	Date      Date      `json:"date"`
	Type      string    `json:"type"`
	AwardedAt time.Time `json:"awardedAt"`
}

// Key returns the badge document key.
func (b BadgeRecord) Key() string {
	return b.UserID + "_" + string(b.Date) + "_" + b.Type
}

// Badge types.
const (
	BadgeSteps7500   = "7500_steps"
	BadgeSteps10000  = "10000_steps"
	BadgeThreeDayRun = "3days_streak"
)

// BadgeEvent is delivered to badge-acquired listeners. IsNew is true only
// for genuinely new awards; duplicate award attempts never produce events.
type BadgeEvent struct {
	BadgeRecord
	IsNew bool `json:"isNew"`
}

// DailyBonus tracks a user's once-per-day bonus claims. Mutated only by the
// claim operation; AvailableBonuses resets to the monthly allotment when the
// current month differs from MonthlyResetDate.
type DailyBonus struct {
	UserID           string `json:"userId"`
	LastBonusDate    Date   `json:"lastBonusDate,omitempty"`
	ConsecutiveDays  int    `json:"consecutiveDays"`
	TotalBonuses     int    `json:"totalBonuses"`
	AvailableBonuses int    `json:"availableBonuses"`
	MonthlyResetDate string `json:"monthlyResetDate"` // YYYY-MM
}

// Rarity is a bonus reward tier.
type Rarity string

// Reward rarities, ordered common to legendary.
const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// BonusReward is one claimable daily reward.
type BonusReward struct {
	Type   string `json:"type"`
	Rarity Rarity `json:"rarity"`
	Title  string `json:"title"`
}

// StreakProtection is the consumable resource that can retroactively
// preserve a streak. ActiveProtections stays within [0, max]; usage is
// gated by a cooldown and refills by elapsed whole refill periods.
type StreakProtection struct {
	UserID            string `json:"userId"`
	ActiveProtections int    `json:"activeProtections"`
	UsedProtections   int    `json:"usedProtections"`
	LastUsedDate      Date   `json:"lastUsedDate,omitempty"`
	LastRefillDate    Date   `json:"lastRefillDate,omitempty"`
}
