package reports

import (
	"time"

	"follower-archive/internal/models"
)

// DaySummary aggregates change events for one UTC calendar day.
type DaySummary struct {
	Date             string `json:"date"` // YYYY-MM-DD
	FollowersAdded   int    `json:"followers_added"`
	FollowersRemoved int    `json:"followers_removed"`
	FollowingAdded   int    `json:"following_added"`
	FollowingRemoved int    `json:"following_removed"`
	FollowersNet     int    `json:"followers_net"`
	FollowingNet     int    `json:"following_net"`
	TotalChanges     int    `json:"total_changes"`
}

// Counts aggregates the four base counters over a whole window.
type Counts struct {
	FollowersAdded   int `json:"followers_added"`
	FollowersRemoved int `json:"followers_removed"`
	FollowingAdded   int `json:"following_added"`
	FollowingRemoved int `json:"following_removed"`
	FollowersNet     int `json:"followers_net"`
	FollowingNet     int `json:"following_net"`
	TotalChanges     int `json:"total_changes"`
}

// ListTotal is the size and capture time of one latest snapshot. CollectedAt
// is nil when no snapshot exists yet.
type ListTotal struct {
	Count       int        `json:"count"`
	CollectedAt *time.Time `json:"collected_at"`
}

// CurrentTotals reports the latest follower/following sizes for an account.
type CurrentTotals struct {
	TargetAccount string     `json:"target_account"`
	Followers     ListTotal  `json:"followers"`
	Following     ListTotal  `json:"following"`
	LastUpdated   *time.Time `json:"last_updated"`
}

// DayNet names a single day's net movement, used for best/worst day picks.
type DayNet struct {
	Date         string `json:"date"`
	FollowersNet int    `json:"followers_net"`
	FollowingNet int    `json:"following_net"`
	TotalChanges int    `json:"total_changes"`
}

// Insights is the derived trend report over one window.
type Insights struct {
	NetFollowers       int                  `json:"net_followers"`
	NetFollowing       int                  `json:"net_following"`
	TotalChanges       int                  `json:"total_changes"`
	PositiveStreakDays int                  `json:"positive_streak_days"`
	BestDay            *DayNet              `json:"best_day"`
	WorstDay           *DayNet              `json:"worst_day"`
	AvgFollowersNet    float64              `json:"avg_followers_net"`
	AvgFollowingNet    float64              `json:"avg_following_net"`
	NewFollowers       []models.ChangeEvent `json:"new_followers"`
	LostFollowers      []models.ChangeEvent `json:"lost_followers"`
	LatestActivity     *models.ChangeEvent  `json:"latest_activity"`
}

// GapBucket is one side of a follow-back asymmetry. Count reports the full
// size even when Users is truncated.
type GapBucket struct {
	Count int           `json:"count"`
	Users []models.User `json:"users"`
}

// FollowBackGaps reports who does not follow back, both directions.
type FollowBackGaps struct {
	TargetAccount       string    `json:"target_account"`
	NotFollowingYouBack GapBucket `json:"not_following_you_back"`
	YouDontFollowBack   GapBucket `json:"you_dont_follow_back"`
}

// BreakdownBucket is one relationship class with a size-limited sample.
type BreakdownBucket struct {
	Total int           `json:"total"`
	Users []models.User `json:"users"`
}

// RelationshipBreakdown classifies the latest snapshots into mutuals and
// one-directional relationships.
type RelationshipBreakdown struct {
	TargetAccount  string          `json:"target_account"`
	FollowersTotal int             `json:"followers_total"`
	FollowingTotal int             `json:"following_total"`
	Mutual         BreakdownBucket `json:"mutual"`
	OnlyFollowers  BreakdownBucket `json:"only_followers"`
	OnlyFollowing  BreakdownBucket `json:"only_following"`
	MutualRatio    float64         `json:"mutual_ratio"`
}

// SnapshotRef is a snapshot reduced to its timestamp and size.
type SnapshotRef struct {
	CollectedAt time.Time `json:"collected_at"`
	Count       int       `json:"count"`
}

// ListComparison is the ephemeral diff between two snapshots of one list.
type ListComparison struct {
	Available    bool          `json:"available"`
	Baseline     *SnapshotRef  `json:"baseline,omitempty"`
	Current      *SnapshotRef  `json:"current,omitempty"`
	AddedCount   int           `json:"added_count"`
	RemovedCount int           `json:"removed_count"`
	Added        []models.User `json:"added"`
	Removed      []models.User `json:"removed"`
}

// SnapshotComparison compares window boundaries for both list types.
type SnapshotComparison struct {
	TargetAccount string         `json:"target_account"`
	Followers     ListComparison `json:"followers"`
	Following     ListComparison `json:"following"`
}

// HistoryPoint is one snapshot in a size-over-time series.
type HistoryPoint struct {
	CollectedAt time.Time `json:"collected_at"`
	Count       int       `json:"count"`
}

// FollowerHistoryPoint additionally carries the sanitized member list
// (pk, username, full_name only).
type FollowerHistoryPoint struct {
	CollectedAt time.Time     `json:"collected_at"`
	Count       int           `json:"count"`
	Users       []models.User `json:"users"`
}

// SnapshotHistory is the per-list snapshot series for one account.
type SnapshotHistory struct {
	TargetAccount string                 `json:"target_account"`
	Followers     []FollowerHistoryPoint `json:"followers"`
	Following     []HistoryPoint         `json:"following"`
}
