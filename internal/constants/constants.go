package constants

import "time"

// Freshness windows. Rank changes slowly relative to match frequency, so
// rank re-fetches are gated harder than match detail re-fetches.
const (
	RankFreshness     = 10 * time.Minute
	MatchFreshness    = 30 * time.Minute
	TimelineFreshness = 30 * time.Minute

	// Minimum gap between two rank snapshots when the rank is unchanged.
	RankSnapshotMinGap = 1 * time.Hour
)

// Lock TTLs. The TTL is the self-release path when a crashed run never
// releases explicitly.
const (
	GlobalLockTTL = 10 * time.Minute
	FriendLockTTL = 5 * time.Minute
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	// Margin kept against the serverless hard ceiling: every budget check
	// returns early once less than this remains.
	BudgetSafetyMargin = 1500 * time.Millisecond

	// Riot match-v5 pagination maximum.
	MatchIDPageSize = 100
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Full roster size of a match; fewer stored participants than this marks the
// denormalized rows incomplete and triggers a rebuild from the raw payload.
const MatchRosterSize = 10
