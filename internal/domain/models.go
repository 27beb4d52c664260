package domain

import (
	"time"
)

// QueueRank is the cached standing for one ranked queue. All fields are
// nullable: an unranked queue has none of them.
type QueueRank struct {
	Tier     *string
	Division *string
	LP       *int
	Wins     *int
	Losses   *int
}

// Friend is a tracked player. PUUID and SummonerID start null and are
// resolved at most once; once set they are never rewritten.
type Friend struct {
	ID         string
	RiotName   string
	RiotTag    string
	Region     string
	PUUID      *string
	SummonerID *string
	AvatarURL  *string

	RankedSolo QueueRank
	RankedFlex QueueRank

	LastMatchID   *string
	LastSyncAt    *time.Time
	RankFetchedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f *Friend) RiotID() string {
	return f.RiotName + "#" + f.RiotTag
}

// SyncState is the resumable cursor over one friend's paginated match-id
// history. BackfillEndTS is frozen the first time a lower bound is used and
// only changes when the lower bound changes.
type SyncState struct {
	FriendID             string
	MatchlistCursorStart int
	MatchlistDone        bool
	BackfillFromTS       *int64 // unix seconds
	BackfillEndTS        *int64 // unix seconds, frozen per lower bound
	SyncLockUntil        *time.Time
	LastRunAt            *time.Time
	UpdatedAt            time.Time
}

// Match is one completed game. A placeholder row has RawJSON == "{}" and an
// epoch FetchedAt; the row counts as incomplete until GameStartMS is set.
type Match struct {
	ID                string
	RawJSON           []byte
	TimelineJSON      []byte
	Platform          *string
	GameStartMS       *int64
	GameDurationS     *int
	QueueID           *int
	FetchedAt         time.Time
	TimelineFetchedAt *time.Time
	CreatedAt         time.Time
}

func (m *Match) Incomplete() bool {
	return m.GameStartMS == nil
}

// MatchParticipant is the denormalized per-player projection of the raw
// match payload. Parse-or-null: every stat field is nullable.
type MatchParticipant struct {
	MatchID string
	PUUID   string

	TeamID *int
	Win    *bool

	SummonerName   *string
	RiotIDGameName *string
	RiotIDTagline  *string
	ChampionName   *string
	Lane           *string
	Role           *string

	Kills                *int
	Deaths               *int
	Assists              *int
	GoldEarned           *int
	DamageToChampions    *int
	VisionScore          *int
	MinionsKilled        *int
	NeutralMinionsKilled *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RankSnapshot is one row of the append-only rank time series.
type RankSnapshot struct {
	ID        string
	FriendID  string
	QueueType string
	Tier      *string
	Division  *string
	LP        *int
	Wins      *int
	Losses    *int
	CreatedAt time.Time
}

// Ranked queue identifiers as the upstream API reports them.
const (
	QueueSolo = "RANKED_SOLO_5x5"
	QueueFlex = "RANKED_FLEX_SR"
)
