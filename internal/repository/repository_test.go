package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"league-tracker/internal/database"
	"league-tracker/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createFriend(t *testing.T, repo *FriendRepository, name, tag string) *domain.Friend {
	t.Helper()
	f := &domain.Friend{RiotName: name, RiotTag: tag, Region: "euw1"}
	require.NoError(t, repo.Create(context.Background(), f))
	return f
}

func TestFriendCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewFriendRepository(db, zerolog.Nop())

	f := createFriend(t, repo, "Foo", "EUW")
	require.NotEmpty(t, f.ID)

	got, err := repo.Get(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Foo", got.RiotName)
	assert.Equal(t, "Foo#EUW", got.RiotID())
	assert.Nil(t, got.PUUID)
	assert.Nil(t, got.LastSyncAt)
}

func TestFriendPUUIDImmutable(t *testing.T) {
	db := newTestDB(t)
	repo := NewFriendRepository(db, zerolog.Nop())
	ctx := context.Background()

	f := createFriend(t, repo, "Foo", "EUW")
	require.NoError(t, repo.SetPUUID(ctx, f.ID, "puuid-1"))
	require.NoError(t, repo.SetPUUID(ctx, f.ID, "puuid-2"))

	got, err := repo.Get(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PUUID)
	assert.Equal(t, "puuid-1", *got.PUUID)
}

func TestFriendSetRankAndLastSync(t *testing.T) {
	db := newTestDB(t)
	repo := NewFriendRepository(db, zerolog.Nop())
	ctx := context.Background()

	f := createFriend(t, repo, "Foo", "EUW")
	tier, div := "GOLD", "II"
	lp, wins, losses := 54, 20, 18
	now := time.Now()

	require.NoError(t, repo.SetRank(ctx, f.ID,
		domain.QueueRank{Tier: &tier, Division: &div, LP: &lp, Wins: &wins, Losses: &losses},
		domain.QueueRank{}, now))

	matchID := "EUW1_100"
	require.NoError(t, repo.SetLastSync(ctx, f.ID, &matchID, now))

	got, err := repo.Get(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RankedSolo.Tier)
	assert.Equal(t, "GOLD", *got.RankedSolo.Tier)
	assert.Nil(t, got.RankedFlex.Tier)
	require.NotNil(t, got.LastMatchID)
	assert.Equal(t, "EUW1_100", *got.LastMatchID)
	require.NotNil(t, got.RankFetchedAt)
}

func TestPlaceholdersAndLinksAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	friends := NewFriendRepository(db, zerolog.Nop())
	matches := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	f := createFriend(t, friends, "Foo", "EUW")
	ids := []string{"EUW1_1", "EUW1_2"}

	require.NoError(t, matches.CreatePlaceholders(ctx, ids))
	require.NoError(t, matches.CreatePlaceholders(ctx, ids))
	require.NoError(t, matches.LinkFriend(ctx, f.ID, ids))
	require.NoError(t, matches.LinkFriend(ctx, f.ID, ids))

	var matchCount, linkCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM matches`).Scan(&matchCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM friend_matches`).Scan(&linkCount))
	assert.Equal(t, 2, matchCount)
	assert.Equal(t, 2, linkCount)

	n, err := matches.CountIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsertDetailCompletesPlaceholder(t *testing.T) {
	db := newTestDB(t)
	matches := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, matches.CreatePlaceholders(ctx, []string{"EUW1_1"}))

	start := int64(1700000000000)
	dur, queue := 1800, 420
	platform := "EUW1"
	require.NoError(t, matches.UpsertDetail(ctx, &domain.Match{
		ID:            "EUW1_1",
		RawJSON:       []byte(`{"info":{}}`),
		Platform:      &platform,
		GameStartMS:   &start,
		GameDurationS: &dur,
		QueueID:       &queue,
		FetchedAt:     time.Now(),
	}))

	got, err := matches.Get(ctx, "EUW1_1")
	require.NoError(t, err)
	assert.False(t, got.Incomplete())
	require.NotNil(t, got.GameStartMS)
	assert.Equal(t, start, *got.GameStartMS)

	n, err := matches.CountIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpsertDetailWithoutPlaceholder(t *testing.T) {
	db := newTestDB(t)
	matches := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	start := int64(1700000000000)
	require.NoError(t, matches.UpsertDetail(ctx, &domain.Match{
		ID:          "EUW1_9",
		RawJSON:     []byte(`{}`),
		GameStartMS: &start,
		FetchedAt:   time.Now(),
	}))

	got, err := matches.Get(ctx, "EUW1_9")
	require.NoError(t, err)
	assert.False(t, got.Incomplete())
}

func TestGlobalIncompleteIDsOldestLinkFirst(t *testing.T) {
	db := newTestDB(t)
	friends := NewFriendRepository(db, zerolog.Nop())
	matches := NewMatchRepository(db, zerolog.Nop())
	ctx := context.Background()

	f := createFriend(t, friends, "Foo", "EUW")
	require.NoError(t, matches.CreatePlaceholders(ctx, []string{"EUW1_1", "EUW1_2"}))
	require.NoError(t, matches.LinkFriend(ctx, f.ID, []string{"EUW1_1"}))

	// Force distinct added_at ordering.
	_, err := db.Exec(`UPDATE friend_matches SET added_at = ? WHERE match_id = 'EUW1_1'`,
		time.Now().Add(-time.Hour).UTC())
	require.NoError(t, err)
	require.NoError(t, matches.LinkFriend(ctx, f.ID, []string{"EUW1_2"}))

	ids, err := matches.GlobalIncompleteIDs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"EUW1_1", "EUW1_2"}, ids)
}

func TestSyncStateEnsureAndWindowReset(t *testing.T) {
	db := newTestDB(t)
	friends := NewFriendRepository(db, zerolog.Nop())
	states := NewSyncStateRepository(db, zerolog.Nop())
	ctx := context.Background()

	f := createFriend(t, friends, "Foo", "EUW")

	st, err := states.Ensure(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.MatchlistCursorStart)
	assert.False(t, st.MatchlistDone)
	assert.Nil(t, st.BackfillFromTS)

	require.NoError(t, states.SetWindow(ctx, f.ID, 1700000000, 1710000000, true))
	require.NoError(t, states.SaveCursor(ctx, f.ID, 100, true, time.Now()))

	st, err = states.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, st.MatchlistCursorStart)
	assert.True(t, st.MatchlistDone)
	require.NotNil(t, st.BackfillFromTS)
	assert.Equal(t, int64(1700000000), *st.BackfillFromTS)

	// Changing the lower bound resets cursor and exhaustion.
	require.NoError(t, states.SetWindow(ctx, f.ID, 1600000000, 1720000000, true))
	st, err = states.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, st.MatchlistCursorStart)
	assert.False(t, st.MatchlistDone)
	assert.Equal(t, int64(1720000000), *st.BackfillEndTS)

	n, err := states.CountUnexhausted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestParticipantUpsertBatchIdempotent(t *testing.T) {
	db := newTestDB(t)
	matches := NewMatchRepository(db, zerolog.Nop())
	parts := NewParticipantRepository(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, matches.CreatePlaceholders(ctx, []string{"EUW1_1"}))

	team := 100
	win := true
	kills := 7
	batch := []domain.MatchParticipant{
		{MatchID: "EUW1_1", PUUID: "p1", TeamID: &team, Win: &win, Kills: &kills},
		{MatchID: "EUW1_1", PUUID: "p2", TeamID: &team, Win: &win},
	}
	require.NoError(t, parts.UpsertBatch(ctx, batch))

	kills = 8
	require.NoError(t, parts.UpsertBatch(ctx, batch))

	n, err := parts.CountByMatch(ctx, "EUW1_1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := parts.Get(ctx, "EUW1_1", "p1")
	require.NoError(t, err)
	require.NotNil(t, got.Kills)
	assert.Equal(t, 8, *got.Kills)
	assert.Nil(t, got.Deaths)
}

func TestRankSnapshotLatest(t *testing.T) {
	db := newTestDB(t)
	friends := NewFriendRepository(db, zerolog.Nop())
	snaps := NewRankSnapshotRepository(db, zerolog.Nop())
	ctx := context.Background()

	f := createFriend(t, friends, "Foo", "EUW")

	latest, err := snaps.Latest(ctx, f.ID, domain.QueueSolo)
	require.NoError(t, err)
	assert.Nil(t, latest)

	tier := "SILVER"
	lp := 10
	require.NoError(t, snaps.Create(ctx, &domain.RankSnapshot{
		FriendID: f.ID, QueueType: domain.QueueSolo, Tier: &tier, LP: &lp,
		CreatedAt: time.Now().Add(-time.Hour),
	}))
	lp2 := 25
	require.NoError(t, snaps.Create(ctx, &domain.RankSnapshot{
		FriendID: f.ID, QueueType: domain.QueueSolo, Tier: &tier, LP: &lp2,
		CreatedAt: time.Now(),
	}))

	latest, err = snaps.Latest(ctx, f.ID, domain.QueueSolo)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.NotNil(t, latest.LP)
	assert.Equal(t, 25, *latest.LP)

	all, err := snaps.ListByFriend(ctx, f.ID, 50)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
