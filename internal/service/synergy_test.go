package service

import (
	"context"
	"testing"
	"time"

	"league-tracker/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) addResolvedFriend(t *testing.T, name, puuid string) *domain.Friend {
	t.Helper()
	f := e.addFriend(t, name)
	require.NoError(t, e.friends.SetPUUID(context.Background(), f.ID, puuid))
	return f
}

func (e *testEnv) addCompleteMatch(t *testing.T, id string, startMS int64, rows []domain.MatchParticipant) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.matches.UpsertDetail(ctx, &domain.Match{
		ID: id, RawJSON: []byte(`{}`), GameStartMS: &startMS, FetchedAt: time.Now(),
	}))
	for i := range rows {
		rows[i].MatchID = id
	}
	require.NoError(t, e.participants.UpsertBatch(ctx, rows))
}

func teamRow(puuid string, teamID int, win bool) domain.MatchParticipant {
	return domain.MatchParticipant{PUUID: puuid, TeamID: &teamID, Win: &win}
}

func TestSynergyPairsSameTeamOnly(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSynergyService(env.friends, env.matches, env.participants)

	a := env.addResolvedFriend(t, "A", "PA")
	b := env.addResolvedFriend(t, "B", "PB")
	env.addResolvedFriend(t, "C", "PC")

	// A and B together twice (one win, one loss), C always on the other team.
	env.addCompleteMatch(t, "M1", 1700000001000, []domain.MatchParticipant{
		teamRow("PA", 100, true), teamRow("PB", 100, true), teamRow("PC", 200, false),
	})
	env.addCompleteMatch(t, "M2", 1700000002000, []domain.MatchParticipant{
		teamRow("PA", 100, false), teamRow("PB", 100, false), teamRow("PC", 200, true),
	})

	pairs, err := svc.Pairs(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	want := []string{a.ID, b.ID}
	assert.ElementsMatch(t, want, []string{pairs[0].FriendA, pairs[0].FriendB})
	assert.Equal(t, 2, pairs[0].Games)
	assert.Equal(t, 1, pairs[0].Wins)
	assert.InDelta(t, 0.5, pairs[0].WinRate, 0.001)
}

func TestSynergyDisagreeingWinFlagsCountGameNotWin(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSynergyService(env.friends, env.matches, env.participants)

	env.addResolvedFriend(t, "A", "PA")
	env.addResolvedFriend(t, "B", "PB")

	winTrue, winFalse := true, false
	team := 100
	env.addCompleteMatch(t, "M1", 1700000001000, []domain.MatchParticipant{
		{PUUID: "PA", TeamID: &team, Win: &winTrue},
		{PUUID: "PB", TeamID: &team, Win: &winFalse},
	})
	env.addCompleteMatch(t, "M2", 1700000002000, []domain.MatchParticipant{
		{PUUID: "PA", TeamID: &team, Win: nil},
		{PUUID: "PB", TeamID: &team, Win: &winTrue},
	})

	pairs, err := svc.Pairs(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, 2, pairs[0].Games)
	assert.Equal(t, 0, pairs[0].Wins)
}

func TestSynergyIgnoresUnresolvedAndMissingTeams(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSynergyService(env.friends, env.matches, env.participants)

	env.addResolvedFriend(t, "A", "PA")
	env.addFriend(t, "B") // never resolved, cannot appear in any pair

	pairs, err := svc.Pairs(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	env.addResolvedFriend(t, "C", "PC")
	team := 100
	env.addCompleteMatch(t, "M1", 1700000001000, []domain.MatchParticipant{
		{PUUID: "PA", TeamID: &team},
		{PUUID: "PC", TeamID: nil}, // unknown team never pairs
	})

	pairs, err = svc.Pairs(context.Background(), 50)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
