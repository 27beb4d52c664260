package service

import (
	"context"
	"sort"

	"league-tracker/internal/repository"
)

// PairStat aggregates shared games for one pair of tracked friends.
type PairStat struct {
	FriendA string  `json:"friendA"`
	FriendB string  `json:"friendB"`
	Games   int     `json:"games"`
	Wins    int     `json:"wins"`
	WinRate float64 `json:"winRate"`
}

// SynergyService computes pair win rates for friends that played on the
// same team, entirely from stored participant rows.
type SynergyService struct {
	friends      *repository.FriendRepository
	matches      *repository.MatchRepository
	participants *repository.ParticipantRepository
}

func NewSynergyService(
	friends *repository.FriendRepository,
	matches *repository.MatchRepository,
	participants *repository.ParticipantRepository,
) *SynergyService {
	return &SynergyService{friends: friends, matches: matches, participants: participants}
}

// Pairs scans the most recent complete matches and counts, for every pair
// of friends on the same team, games and wins. A game counts as a win only
// when both rows agree it was won; a missing or conflicting flag counts
// the game but not the win.
func (s *SynergyService) Pairs(ctx context.Context, recentMatches int) ([]PairStat, error) {
	if recentMatches <= 0 {
		recentMatches = 200
	}

	friends, err := s.friends.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	puuidToFriend := make(map[string]string, len(friends))
	var puuids []string
	for _, f := range friends {
		if f.PUUID == nil {
			continue
		}
		puuidToFriend[*f.PUUID] = f.ID
		puuids = append(puuids, *f.PUUID)
	}
	if len(puuids) < 2 {
		return nil, nil
	}

	matchIDs, err := s.matches.RecentMatchIDs(ctx, recentMatches)
	if err != nil {
		return nil, err
	}
	if len(matchIDs) == 0 {
		return nil, nil
	}

	rows, err := s.participants.TeamRows(ctx, matchIDs, puuids)
	if err != nil {
		return nil, err
	}

	byMatch := make(map[string][]repository.TeamRow)
	for _, row := range rows {
		byMatch[row.MatchID] = append(byMatch[row.MatchID], row)
	}

	type key struct{ a, b string }
	stats := make(map[key]*PairStat)

	for _, group := range byMatch {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.TeamID == nil || b.TeamID == nil || *a.TeamID != *b.TeamID {
					continue
				}

				fa, fb := puuidToFriend[a.PUUID], puuidToFriend[b.PUUID]
				if fa == fb {
					continue
				}
				if fa > fb {
					fa, fb = fb, fa
				}

				k := key{fa, fb}
				st := stats[k]
				if st == nil {
					st = &PairStat{FriendA: fa, FriendB: fb}
					stats[k] = st
				}
				st.Games++
				if a.Win != nil && b.Win != nil && *a.Win && *b.Win {
					st.Wins++
				}
			}
		}
	}

	out := make([]PairStat, 0, len(stats))
	for _, st := range stats {
		if st.Games > 0 {
			st.WinRate = float64(st.Wins) / float64(st.Games)
		}
		out = append(out, *st)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		if out[i].FriendA != out[j].FriendA {
			return out[i].FriendA < out[j].FriendA
		}
		return out[i].FriendB < out[j].FriendB
	})
	return out, nil
}
