package service

import (
	"context"

	"league-tracker/internal/riot"
)

// RiotAPI is the upstream surface the pipeline consumes. *riot.Client
// implements it; tests substitute scripted fakes.
type RiotAPI interface {
	AccountByRiotID(ctx context.Context, name, tag string) (*riot.Account, error)
	SummonerByPUUID(ctx context.Context, puuid string) (*riot.Summoner, error)
	LeagueEntriesBySummonerID(ctx context.Context, summonerID string) ([]riot.LeagueEntry, error)
	MatchIDsByPUUID(ctx context.Context, puuid string, q riot.MatchIDsQuery) ([]string, error)
	MatchByID(ctx context.Context, matchID string) (*riot.MatchPayload, error)
	MatchTimelineByID(ctx context.Context, matchID string) ([]byte, error)
}
