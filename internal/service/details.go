package service

import (
	"context"

	"league-tracker/internal/constants"
	"league-tracker/internal/domain"
	"league-tracker/internal/riot"
)

// pickDetailCandidates selects which incomplete matches get detail fetches
// this run. Friends processed this run get a small per-friend allocation
// first (newest links first), then the remaining global cap is topped up
// with the oldest incomplete links across all friends, so backlog drains
// even for friends not selected this run. Backfill runs extend the
// per-friend allocation to friends with detail debt even when their cursor
// is exhausted, since those runs exist to drain history.
func (p *Pipeline) pickDetailCandidates(ctx context.Context, mode Mode, processedFriendIDs []string, maxDetails int) ([]string, error) {
	perFriend := p.cfg.DetailsPerFriendLatest
	if mode == ModeBackfill {
		perFriend = p.cfg.DetailsPerFriendBackfill
	}

	friendIDs := processedFriendIDs
	if mode == ModeBackfill {
		extra, err := p.matches.FriendsWithIncompleteDetails(ctx, maxDetails)
		if err != nil {
			return nil, err
		}
		covered := make(map[string]struct{}, len(friendIDs))
		for _, id := range friendIDs {
			covered[id] = struct{}{}
		}
		for _, id := range extra {
			if _, ok := covered[id]; ok {
				continue
			}
			friendIDs = append(friendIDs, id)
		}
	}

	seen := make(map[string]struct{}, maxDetails)
	out := make([]string, 0, maxDetails)
	add := func(ids []string) {
		for _, id := range ids {
			if len(out) >= maxDetails {
				return
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	if perFriend > 0 {
		for _, friendID := range friendIDs {
			if len(out) >= maxDetails {
				break
			}
			ids, err := p.matches.IncompleteIDsForFriend(ctx, friendID, perFriend)
			if err != nil {
				return nil, err
			}
			add(ids)
		}
	}

	if len(out) < maxDetails {
		// Over-fetch so ids already picked above do not eat the top-up.
		ids, err := p.matches.GlobalIncompleteIDs(ctx, maxDetails+len(out))
		if err != nil {
			return nil, err
		}
		add(ids)
	}

	return out, nil
}

// fetchMatchDetails resolves placeholders into full rows. Each match is an
// independent unit of work; one failure is logged and skipped so the rest
// of the batch still lands. A row fetched within the freshness window is
// left alone, so a payload that stays incomplete (a game still running)
// is not hammered every run. Returns the number fetched.
func (p *Pipeline) fetchMatchDetails(ctx context.Context, ids []string, b budget) int {
	fetched := 0
	for _, id := range ids {
		if b.expired(p.now()) {
			break
		}

		m, err := p.matches.Get(ctx, id)
		if err != nil {
			p.logger.Warn().Err(err).Str("match_id", id).Msg("failed to load match row")
			continue
		}
		if p.now().Sub(m.FetchedAt) < p.cfg.MatchFreshness {
			continue
		}

		payload, err := p.api.MatchByID(ctx, id)
		if err != nil {
			p.logger.Warn().Err(err).Str("match_id", id).Msg("match detail fetch failed")
			continue
		}

		if err := p.storeMatchDetail(ctx, id, payload); err != nil {
			p.logger.Error().Err(err).Str("match_id", id).Msg("failed to store match detail")
			continue
		}
		fetched++

		if p.cfg.FetchTimeline && !b.expired(p.now()) {
			if err := p.fetchTimeline(ctx, m); err != nil {
				p.logger.Warn().Err(err).Str("match_id", id).Msg("timeline fetch failed")
			}
		}
	}
	return fetched
}

// fetchTimeline stores the per-match event timeline, refetching once the
// stored copy ages past the timeline freshness window.
func (p *Pipeline) fetchTimeline(ctx context.Context, m *domain.Match) error {
	if m.TimelineFetchedAt != nil && p.now().Sub(*m.TimelineFetchedAt) < p.cfg.TimelineFreshness {
		return nil
	}
	timeline, err := p.api.MatchTimelineByID(ctx, m.ID)
	if err != nil {
		return err
	}
	return p.matches.SetTimeline(ctx, m.ID, timeline, p.now())
}

func (p *Pipeline) storeMatchDetail(ctx context.Context, id string, payload *riot.MatchPayload) error {
	m := &domain.Match{
		ID:            id,
		RawJSON:       payload.Raw,
		Platform:      payload.Info.PlatformID,
		GameStartMS:   payload.Info.GameStartTimestamp,
		GameDurationS: payload.Info.GameDuration,
		QueueID:       payload.Info.QueueID,
		FetchedAt:     p.now(),
	}
	if err := p.matches.UpsertDetail(ctx, m); err != nil {
		return err
	}
	return p.participants.UpsertBatch(ctx, participantsFromPayload(id, payload))
}

// rebuildShortRosters sweeps complete matches whose participant rows came up
// short and repairs them from the stored payloads. No upstream calls, so it
// only checks the budget between matches.
func (p *Pipeline) rebuildShortRosters(ctx context.Context, b budget) error {
	ids, err := p.matches.ShortRosterIDs(ctx, p.cfg.MaxDetailsPerRun)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if b.expired(p.now()) {
			return nil
		}
		if err := p.RebuildParticipantsIfIncomplete(ctx, id); err != nil {
			p.logger.Warn().Err(err).Str("match_id", id).Msg("participant rebuild failed")
		}
	}
	return nil
}

// RebuildParticipantsIfIncomplete re-derives participant rows for a match
// from its stored payload, without any upstream call. A no-op when the row
// count already matches the payload.
func (p *Pipeline) RebuildParticipantsIfIncomplete(ctx context.Context, matchID string) error {
	have, err := p.participants.CountByMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if have >= constants.MatchRosterSize {
		return nil
	}

	m, err := p.matches.Get(ctx, matchID)
	if err != nil {
		return err
	}
	if m.Incomplete() {
		return nil
	}

	payload, err := riot.ParseMatchPayload(m.RawJSON)
	if err != nil {
		return err
	}
	want := len(payload.Info.Participants)
	if want == 0 || have >= want {
		return nil
	}

	p.logger.Info().
		Str("match_id", matchID).
		Int("have", have).
		Int("want", want).
		Msg("rebuilding participants from stored payload")
	return p.participants.UpsertBatch(ctx, participantsFromPayload(matchID, payload))
}

func participantsFromPayload(matchID string, payload *riot.MatchPayload) []domain.MatchParticipant {
	out := make([]domain.MatchParticipant, 0, len(payload.Info.Participants))
	for _, pp := range payload.Info.Participants {
		if pp.PUUID == nil || *pp.PUUID == "" {
			continue
		}
		out = append(out, domain.MatchParticipant{
			MatchID:              matchID,
			PUUID:                *pp.PUUID,
			TeamID:               pp.TeamID,
			Win:                  pp.Win,
			SummonerName:         pp.SummonerName,
			RiotIDGameName:       pp.RiotIDGameName,
			RiotIDTagline:        pp.RiotIDTagline,
			ChampionName:         pp.ChampionName,
			Lane:                 pp.Lane,
			Role:                 pp.Role,
			Kills:                pp.Kills,
			Deaths:               pp.Deaths,
			Assists:              pp.Assists,
			GoldEarned:           pp.GoldEarned,
			DamageToChampions:    pp.TotalDamageDealtToChampions,
			VisionScore:          pp.VisionScore,
			MinionsKilled:        pp.TotalMinionsKilled,
			NeutralMinionsKilled: pp.NeutralMinionsKilled,
		})
	}
	return out
}
