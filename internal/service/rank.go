package service

import (
	"context"
	"fmt"
	"time"

	"league-tracker/internal/config"
	"league-tracker/internal/constants"
	"league-tracker/internal/domain"
	"league-tracker/internal/repository"
	"league-tracker/internal/riot"

	"github.com/rs/zerolog"
)

// RankService resolves friend identities against the upstream API and keeps
// cached rank fields and the rank snapshot series up to date.
type RankService struct {
	friends   *repository.FriendRepository
	snapshots *repository.RankSnapshotRepository
	api       RiotAPI

	freshness      time.Duration
	snapshotMinGap time.Duration

	logger zerolog.Logger
	now    func() time.Time
}

func NewRankService(
	friends *repository.FriendRepository,
	snapshots *repository.RankSnapshotRepository,
	api RiotAPI,
	cfg *config.Config,
	logger zerolog.Logger,
) *RankService {
	return &RankService{
		friends:        friends,
		snapshots:      snapshots,
		api:            api,
		freshness:      cfg.RankFreshness,
		snapshotMinGap: constants.RankSnapshotMinGap,
		logger:         logger,
		now:            time.Now,
	}
}

// SetNow overrides the clock. Test hook.
func (s *RankService) SetNow(now func() time.Time) {
	s.now = now
}

// EnsurePUUID resolves the friend's account id once and caches it. Safe to
// call every run; a resolved friend never hits upstream again.
func (s *RankService) EnsurePUUID(ctx context.Context, friendID string) (string, error) {
	friend, err := s.friends.Get(ctx, friendID)
	if err != nil {
		return "", fmt.Errorf("friend not found: %w", err)
	}
	if friend.PUUID != nil {
		return *friend.PUUID, nil
	}

	acc, err := s.api.AccountByRiotID(ctx, friend.RiotName, friend.RiotTag)
	if err != nil {
		return "", fmt.Errorf("failed to resolve account: %w", err)
	}
	if acc.PUUID == "" {
		return "", fmt.Errorf("account lookup returned empty puuid for %s", friend.RiotID())
	}

	if err := s.friends.SetPUUID(ctx, friendID, acc.PUUID); err != nil {
		return "", err
	}

	s.logger.Info().Str("friend_id", friendID).Str("riot", friend.RiotID()).Msg("resolved puuid")
	return acc.PUUID, nil
}

// EnsureSummonerID resolves the secondary rank-lookup id, depending on the
// puuid being resolved first.
func (s *RankService) EnsureSummonerID(ctx context.Context, friendID string) (string, error) {
	friend, err := s.friends.Get(ctx, friendID)
	if err != nil {
		return "", fmt.Errorf("friend not found: %w", err)
	}
	if friend.SummonerID != nil {
		return *friend.SummonerID, nil
	}

	puuid := ""
	if friend.PUUID != nil {
		puuid = *friend.PUUID
	} else {
		puuid, err = s.EnsurePUUID(ctx, friendID)
		if err != nil {
			return "", err
		}
	}

	summ, err := s.api.SummonerByPUUID(ctx, puuid)
	if err != nil {
		return "", fmt.Errorf("failed to resolve summoner: %w", err)
	}
	if summ.ID == "" {
		return "", fmt.Errorf("unable to resolve summoner id for friend %s", friendID)
	}

	if err := s.friends.SetSummonerID(ctx, friendID, summ.ID); err != nil {
		return "", err
	}
	return summ.ID, nil
}

// SyncRank refreshes the friend's cached rank. It short-circuits inside the
// freshness window to bound call volume; rank moves slowly relative to
// match frequency. Returns skipped=true when nothing was fetched.
func (s *RankService) SyncRank(ctx context.Context, friendID string) (bool, error) {
	friend, err := s.friends.Get(ctx, friendID)
	if err != nil {
		return false, fmt.Errorf("friend not found: %w", err)
	}

	now := s.now()
	if friend.RankFetchedAt != nil && now.Sub(*friend.RankFetchedAt) < s.freshness {
		s.logger.Debug().Str("friend_id", friendID).Time("rank_fetched_at", *friend.RankFetchedAt).Msg("rank fresh, skipping")
		return true, nil
	}

	summonerID, err := s.EnsureSummonerID(ctx, friendID)
	if err != nil {
		return false, err
	}

	entries, err := s.api.LeagueEntriesBySummonerID(ctx, summonerID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch league entries: %w", err)
	}

	solo := pickQueueRank(entries, domain.QueueSolo)
	flex := pickQueueRank(entries, domain.QueueFlex)

	if err := s.friends.SetRank(ctx, friendID, solo, flex, now); err != nil {
		return false, err
	}

	for queueType, qr := range map[string]domain.QueueRank{
		domain.QueueSolo: solo,
		domain.QueueFlex: flex,
	} {
		if err := s.maybeSnapshot(ctx, friendID, queueType, qr, now); err != nil {
			s.logger.Warn().Err(err).Str("friend_id", friendID).Str("queue", queueType).Msg("failed to write rank snapshot")
		}
	}

	s.logger.Info().Str("friend_id", friendID).Msg("rank synced")
	return false, nil
}

// maybeSnapshot appends to the rank time series when the observed rank
// differs from the latest snapshot, or at most once per minimum gap when
// unchanged.
func (s *RankService) maybeSnapshot(ctx context.Context, friendID, queueType string, qr domain.QueueRank, now time.Time) error {
	last, err := s.snapshots.Latest(ctx, friendID, queueType)
	if err != nil {
		return err
	}

	changed := last == nil ||
		!eqStr(last.Tier, qr.Tier) ||
		!eqStr(last.Division, qr.Division) ||
		!eqInt(last.LP, qr.LP) ||
		!eqInt(last.Wins, qr.Wins) ||
		!eqInt(last.Losses, qr.Losses)

	tooSoon := last != nil && now.Sub(last.CreatedAt) < s.snapshotMinGap

	if !changed && tooSoon {
		return nil
	}

	return s.snapshots.Create(ctx, &domain.RankSnapshot{
		FriendID:  friendID,
		QueueType: queueType,
		Tier:      qr.Tier,
		Division:  qr.Division,
		LP:        qr.LP,
		Wins:      qr.Wins,
		Losses:    qr.Losses,
		CreatedAt: now,
	})
}

func pickQueueRank(entries []riot.LeagueEntry, queueType string) domain.QueueRank {
	for _, e := range entries {
		if e.QueueType == queueType {
			return domain.QueueRank{
				Tier:     e.Tier,
				Division: e.Rank,
				LP:       e.LeaguePoints,
				Wins:     e.Wins,
				Losses:   e.Losses,
			}
		}
	}
	return domain.QueueRank{}
}

func eqStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
