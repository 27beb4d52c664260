package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"league-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type FriendRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewFriendRepository(sqlDB *sql.DB, logger zerolog.Logger) *FriendRepository {
	return &FriendRepository{db: sqlDB, logger: logger}
}

const friendColumns = `id, riot_name, riot_tag, region, puuid, summoner_id, avatar_url,
	ranked_solo_tier, ranked_solo_rank, ranked_solo_lp, ranked_solo_wins, ranked_solo_losses,
	ranked_flex_tier, ranked_flex_rank, ranked_flex_lp, ranked_flex_wins, ranked_flex_losses,
	last_match_id, last_sync_at, rank_fetched_at, created_at, updated_at`

func scanFriend(row interface{ Scan(...any) error }) (*domain.Friend, error) {
	var f domain.Friend
	var puuid, summonerID, avatarURL, lastMatchID sql.NullString
	var soloTier, soloRank, flexTier, flexRank sql.NullString
	var soloLP, soloWins, soloLosses, flexLP, flexWins, flexLosses sql.NullInt64
	var lastSyncAt, rankFetchedAt sql.NullTime

	err := row.Scan(
		&f.ID, &f.RiotName, &f.RiotTag, &f.Region, &puuid, &summonerID, &avatarURL,
		&soloTier, &soloRank, &soloLP, &soloWins, &soloLosses,
		&flexTier, &flexRank, &flexLP, &flexWins, &flexLosses,
		&lastMatchID, &lastSyncAt, &rankFetchedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.PUUID = strPtr(puuid)
	f.SummonerID = strPtr(summonerID)
	f.AvatarURL = strPtr(avatarURL)
	f.LastMatchID = strPtr(lastMatchID)
	f.LastSyncAt = timePtr(lastSyncAt)
	f.RankFetchedAt = timePtr(rankFetchedAt)
	f.RankedSolo = domain.QueueRank{
		Tier: strPtr(soloTier), Division: strPtr(soloRank),
		LP: intPtr(soloLP), Wins: intPtr(soloWins), Losses: intPtr(soloLosses),
	}
	f.RankedFlex = domain.QueueRank{
		Tier: strPtr(flexTier), Division: strPtr(flexRank),
		LP: intPtr(flexLP), Wins: intPtr(flexWins), Losses: intPtr(flexLosses),
	}
	return &f, nil
}

func (r *FriendRepository) Create(ctx context.Context, f *domain.Friend) error {
	if f.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		f.ID = id
	}
	now := utc(time.Now())
	f.CreatedAt = now
	f.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO friends (id, riot_name, riot_tag, region, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RiotName, f.RiotTag, f.Region, nullStr(f.AvatarURL), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create friend: %w", err)
	}
	return nil
}

func (r *FriendRepository) Get(ctx context.Context, id string) (*domain.Friend, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+friendColumns+` FROM friends WHERE id = ?`, id)
	return scanFriend(row)
}

func (r *FriendRepository) GetAll(ctx context.Context) ([]domain.Friend, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+friendColumns+` FROM friends ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Friend
	for rows.Next() {
		f, err := scanFriend(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// SetPUUID records a resolved account id. The WHERE clause keeps the puuid
// immutable: a second resolution for the same friend is a no-op.
func (r *FriendRepository) SetPUUID(ctx context.Context, id, puuid string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friends SET puuid = ?, updated_at = ? WHERE id = ? AND puuid IS NULL`,
		puuid, utc(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set puuid: %w", err)
	}
	return nil
}

func (r *FriendRepository) SetSummonerID(ctx context.Context, id, summonerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friends SET summoner_id = ?, updated_at = ? WHERE id = ? AND summoner_id IS NULL`,
		summonerID, utc(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set summoner id: %w", err)
	}
	return nil
}

func (r *FriendRepository) SetAvatarURL(ctx context.Context, id string, avatarURL *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friends SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		nullStr(avatarURL), utc(time.Now()), id,
	)
	return err
}

func (r *FriendRepository) SetRank(ctx context.Context, id string, solo, flex domain.QueueRank, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friends SET
			ranked_solo_tier = ?, ranked_solo_rank = ?, ranked_solo_lp = ?, ranked_solo_wins = ?, ranked_solo_losses = ?,
			ranked_flex_tier = ?, ranked_flex_rank = ?, ranked_flex_lp = ?, ranked_flex_wins = ?, ranked_flex_losses = ?,
			rank_fetched_at = ?, updated_at = ?
		WHERE id = ?`,
		nullStr(solo.Tier), nullStr(solo.Division), nullInt(solo.LP), nullInt(solo.Wins), nullInt(solo.Losses),
		nullStr(flex.Tier), nullStr(flex.Division), nullInt(flex.LP), nullInt(flex.Wins), nullInt(flex.Losses),
		utc(fetchedAt), utc(fetchedAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set rank: %w", err)
	}
	return nil
}

func (r *FriendRepository) SetLastSync(ctx context.Context, id string, lastMatchID *string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friends SET last_match_id = ?, last_sync_at = ?, updated_at = ? WHERE id = ?`,
		nullStr(lastMatchID), utc(at), utc(at), id,
	)
	return err
}

func (r *FriendRepository) TouchLastSync(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friends SET last_sync_at = ?, updated_at = ? WHERE id = ?`,
		utc(at), utc(at), id,
	)
	return err
}
