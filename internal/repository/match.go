package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"league-tracker/internal/constants"
	"league-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{db: sqlDB, logger: logger}
}

// CreatePlaceholders inserts minimal match rows so link rows can reference
// them before the detail fetch runs. fetched_at is epoch so placeholders
// read as maximally stale. INSERT OR IGNORE keeps reruns idempotent.
func (r *MatchRepository) CreatePlaceholders(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := utc(time.Now())
	epoch := time.Unix(0, 0).UTC()
	for i := 0; i < len(ids); i += constants.DBBatchSize {
		end := min(i+constants.DBBatchSize, len(ids))
		for _, id := range ids[i:end] {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO matches (id, raw_json, fetched_at, created_at)
				VALUES (?, '{}', ?, ?)`,
				id, epoch, now,
			); err != nil {
				return fmt.Errorf("failed to create placeholder %s: %w", id, err)
			}
		}
	}

	return tx.Commit()
}

// LinkFriend records friend<->match associations, skipping existing pairs.
func (r *MatchRepository) LinkFriend(ctx context.Context, friendID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := utc(time.Now())
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO friend_matches (friend_id, match_id, added_at)
			VALUES (?, ?, ?)`,
			friendID, id, now,
		); err != nil {
			return fmt.Errorf("failed to link match %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (r *MatchRepository) Get(ctx context.Context, id string) (*domain.Match, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, raw_json, timeline_json, platform, game_start_ms, game_duration_s,
			queue_id, fetched_at, timeline_fetched_at, created_at
		FROM matches WHERE id = ?`, id)

	var m domain.Match
	var rawJSON string
	var timelineJSON, platform sql.NullString
	var gameStartMS, gameDurationS, queueID sql.NullInt64
	var timelineFetchedAt sql.NullTime

	err := row.Scan(&m.ID, &rawJSON, &timelineJSON, &platform, &gameStartMS,
		&gameDurationS, &queueID, &m.FetchedAt, &timelineFetchedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.RawJSON = []byte(rawJSON)
	if timelineJSON.Valid {
		m.TimelineJSON = []byte(timelineJSON.String)
	}
	m.Platform = strPtr(platform)
	m.GameStartMS = int64Ptr(gameStartMS)
	m.GameDurationS = intPtr(gameDurationS)
	m.QueueID = intPtr(queueID)
	m.TimelineFetchedAt = timePtr(timelineFetchedAt)
	return &m, nil
}

// UpsertDetail writes the full payload and derived fields. The insert arm
// is defensive: the placeholder normally exists, but a link created by an
// overlapping partial run may not have one yet.
func (r *MatchRepository) UpsertDetail(ctx context.Context, m *domain.Match) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO matches (id, raw_json, platform, game_start_ms, game_duration_s, queue_id, fetched_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			raw_json = excluded.raw_json,
			platform = excluded.platform,
			game_start_ms = excluded.game_start_ms,
			game_duration_s = excluded.game_duration_s,
			queue_id = excluded.queue_id,
			fetched_at = excluded.fetched_at`,
		m.ID, string(m.RawJSON), nullStr(m.Platform), nullInt64(m.GameStartMS),
		nullInt(m.GameDurationS), nullInt(m.QueueID), utc(m.FetchedAt), utc(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert match %s: %w", m.ID, err)
	}
	return nil
}

func (r *MatchRepository) SetTimeline(ctx context.Context, id string, timeline []byte, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matches SET timeline_json = ?, timeline_fetched_at = ? WHERE id = ?`,
		string(timeline), utc(at), id,
	)
	return err
}

func (r *MatchRepository) CountIncomplete(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches WHERE game_start_ms IS NULL`).Scan(&n)
	return n, err
}

// IncompleteIDsForFriend returns this friend's linked matches still missing
// details, newest links first, so actively synced friends stay responsive.
func (r *MatchRepository) IncompleteIDsForFriend(ctx context.Context, friendID string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fm.match_id
		FROM friend_matches fm
		JOIN matches m ON m.id = fm.match_id
		WHERE fm.friend_id = ? AND m.game_start_ms IS NULL
		ORDER BY fm.added_at DESC
		LIMIT ?`, friendID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// GlobalIncompleteIDs returns linked matches missing details across all
// friends, oldest link first, so backfill keeps moving for friends not
// selected this run.
func (r *MatchRepository) GlobalIncompleteIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fm.match_id
		FROM friend_matches fm
		JOIN matches m ON m.id = fm.match_id
		WHERE m.game_start_ms IS NULL
		GROUP BY fm.match_id
		ORDER BY MIN(fm.added_at) ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FriendsWithIncompleteDetails lists friends that still have linked matches
// without details, stalest sync first.
func (r *MatchRepository) FriendsWithIncompleteDetails(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id
		FROM friends f
		JOIN friend_matches fm ON fm.friend_id = f.id
		JOIN matches m ON m.id = fm.match_id
		WHERE m.game_start_ms IS NULL
		GROUP BY f.id
		ORDER BY f.last_sync_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ShortRosterIDs returns complete matches whose stored participant rows fall
// short of a full roster, newest detail fetch first. These can be repaired
// from the stored payload without an upstream call.
func (r *MatchRepository) ShortRosterIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.id
		FROM matches m
		LEFT JOIN match_participants mp ON mp.match_id = m.id
		WHERE m.game_start_ms IS NOT NULL
		GROUP BY m.id
		HAVING COUNT(mp.match_id) < ?
		ORDER BY m.fetched_at DESC
		LIMIT ?`, constants.MatchRosterSize, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// RecentMatchIDs returns the newest complete matches by in-game start time.
func (r *MatchRepository) RecentMatchIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM matches
		WHERE game_start_ms IS NOT NULL
		ORDER BY game_start_ms DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// inPlaceholders builds "?,?,?" for n parameters.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
