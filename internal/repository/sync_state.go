package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"league-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type SyncStateRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSyncStateRepository(sqlDB *sql.DB, logger zerolog.Logger) *SyncStateRepository {
	return &SyncStateRepository{db: sqlDB, logger: logger}
}

const syncStateColumns = `friend_id, matchlist_cursor_start, matchlist_done,
	backfill_from_ts, backfill_end_ts, sync_lock_until, last_run_at, updated_at`

func scanSyncState(row interface{ Scan(...any) error }) (*domain.SyncState, error) {
	var s domain.SyncState
	var fromTS, endTS sql.NullInt64
	var lockUntil, lastRunAt sql.NullTime

	err := row.Scan(
		&s.FriendID, &s.MatchlistCursorStart, &s.MatchlistDone,
		&fromTS, &endTS, &lockUntil, &lastRunAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.BackfillFromTS = int64Ptr(fromTS)
	s.BackfillEndTS = int64Ptr(endTS)
	s.SyncLockUntil = timePtr(lockUntil)
	s.LastRunAt = timePtr(lastRunAt)
	return &s, nil
}

// Ensure creates the state row lazily on first use and returns it.
func (r *SyncStateRepository) Ensure(ctx context.Context, friendID string) (*domain.SyncState, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO friend_sync_state (friend_id, updated_at) VALUES (?, ?)`,
		friendID, utc(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure sync state: %w", err)
	}
	return r.Get(ctx, friendID)
}

func (r *SyncStateRepository) Get(ctx context.Context, friendID string) (*domain.SyncState, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+syncStateColumns+` FROM friend_sync_state WHERE friend_id = ?`, friendID)
	return scanSyncState(row)
}

// SetWindow stores the backfill window. With reset, the cursor and
// exhausted flag are cleared: the lower bound changed, so the frozen upper
// bound is replaced and pagination restarts.
func (r *SyncStateRepository) SetWindow(ctx context.Context, friendID string, fromTS, endTS int64, reset bool) error {
	var err error
	if reset {
		_, err = r.db.ExecContext(ctx, `
			UPDATE friend_sync_state
			SET backfill_from_ts = ?, backfill_end_ts = ?, matchlist_cursor_start = 0, matchlist_done = 0, updated_at = ?
			WHERE friend_id = ?`,
			fromTS, endTS, utc(time.Now()), friendID,
		)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE friend_sync_state
			SET backfill_from_ts = ?, backfill_end_ts = ?, updated_at = ?
			WHERE friend_id = ?`,
			fromTS, endTS, utc(time.Now()), friendID,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to set backfill window: %w", err)
	}
	return nil
}

// SaveCursor persists pagination progress. Called on every loop exit path
// so a truncated run resumes exactly where it stopped.
func (r *SyncStateRepository) SaveCursor(ctx context.Context, friendID string, cursor int, done bool, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friend_sync_state
		SET matchlist_cursor_start = ?, matchlist_done = ?, last_run_at = ?, updated_at = ?
		WHERE friend_id = ?`,
		cursor, done, utc(at), utc(at), friendID,
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

func (r *SyncStateRepository) TouchLastRun(ctx context.Context, friendID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friend_sync_state SET last_run_at = ?, updated_at = ? WHERE friend_id = ?`,
		utc(at), utc(at), friendID,
	)
	return err
}

func (r *SyncStateRepository) CountUnexhausted(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friend_sync_state WHERE matchlist_done = 0`).Scan(&n)
	return n, err
}
