// Package lock implements cross-process mutual exclusion on database rows.
// A row with a lock-until timestamp is the only primitive that works with
// no shared memory across overlapping serverless invocations; the TTL is
// the self-release path when a holder crashes.
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// GlobalKey addresses the single pipeline-wide lock row. Any other key is
// a friend id and locks that friend's sync-state row.
const GlobalKey = "global"

// Leaser is the narrow locking surface the pipeline depends on, so the
// storage behind it stays swappable.
type Leaser interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Store struct {
	db     *sql.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewStore(sqlDB *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: sqlDB, logger: logger, now: time.Now}
}

// SetNow overrides the clock. Test hook.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

// TryAcquire attempts an atomic conditional update: it succeeds only when
// the row's lock-until is null or in the past. It never blocks or queues.
// The lock row is created if missing (self-healing) before the attempt.
func (s *Store) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()
	until := now.Add(ttl)

	if key == GlobalKey {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO sync_lock (id, locked_until) VALUES (1, NULL)`); err != nil {
			return false, fmt.Errorf("failed to ensure lock row: %w", err)
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE sync_lock SET locked_until = ?
			WHERE id = 1 AND (locked_until IS NULL OR locked_until < ?)`,
			until, now,
		)
		if err != nil {
			return false, fmt.Errorf("failed to acquire global lock: %w", err)
		}
		return acquired(res)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO friend_sync_state (friend_id, updated_at) VALUES (?, ?)`,
		key, now); err != nil {
		return false, fmt.Errorf("failed to ensure sync state row: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE friend_sync_state SET sync_lock_until = ?
		WHERE friend_id = ? AND (sync_lock_until IS NULL OR sync_lock_until < ?)`,
		until, key, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire friend lock: %w", err)
	}
	return acquired(res)
}

// Release sets lock-until to now. Best effort: a failed release is logged
// and swallowed, the TTL guarantees eventual self-release.
func (s *Store) Release(ctx context.Context, key string) error {
	now := s.now().UTC()

	var err error
	if key == GlobalKey {
		_, err = s.db.ExecContext(ctx,
			`UPDATE sync_lock SET locked_until = ? WHERE id = 1`, now)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE friend_sync_state SET sync_lock_until = ? WHERE friend_id = ?`, now, key)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to release lock")
	}
	return nil
}

func acquired(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
