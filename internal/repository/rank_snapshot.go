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

type RankSnapshotRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRankSnapshotRepository(sqlDB *sql.DB, logger zerolog.Logger) *RankSnapshotRepository {
	return &RankSnapshotRepository{db: sqlDB, logger: logger}
}

// Latest returns the newest snapshot for the friend+queue, or nil if none
// exists yet.
func (r *RankSnapshotRepository) Latest(ctx context.Context, friendID, queueType string) (*domain.RankSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, friend_id, queue_type, tier, rank, lp, wins, losses, created_at
		FROM rank_snapshots
		WHERE friend_id = ? AND queue_type = ?
		ORDER BY created_at DESC
		LIMIT 1`, friendID, queueType)

	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return snap, err
}

func (r *RankSnapshotRepository) Create(ctx context.Context, s *domain.RankSnapshot) error {
	if s.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("failed to generate nanoid: %w", err)
		}
		s.ID = id
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utc(time.Now())
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rank_snapshots (id, friend_id, queue_type, tier, rank, lp, wins, losses, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.FriendID, s.QueueType,
		nullStr(s.Tier), nullStr(s.Division), nullInt(s.LP), nullInt(s.Wins), nullInt(s.Losses),
		utc(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create rank snapshot: %w", err)
	}
	return nil
}

func (r *RankSnapshotRepository) ListByFriend(ctx context.Context, friendID string, limit int) ([]domain.RankSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, friend_id, queue_type, tier, rank, lp, wins, losses, created_at
		FROM rank_snapshots
		WHERE friend_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, friendID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RankSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row interface{ Scan(...any) error }) (*domain.RankSnapshot, error) {
	var s domain.RankSnapshot
	var tier, division sql.NullString
	var lp, wins, losses sql.NullInt64

	err := row.Scan(&s.ID, &s.FriendID, &s.QueueType, &tier, &division, &lp, &wins, &losses, &s.CreatedAt)
	if err != nil {
		return nil, err
	}

	s.Tier = strPtr(tier)
	s.Division = strPtr(division)
	s.LP = intPtr(lp)
	s.Wins = intPtr(wins)
	s.Losses = intPtr(losses)
	return &s, nil
}
