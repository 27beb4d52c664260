package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"league-tracker/internal/constants"
	"league-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type ParticipantRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewParticipantRepository(sqlDB *sql.DB, logger zerolog.Logger) *ParticipantRepository {
	return &ParticipantRepository{db: sqlDB, logger: logger}
}

// UpsertBatch writes participants keyed on (match_id, puuid) so rebuilds
// and overlapping runs are idempotent.
func (r *ParticipantRepository) UpsertBatch(ctx context.Context, parts []domain.MatchParticipant) error {
	if len(parts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := utc(time.Now())
	for i := 0; i < len(parts); i += constants.DBBatchSize {
		end := min(i+constants.DBBatchSize, len(parts))
		for _, p := range parts[i:end] {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO match_participants (
					match_id, puuid, team_id, win, summoner_name, riot_id_game_name, riot_id_tagline,
					champion_name, lane, role, kills, deaths, assists, gold_earned,
					damage_to_champions, vision_score, minions_killed, neutral_minions_killed,
					created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(match_id, puuid) DO UPDATE SET
					team_id = excluded.team_id,
					win = excluded.win,
					summoner_name = excluded.summoner_name,
					riot_id_game_name = excluded.riot_id_game_name,
					riot_id_tagline = excluded.riot_id_tagline,
					champion_name = excluded.champion_name,
					lane = excluded.lane,
					role = excluded.role,
					kills = excluded.kills,
					deaths = excluded.deaths,
					assists = excluded.assists,
					gold_earned = excluded.gold_earned,
					damage_to_champions = excluded.damage_to_champions,
					vision_score = excluded.vision_score,
					minions_killed = excluded.minions_killed,
					neutral_minions_killed = excluded.neutral_minions_killed,
					updated_at = excluded.updated_at`,
				p.MatchID, p.PUUID, nullInt(p.TeamID), nullBool(p.Win),
				nullStr(p.SummonerName), nullStr(p.RiotIDGameName), nullStr(p.RiotIDTagline),
				nullStr(p.ChampionName), nullStr(p.Lane), nullStr(p.Role),
				nullInt(p.Kills), nullInt(p.Deaths), nullInt(p.Assists), nullInt(p.GoldEarned),
				nullInt(p.DamageToChampions), nullInt(p.VisionScore),
				nullInt(p.MinionsKilled), nullInt(p.NeutralMinionsKilled),
				now, now,
			); err != nil {
				return fmt.Errorf("failed to upsert participant %s/%s: %w", p.MatchID, p.PUUID, err)
			}
		}
	}

	return tx.Commit()
}

func (r *ParticipantRepository) CountByMatch(ctx context.Context, matchID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_participants WHERE match_id = ?`, matchID).Scan(&n)
	return n, err
}

func (r *ParticipantRepository) Get(ctx context.Context, matchID, puuid string) (*domain.MatchParticipant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT match_id, puuid, team_id, win, summoner_name, riot_id_game_name, riot_id_tagline,
			champion_name, lane, role, kills, deaths, assists, gold_earned,
			damage_to_champions, vision_score, minions_killed, neutral_minions_killed,
			created_at, updated_at
		FROM match_participants WHERE match_id = ? AND puuid = ?`, matchID, puuid)
	return scanParticipant(row)
}

func scanParticipant(row interface{ Scan(...any) error }) (*domain.MatchParticipant, error) {
	var p domain.MatchParticipant
	var teamID sql.NullInt64
	var win sql.NullBool
	var summonerName, gameName, tagline, champion, lane, role sql.NullString
	var kills, deaths, assists, gold, damage, vision, minions, neutral sql.NullInt64

	err := row.Scan(
		&p.MatchID, &p.PUUID, &teamID, &win, &summonerName, &gameName, &tagline,
		&champion, &lane, &role, &kills, &deaths, &assists, &gold,
		&damage, &vision, &minions, &neutral, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.TeamID = intPtr(teamID)
	p.Win = boolPtr(win)
	p.SummonerName = strPtr(summonerName)
	p.RiotIDGameName = strPtr(gameName)
	p.RiotIDTagline = strPtr(tagline)
	p.ChampionName = strPtr(champion)
	p.Lane = strPtr(lane)
	p.Role = strPtr(role)
	p.Kills = intPtr(kills)
	p.Deaths = intPtr(deaths)
	p.Assists = intPtr(assists)
	p.GoldEarned = intPtr(gold)
	p.DamageToChampions = intPtr(damage)
	p.VisionScore = intPtr(vision)
	p.MinionsKilled = intPtr(minions)
	p.NeutralMinionsKilled = intPtr(neutral)
	return &p, nil
}

// TeamRow is the slice of participant data the synergy computation needs.
type TeamRow struct {
	MatchID string
	PUUID   string
	TeamID  *int
	Win     *bool
}

// TeamRows returns team/win data for the given puuids within the given
// matches.
func (r *ParticipantRepository) TeamRows(ctx context.Context, matchIDs, puuids []string) ([]TeamRow, error) {
	if len(matchIDs) == 0 || len(puuids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(matchIDs)+len(puuids))
	for _, id := range matchIDs {
		args = append(args, id)
	}
	for _, p := range puuids {
		args = append(args, p)
	}

	query := fmt.Sprintf(`
		SELECT match_id, puuid, team_id, win
		FROM match_participants
		WHERE match_id IN (%s) AND puuid IN (%s)`,
		inPlaceholders(len(matchIDs)), inPlaceholders(len(puuids)))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TeamRow
	for rows.Next() {
		var row TeamRow
		var teamID sql.NullInt64
		var win sql.NullBool
		if err := rows.Scan(&row.MatchID, &row.PUUID, &teamID, &win); err != nil {
			return nil, err
		}
		row.TeamID = intPtr(teamID)
		row.Win = boolPtr(win)
		out = append(out, row)
	}
	return out, rows.Err()
}
