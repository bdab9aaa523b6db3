package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const gameColumns = `game_id, user_id, user_side, opponent_id, time_control, created_at_ms,
	opening, eco, result, status, moves, moves_uci, analysis,
	evals, mates, judgment_name, judgment_comment`

func gameArgs(g Game) []any {
	return []any{
		g.GameID, g.UserID, g.UserSide, g.OpponentID, g.TimeControl, g.CreatedAtMS,
		g.Opening, g.ECO, g.Result, g.Status, g.Moves, g.MovesUCI, g.Analysis,
		g.Evals, g.Mates, g.JudgmentName, g.JudgmentComment,
	}
}

// ImportGames loads games into the staging table under batchID and copies the
// ones not stored yet into games, all in one transaction. It returns how many
// games were new.
func (s *Store) ImportGames(ctx context.Context, batchID string, games []Game) (inserted int, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = stageGames(ctx, tx, batchID, games); err != nil {
		return 0, fmt.Errorf("stage games: %w", err)
	}
	if inserted, err = commitStaged(ctx, tx, batchID); err != nil {
		return 0, fmt.Errorf("copy staged games: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func stageGames(ctx context.Context, tx *sqlx.Tx, batchID string, games []Game) error {
	query := tx.Rebind(`
		INSERT INTO games_staging (batch_id, ` + gameColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id, game_id) DO NOTHING
	`)
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, g := range games {
		args := append([]any{batchID}, gameArgs(g)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("game %s: %w", g.GameID, err)
		}
	}
	return nil
}

func commitStaged(ctx context.Context, tx *sqlx.Tx, batchID string) (int, error) {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO games (`+gameColumns+`)
		SELECT `+gameColumns+`
		FROM games_staging s
		WHERE s.batch_id = ?
			AND NOT EXISTS (SELECT 1 FROM games g WHERE g.game_id = s.game_id)
		ORDER BY s.created_at_ms
	`), batchID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM games_staging WHERE batch_id = ?`), batchID); err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListGames returns a user's games, newest first.
func (s *Store) ListGames(ctx context.Context, userID string, filter GameFilter) ([]Game, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if filter.Side != "" {
		where = append(where, "user_side = ?")
		args = append(args, filter.Side)
	}
	if filter.TimeControl != "" {
		where = append(where, "time_control = ?")
		args = append(args, filter.TimeControl)
	}
	query := `SELECT ` + gameColumns + ` FROM games WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at_ms DESC, game_id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	var out []Game
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(query), args...)
	return out, err
}

func (s *Store) GetGame(ctx context.Context, gameID string) (Game, error) {
	var g Game
	err := s.db.GetContext(ctx, &g, s.db.Rebind(`SELECT `+gameColumns+` FROM games WHERE game_id = ?`), gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, ErrNotFound
	}
	return g, err
}

func (s *Store) CountGames(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM games WHERE user_id = ?`), userID)
	return n, err
}

// LatestGameTime returns the creation time of the newest stored game. ok is
// false when the user has no games.
func (s *Store) LatestGameTime(ctx context.Context, userID string) (t time.Time, ok bool, err error) {
	var ms sql.NullInt64
	if err := s.db.GetContext(ctx, &ms, s.db.Rebind(`SELECT MAX(created_at_ms) FROM games WHERE user_id = ?`), userID); err != nil {
		return time.Time{}, false, err
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return FromMillis(ms.Int64), true, nil
}

// OpeningResults counts games per opening and result for one side.
func (s *Store) OpeningResults(ctx context.Context, userID, side string) ([]ResultCount, error) {
	var out []ResultCount
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT opening AS key, result, COUNT(*) AS count
		FROM games
		WHERE user_id = ? AND user_side = ?
		GROUP BY opening, result
		ORDER BY opening, result
	`), userID, side)
	return out, err
}

// TimeControlResults counts games per time control and result.
func (s *Store) TimeControlResults(ctx context.Context, userID string) ([]ResultCount, error) {
	var out []ResultCount
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(`
		SELECT time_control AS key, result, COUNT(*) AS count
		FROM games
		WHERE user_id = ?
		GROUP BY time_control, result
		ORDER BY time_control, result
	`), userID)
	return out, err
}
