package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const userColumns = `lichess_id, username, created_at_ms,
	bullet_rating, bullet_games, blitz_rating, blitz_games,
	rapid_rating, rapid_games, classical_rating, classical_games,
	updated_at_ms, games_synced_at_ms`

func (s *Store) GetUser(ctx context.Context, lichessID string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE lichess_id = ?`), lichessID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	err := s.db.SelectContext(ctx, &out, `SELECT `+userColumns+` FROM users ORDER BY lichess_id`)
	return out, err
}

// UpsertUser inserts the profile or overwrites the stored ratings. The games
// sync cursor is left alone on update.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lichess_id) DO UPDATE SET
			username = excluded.username,
			created_at_ms = excluded.created_at_ms,
			bullet_rating = excluded.bullet_rating,
			bullet_games = excluded.bullet_games,
			blitz_rating = excluded.blitz_rating,
			blitz_games = excluded.blitz_games,
			rapid_rating = excluded.rapid_rating,
			rapid_games = excluded.rapid_games,
			classical_rating = excluded.classical_rating,
			classical_games = excluded.classical_games,
			updated_at_ms = excluded.updated_at_ms
	`),
		u.LichessID, u.Username, u.CreatedAtMS,
		u.BulletRating, u.BulletGames, u.BlitzRating, u.BlitzGames,
		u.RapidRating, u.RapidGames, u.ClassicalRating, u.ClassicalGames,
		u.UpdatedAtMS, u.GamesSyncedAtMS,
	)
	return err
}

func (s *Store) MarkGamesSynced(ctx context.Context, lichessID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE users SET games_synced_at_ms = ? WHERE lichess_id = ?`), ToMillis(at), lichessID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// DeleteUser removes the user; stored games go with it.
func (s *Store) DeleteUser(ctx context.Context, lichessID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// sqlite skips the cascade when foreign_keys is off on the connection, so
	// remove games explicitly.
	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM games WHERE user_id = ?`), lichessID); err != nil {
		return err
	}
	var res sql.Result
	if res, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE lichess_id = ?`), lichessID); err != nil {
		return err
	}
	if err = expectRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
