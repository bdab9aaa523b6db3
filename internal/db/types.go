package db

import (
	"time"
)

const (
	SideWhite = "white"
	SideBlack = "black"

	ResultWin  = "win"
	ResultLoss = "loss"
	ResultDraw = "draw"
)

// TimeControls lists the rating buckets tracked per user, fastest first.
var TimeControls = []string{"bullet", "blitz", "rapid", "classical"}

type User struct {
	LichessID       string `db:"lichess_id"`
	Username        string `db:"username"`
	CreatedAtMS     int64  `db:"created_at_ms"`
	BulletRating    int    `db:"bullet_rating"`
	BulletGames     int    `db:"bullet_games"`
	BlitzRating     int    `db:"blitz_rating"`
	BlitzGames      int    `db:"blitz_games"`
	RapidRating     int    `db:"rapid_rating"`
	RapidGames      int    `db:"rapid_games"`
	ClassicalRating int    `db:"classical_rating"`
	ClassicalGames  int    `db:"classical_games"`
	UpdatedAtMS     int64  `db:"updated_at_ms"`
	GamesSyncedAtMS int64  `db:"games_synced_at_ms"`
}

func (u User) CreatedAt() time.Time     { return FromMillis(u.CreatedAtMS) }
func (u User) UpdatedAt() time.Time     { return FromMillis(u.UpdatedAtMS) }
func (u User) GamesSyncedAt() time.Time { return FromMillis(u.GamesSyncedAtMS) }

// Perf returns rating and game count for one of TimeControls.
func (u User) Perf(timeControl string) (rating, games int) {
	switch timeControl {
	case "bullet":
		return u.BulletRating, u.BulletGames
	case "blitz":
		return u.BlitzRating, u.BlitzGames
	case "rapid":
		return u.RapidRating, u.RapidGames
	case "classical":
		return u.ClassicalRating, u.ClassicalGames
	}
	return 0, 0
}

type Game struct {
	GameID          string     `db:"game_id"`
	UserID          string     `db:"user_id"`
	UserSide        string     `db:"user_side"`
	OpponentID      string     `db:"opponent_id"`
	TimeControl     string     `db:"time_control"`
	CreatedAtMS     int64      `db:"created_at_ms"`
	Opening         string     `db:"opening"`
	ECO             string     `db:"eco"`
	Result          string     `db:"result"`
	Status          string     `db:"status"`
	Moves           string     `db:"moves"`
	MovesUCI        string     `db:"moves_uci"`
	Analysis        bool       `db:"analysis"`
	Evals           FloatList  `db:"evals"`
	Mates           FloatList  `db:"mates"`
	JudgmentName    StringList `db:"judgment_name"`
	JudgmentComment StringList `db:"judgment_comment"`
}

func (g Game) CreatedAt() time.Time { return FromMillis(g.CreatedAtMS) }

type GameFilter struct {
	Side        string
	TimeControl string
	Limit       int
	Offset      int
}

// ResultCount is one row of a "GROUP BY <key>, result" aggregate.
type ResultCount struct {
	Key    string `db:"key"`
	Result string `db:"result"`
	Count  int    `db:"count"`
}

func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
