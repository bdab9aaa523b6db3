package syncer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/notnil/chess"

	"chessinsight/internal/db"
	"chessinsight/internal/lichess"
)

// ErrNotParticipant is returned by MapGame when neither side is the user.
var ErrNotParticipant = errors.New("user did not play this game")

// statuses meaning the game never reached a result.
var unfinished = map[string]bool{
	"created":       true,
	"started":       true,
	"aborted":       true,
	"noStart":       true,
	"unknownFinish": true,
}

// MapUser turns a Lichess profile into a users row stamped with now.
func MapUser(u lichess.User, now time.Time) db.User {
	out := db.User{
		LichessID:   strings.ToLower(u.ID),
		Username:    u.Username,
		CreatedAtMS: u.CreatedAt,
		UpdatedAtMS: db.ToMillis(now),
	}
	p := u.Perf("bullet")
	out.BulletRating, out.BulletGames = p.Rating, p.Games
	p = u.Perf("blitz")
	out.BlitzRating, out.BlitzGames = p.Rating, p.Games
	p = u.Perf("rapid")
	out.RapidRating, out.RapidGames = p.Rating, p.Games
	p = u.Perf("classical")
	out.ClassicalRating, out.ClassicalGames = p.Rating, p.Games
	return out
}

// MapGame records g from the point of view of userID.
func MapGame(userID string, g lichess.Game) (db.Game, error) {
	side, opponent, ok := sides(userID, g.Players)
	if !ok {
		return db.Game{}, fmt.Errorf("game %s: %w", g.ID, ErrNotParticipant)
	}

	out := db.Game{
		GameID:      g.ID,
		UserID:      strings.ToLower(userID),
		UserSide:    side,
		OpponentID:  opponentID(opponent),
		TimeControl: g.Perf,
		CreatedAtMS: g.CreatedAt,
		Result:      result(side, g.Winner, g.Status),
		Status:      g.Status,
		Moves:       strings.Join(strings.Fields(g.Moves), " "),
	}
	if out.TimeControl == "" {
		out.TimeControl = g.Speed
	}
	if g.Opening != nil {
		out.Opening = g.Opening.Name
		out.ECO = g.Opening.ECO
	}
	out.MovesUCI = strings.Join(sanToUCI(strings.Fields(g.Moves)), " ")

	n := len(g.Analysis)
	out.Analysis = n > 0
	out.Evals = make(db.FloatList, n)
	out.Mates = make(db.FloatList, n)
	out.JudgmentName = make(db.StringList, n)
	out.JudgmentComment = make(db.StringList, n)
	for i, a := range g.Analysis {
		out.Evals[i] = intOrNaN(a.Eval)
		out.Mates[i] = intOrNaN(a.Mate)
		if a.Judgment != nil {
			out.JudgmentName[i] = a.Judgment.Name
			out.JudgmentComment[i] = a.Judgment.Comment
		}
	}
	return out, nil
}

// sides finds the user's colour; the opponent is always the other side.
func sides(userID string, p lichess.Players) (side string, opponent lichess.Player, ok bool) {
	if isUser(userID, p.White) {
		return db.SideWhite, p.Black, true
	}
	if isUser(userID, p.Black) {
		return db.SideBlack, p.White, true
	}
	return "", lichess.Player{}, false
}

func isUser(userID string, p lichess.Player) bool {
	return p.User != nil && strings.EqualFold(p.User.ID, userID)
}

func opponentID(p lichess.Player) string {
	switch {
	case p.User != nil:
		return strings.ToLower(p.User.ID)
	case p.AILevel > 0:
		return fmt.Sprintf("ai-level-%d", p.AILevel)
	}
	return ""
}

func result(side, winner, status string) string {
	switch {
	case winner == side:
		return db.ResultWin
	case winner != "":
		return db.ResultLoss
	case unfinished[status] || status == "":
		return ""
	}
	return db.ResultDraw
}

func intOrNaN(v *int) float64 {
	if v == nil {
		return math.NaN()
	}
	return float64(*v)
}

// sanToUCI decodes moves from the starting position and stops at the first
// move it cannot read.
func sanToUCI(moves []string) []string {
	pos := chess.StartingPosition()
	san := chess.AlgebraicNotation{}
	uci := chess.UCINotation{}

	out := make([]string, 0, len(moves))
	for _, m := range moves {
		mv, err := san.Decode(pos, m)
		if err != nil {
			break
		}
		out = append(out, uci.Encode(pos, mv))
		pos = pos.Update(mv)
	}
	return out
}
