package web

import (
	"fmt"
	"math"
	"strings"

	"github.com/notnil/chess"

	"chessinsight/internal/db"
)

type MoveView struct {
	Ply      int
	Number   int
	White    bool
	SAN      string
	UCI      string
	Eval     string
	Judgment string
	Comment  string
}

type GameView struct {
	Game     db.Game
	PlayedAt string
	Result   string
	Moves    []MoveView
	Board    [][]SquareView
	FEN      string
}

func buildGameView(g db.Game) GameView {
	pos := chess.StartingPosition()
	uci := chess.UCINotation{}
	san := chess.AlgebraicNotation{}

	parts := strings.Fields(g.MovesUCI)
	moves := make([]MoveView, 0, len(parts))
	for i, m := range parts {
		mv, err := uci.Decode(pos, m)
		if err != nil {
			break
		}
		view := MoveView{
			Ply:    i + 1,
			Number: i/2 + 1,
			White:  i%2 == 0,
			SAN:    san.Encode(pos, mv),
			UCI:    m,
		}
		if i < len(g.Evals) && i < len(g.Mates) {
			view.Eval = evalText(g.Evals[i], g.Mates[i])
		}
		if i < len(g.JudgmentName) {
			view.Judgment = g.JudgmentName[i]
		}
		if i < len(g.JudgmentComment) {
			view.Comment = g.JudgmentComment[i]
		}
		moves = append(moves, view)
		pos = pos.Update(mv)
	}

	return GameView{
		Game:     g,
		PlayedAt: g.CreatedAt().Format("2006-01-02 15:04"),
		Result:   resultLabel(g.Result),
		Moves:    moves,
		Board:    boardRows(pos, g.UserSide == db.SideBlack),
		FEN:      pos.String(),
	}
}

// evalText renders the engine verdict from white's point of view.
func evalText(eval, mate float64) string {
	switch {
	case !math.IsNaN(mate):
		return fmt.Sprintf("#%d", int(mate))
	case !math.IsNaN(eval):
		return fmt.Sprintf("%+.2f", eval/100)
	}
	return ""
}

func resultLabel(result string) string {
	switch result {
	case db.ResultWin:
		return "Won"
	case db.ResultLoss:
		return "Lost"
	case db.ResultDraw:
		return "Draw"
	}
	return "Unfinished"
}
