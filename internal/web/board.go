package web

import (
	"github.com/notnil/chess"
)

type SquareView struct {
	Glyph  string
	Class  string
	Square string
}

var glyphs = map[chess.Piece]string{
	chess.WhiteKing: "♔", chess.WhiteQueen: "♕", chess.WhiteRook: "♖",
	chess.WhiteBishop: "♗", chess.WhiteKnight: "♘", chess.WhitePawn: "♙",
	chess.BlackKing: "♚", chess.BlackQueen: "♛", chess.BlackRook: "♜",
	chess.BlackBishop: "♝", chess.BlackKnight: "♞", chess.BlackPawn: "♟",
}

// boardRows lays out pos rank by rank as seen from the given side, so black
// users get their pieces at the bottom.
func boardRows(pos *chess.Position, fromBlack bool) [][]SquareView {
	b := pos.Board()
	rows := make([][]SquareView, 0, 8)
	for i := 0; i < 8; i++ {
		r := chess.Rank(7 - i)
		if fromBlack {
			r = chess.Rank(i)
		}
		row := make([]SquareView, 0, 8)
		for j := 0; j < 8; j++ {
			f := chess.File(j)
			if fromBlack {
				f = chess.File(7 - j)
			}
			sq := chess.NewSquare(f, r)
			// a1 is dark.
			class := "sq dark"
			if (int(f)+int(r))%2 == 1 {
				class = "sq light"
			}
			row = append(row, SquareView{Glyph: glyphs[b.Piece(sq)], Class: class, Square: sq.String()})
		}
		rows = append(rows, row)
	}
	return rows
}
