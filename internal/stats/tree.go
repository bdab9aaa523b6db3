package stats

import (
	"sort"
	"strings"

	"github.com/notnil/chess"

	"chessinsight/internal/db"
)

type OpeningNode struct {
	Move       string         `json:"move"`
	SAN        string         `json:"san"`
	Count      int            `json:"count"`
	Tally      Tally          `json:"tally"`
	Children   []*OpeningNode `json:"children,omitempty"`
	childrenBy map[string]*OpeningNode
}

type OpeningTree struct {
	Side     string       `json:"side"`
	MaxPlies int          `json:"max_plies"`
	MinCount int          `json:"min_count"`
	Games    int          `json:"games"`
	Root     *OpeningNode `json:"root"`
}

// BuildOpeningTree walks the first maxPlies moves of every game the user
// played as side. Branches seen fewer than minCount times are cut.
func BuildOpeningTree(games []db.Game, side string, maxPlies, minCount int) OpeningTree {
	root := &OpeningNode{}
	n := 0
	for _, g := range games {
		if side != "" && g.UserSide != side {
			continue
		}
		moves := strings.Fields(g.MovesUCI)
		if len(moves) == 0 {
			continue
		}
		n++
		root.Count++
		root.Tally.add(g.Result, 1)

		limit := len(moves)
		if maxPlies > 0 && limit > maxPlies {
			limit = maxPlies
		}

		pos := chess.StartingPosition()
		node := root
		for _, m := range moves[:limit] {
			var ok bool
			if node, pos, ok = node.play(pos, m); !ok {
				break
			}
			node.Count++
			node.Tally.add(g.Result, 1)
		}
	}

	root.settle(minCount)
	return OpeningTree{Side: side, MaxPlies: maxPlies, MinCount: minCount, Games: n, Root: root}
}

var (
	uciNotation = chess.UCINotation{}
	sanNotation = chess.AlgebraicNotation{}
)

// play follows the UCI move m from pos, creating the child on first sight.
// ok is false when m is not legal in pos.
func (n *OpeningNode) play(pos *chess.Position, m string) (*OpeningNode, *chess.Position, bool) {
	mv, err := uciNotation.Decode(pos, m)
	if err != nil {
		return n, pos, false
	}
	next, seen := n.childrenBy[m]
	if !seen {
		if n.childrenBy == nil {
			n.childrenBy = make(map[string]*OpeningNode)
		}
		next = &OpeningNode{Move: m, SAN: sanNotation.Encode(pos, mv)}
		n.childrenBy[m] = next
		n.Children = append(n.Children, next)
	}
	return next, pos.Update(mv), true
}

// settle drops children seen fewer than minCount times and orders the rest
// by popularity, ties by SAN, all the way down.
func (n *OpeningNode) settle(minCount int) {
	n.childrenBy = nil
	kept := n.Children[:0]
	for _, c := range n.Children {
		if c.Count < minCount {
			continue
		}
		c.settle(minCount)
		kept = append(kept, c)
	}
	n.Children = kept
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.SAN < b.SAN
	})
}

// Score is the user's score percentage through this node.
func (n *OpeningNode) Score() float64 { return n.Tally.Score() }
