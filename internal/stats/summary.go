package stats

import (
	"fmt"
	"strings"

	"chessinsight/internal/db"
)

// summaryOrder lists the slowest time control first.
var summaryOrder = []string{"classical", "rapid", "blitz", "bullet"}

// SummaryLines renders one "Rating Classical : 1500 (  20 games)" line per
// time control.
func SummaryLines(u db.User) []string {
	out := make([]string, 0, len(summaryOrder))
	for _, tc := range summaryOrder {
		rating, games := u.Perf(tc)
		out = append(out, fmt.Sprintf("Rating %-10s: %4d (%4d games)", Title(tc), rating, games))
	}
	return out
}

// PlaceholderLines is what the summary shows before a user is picked.
func PlaceholderLines() []string {
	out := make([]string, 0, len(summaryOrder))
	for _, tc := range summaryOrder {
		out = append(out, fmt.Sprintf("%-17s: ____", Title(tc)+" rating"))
	}
	return out
}

func Title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
