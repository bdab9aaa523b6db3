// Package stats turns stored games into the rows behind the dashboard charts.
package stats

import (
	"sort"

	"chessinsight/internal/db"
)

// Tally counts results from the user's point of view.
type Tally struct {
	Wins   int `json:"wins"`
	Draws  int `json:"draws"`
	Losses int `json:"losses"`
	// Unfinished counts games without a result (aborted and the like).
	Unfinished int `json:"unfinished"`
}

func (t Tally) Total() int { return t.Wins + t.Draws + t.Losses + t.Unfinished }

// Decided is the number of games that ended with a result.
func (t Tally) Decided() int { return t.Wins + t.Draws + t.Losses }

func (t *Tally) add(result string, n int) {
	switch result {
	case db.ResultWin:
		t.Wins += n
	case db.ResultDraw:
		t.Draws += n
	case db.ResultLoss:
		t.Losses += n
	default:
		t.Unfinished += n
	}
}

// Score is the percentage of points scored in decided games, draws counting half.
func (t Tally) Score() float64 {
	d := t.Decided()
	if d == 0 {
		return 0
	}
	return (float64(t.Wins) + float64(t.Draws)/2) * 100 / float64(d)
}

// Bar holds the stacked bar widths in percent of the chart width.
type Bar struct {
	Win  float64 `json:"win"`
	Draw float64 `json:"draw"`
	Loss float64 `json:"loss"`
}

func bar(t Tally, maxTotal int) Bar {
	if maxTotal <= 0 {
		return Bar{}
	}
	m := float64(maxTotal)
	return Bar{
		Win:  float64(t.Wins) * 100 / m,
		Draw: float64(t.Draws) * 100 / m,
		Loss: float64(t.Losses) * 100 / m,
	}
}

type OpeningStat struct {
	Opening string `json:"opening"`
	Tally
	Games int `json:"games"`
	Bar   Bar `json:"bar"`
}

// Openings groups opening/result counts into one row per opening, most played
// first; games with no recorded opening are listed as "Unknown".
func Openings(rows []db.ResultCount) []OpeningStat {
	byName := map[string]*Tally{}
	var names []string
	for _, r := range rows {
		name := r.Key
		if name == "" {
			name = "Unknown"
		}
		t, ok := byName[name]
		if !ok {
			t = &Tally{}
			byName[name] = t
			names = append(names, name)
		}
		t.add(r.Result, r.Count)
	}

	out := make([]OpeningStat, 0, len(names))
	maxTotal := 0
	for _, name := range names {
		t := *byName[name]
		out = append(out, OpeningStat{Opening: name, Tally: t, Games: t.Total()})
		if t.Total() > maxTotal {
			maxTotal = t.Total()
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Games != out[j].Games {
			return out[i].Games > out[j].Games
		}
		return out[i].Opening < out[j].Opening
	})
	for i := range out {
		out[i].Bar = bar(out[i].Tally, maxTotal)
	}
	return out
}

type TimeControlStat struct {
	TimeControl string `json:"time_control"`
	Rating      int    `json:"rating"`
	// Games is the Lichess game count for the perf, not the stored games.
	Games int `json:"games"`
	Tally
	Stored int `json:"stored"`
	// RatingBar and GamesBar are percent of the largest value across rows.
	RatingBar float64 `json:"rating_bar"`
	GamesBar  float64 `json:"games_bar"`
	Bar       Bar     `json:"bar"`
}

// TimeControls returns one row per tracked time control, fastest first.
func TimeControls(u db.User, rows []db.ResultCount) []TimeControlStat {
	tallies := map[string]*Tally{}
	for _, r := range rows {
		t, ok := tallies[r.Key]
		if !ok {
			t = &Tally{}
			tallies[r.Key] = t
		}
		t.add(r.Result, r.Count)
	}

	out := make([]TimeControlStat, 0, len(db.TimeControls))
	maxRating, maxGames, maxStored := 0, 0, 0
	for _, tc := range db.TimeControls {
		rating, games := u.Perf(tc)
		row := TimeControlStat{TimeControl: tc, Rating: rating, Games: games}
		if t := tallies[tc]; t != nil {
			row.Tally = *t
			row.Stored = t.Total()
		}
		maxRating = max(maxRating, rating)
		maxGames = max(maxGames, games)
		maxStored = max(maxStored, row.Stored)
		out = append(out, row)
	}
	for i := range out {
		if maxRating > 0 {
			out[i].RatingBar = float64(out[i].Rating) * 100 / float64(maxRating)
		}
		if maxGames > 0 {
			out[i].GamesBar = float64(out[i].Games) * 100 / float64(maxGames)
		}
		out[i].Bar = bar(out[i].Tally, maxStored)
	}
	return out
}
