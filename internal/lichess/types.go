package lichess

import (
	"encoding/json"
	"fmt"
	"time"
)

type Perf struct {
	Games  int  `json:"games"`
	Rating int  `json:"rating"`
	RD     int  `json:"rd"`
	Prog   int  `json:"prog"`
	Prov   bool `json:"prov,omitempty"`
}

// User is the public profile returned by /api/user/{id}.
type User struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Perfs        map[string]Perf `json:"perfs"`
	CreatedAt    int64           `json:"createdAt"`
	SeenAt       int64           `json:"seenAt"`
	Disabled     bool            `json:"disabled,omitempty"`
	TOSViolation bool            `json:"tosViolation,omitempty"`
}

// Perf returns the named perf, or the zero Perf if the user never played it.
func (u User) Perf(name string) Perf {
	return u.Perfs[name]
}

type LightUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

type Player struct {
	User       *LightUser `json:"user,omitempty"`
	Rating     int        `json:"rating"`
	RatingDiff int        `json:"ratingDiff"`
	AILevel    int        `json:"aiLevel,omitempty"`
}

type Players struct {
	White Player `json:"white"`
	Black Player `json:"black"`
}

type Opening struct {
	ECO  string `json:"eco"`
	Name string `json:"name"`
	Ply  int    `json:"ply"`
}

type Judgment struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
}

// AnalysisEntry is the engine evaluation after one ply. Exactly one of Eval
// and Mate is usually set.
type AnalysisEntry struct {
	Eval     *int      `json:"eval,omitempty"`
	Mate     *int      `json:"mate,omitempty"`
	Best     string    `json:"best,omitempty"`
	Judgment *Judgment `json:"judgment,omitempty"`
}

type Clock struct {
	Initial   int `json:"initial"`
	Increment int `json:"increment"`
}

// Game is one line of the /api/games/user/{id} NDJSON export.
type Game struct {
	ID         string          `json:"id"`
	Rated      bool            `json:"rated"`
	Variant    string          `json:"variant"`
	Speed      string          `json:"speed"`
	Perf       string          `json:"perf"`
	CreatedAt  int64           `json:"createdAt"`
	LastMoveAt int64           `json:"lastMoveAt"`
	Status     string          `json:"status"`
	Players    Players         `json:"players"`
	Winner     string          `json:"winner,omitempty"`
	Opening    *Opening        `json:"opening,omitempty"`
	Moves      string          `json:"moves"`
	Clock      *Clock          `json:"clock,omitempty"`
	Analysis   []AnalysisEntry `json:"analysis,omitempty"`
}

func (g Game) Created() time.Time {
	return time.UnixMilli(g.CreatedAt).UTC()
}

// RatingSeries is the rating history of one perf.
type RatingSeries struct {
	Name   string        `json:"name"`
	Points []RatingPoint `json:"points"`
}

type RatingPoint struct {
	Date   time.Time
	Rating int
}

// UnmarshalJSON decodes the wire form [year, month, day, rating]; the month
// is zero-based.
func (p *RatingPoint) UnmarshalJSON(b []byte) error {
	var raw [4]int
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("rating point: %w", err)
	}
	p.Date = time.Date(raw[0], time.Month(raw[1]+1), raw[2], 0, 0, 0, 0, time.UTC)
	p.Rating = raw[3]
	return nil
}

func (p RatingPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{p.Date.Year(), int(p.Date.Month()) - 1, p.Date.Day(), p.Rating})
}
