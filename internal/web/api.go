package web

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chessinsight/internal/db"
	"chessinsight/internal/stats"
	"chessinsight/internal/syncer"
)

type perfJSON struct {
	TimeControl string `json:"time_control"`
	Rating      int    `json:"rating"`
	Games       int    `json:"games"`
}

type userJSON struct {
	LichessID     string     `json:"lichess_id"`
	Username      string     `json:"username"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	GamesSyncedAt *time.Time `json:"games_synced_at,omitempty"`
	Perfs         []perfJSON `json:"perfs"`
}

func toUserJSON(u db.User) userJSON {
	out := userJSON{
		LichessID: u.LichessID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt(),
		UpdatedAt: u.UpdatedAt(),
	}
	if t := u.GamesSyncedAt(); !t.IsZero() {
		out.GamesSyncedAt = &t
	}
	for _, tc := range db.TimeControls {
		rating, games := u.Perf(tc)
		out.Perfs = append(out.Perfs, perfJSON{TimeControl: tc, Rating: rating, Games: games})
	}
	return out
}

type plyJSON struct {
	Eval     *float64 `json:"eval,omitempty"`
	Mate     *float64 `json:"mate,omitempty"`
	Judgment string   `json:"judgment,omitempty"`
	Comment  string   `json:"comment,omitempty"`
}

type gameJSON struct {
	GameID      string    `json:"game_id"`
	UserSide    string    `json:"user_side"`
	OpponentID  string    `json:"opponent_id"`
	TimeControl string    `json:"time_control"`
	CreatedAt   time.Time `json:"created_at"`
	Opening     string    `json:"opening"`
	ECO         string    `json:"eco"`
	Result      string    `json:"result"`
	Status      string    `json:"status"`
	Moves       []string  `json:"moves"`
	MovesUCI    []string  `json:"moves_uci"`
	Analysis    []plyJSON `json:"analysis,omitempty"`
}

func number(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func toGameJSON(g db.Game) gameJSON {
	out := gameJSON{
		GameID:      g.GameID,
		UserSide:    g.UserSide,
		OpponentID:  g.OpponentID,
		TimeControl: g.TimeControl,
		CreatedAt:   g.CreatedAt(),
		Opening:     g.Opening,
		ECO:         g.ECO,
		Result:      g.Result,
		Status:      g.Status,
		Moves:       strings.Fields(g.Moves),
		MovesUCI:    strings.Fields(g.MovesUCI),
	}
	if g.Analysis {
		out.Analysis = make([]plyJSON, len(g.Evals))
		for i := range g.Evals {
			p := plyJSON{Eval: number(g.Evals[i])}
			if i < len(g.Mates) {
				p.Mate = number(g.Mates[i])
			}
			if i < len(g.JudgmentName) {
				p.Judgment = g.JudgmentName[i]
			}
			if i < len(g.JudgmentComment) {
				p.Comment = g.JudgmentComment[i]
			}
			out.Analysis[i] = p
		}
	}
	return out
}

func userParam(r *http.Request) string {
	return syncer.NormalizeID(chi.URLParam(r, "id"))
}

func sideParam(r *http.Request) string {
	return pick(r.URL.Query().Get("side"), []string{db.SideWhite, db.SideBlack})
}

func intParam(r *http.Request, key string, def, maxVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	if maxVal > 0 && n > maxVal {
		return maxVal
	}
	return n
}

func (h *Handler) handleAPIUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.sync.RetrieveUser(r.Context(), userParam(r))
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(u))
}

func (h *Handler) handleAPIGames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := userParam(r)
	if _, err := h.sync.RetrieveGames(ctx, id); err != nil {
		h.apiFail(w, r, err)
		return
	}

	filter := db.GameFilter{
		TimeControl: strings.TrimSpace(r.URL.Query().Get("time_control")),
		Limit:       intParam(r, "limit", 100, 1000),
		Offset:      intParam(r, "offset", 0, 0),
	}
	if s := r.URL.Query().Get("side"); s != "" {
		filter.Side = sideParam(r)
	}
	games, err := h.store.ListGames(ctx, id, filter)
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	total, err := h.store.CountGames(ctx, id)
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	out := make([]gameJSON, 0, len(games))
	for _, g := range games {
		out = append(out, toGameJSON(g))
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "games": out})
}

func (h *Handler) handleAPIOpenings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := userParam(r)
	side := sideParam(r)
	if _, err := h.sync.RetrieveGames(ctx, id); err != nil {
		h.apiFail(w, r, err)
		return
	}
	rows, err := h.store.OpeningResults(ctx, id, side)
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"side": side, "openings": stats.Openings(rows)})
}

func (h *Handler) handleAPITimeControls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := userParam(r)
	if _, err := h.sync.RetrieveGames(ctx, id); err != nil {
		h.apiFail(w, r, err)
		return
	}
	u, err := h.sync.RetrieveUser(ctx, id)
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	rows, err := h.store.TimeControlResults(ctx, id)
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"time_controls": stats.TimeControls(u, rows)})
}

func (h *Handler) handleAPITree(w http.ResponseWriter, r *http.Request) {
	games, err := h.sync.RetrieveGames(r.Context(), userParam(r))
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	plies := intParam(r, "plies", treePlies, 40)
	minCount := intParam(r, "min", treeMinCount, 0)
	writeJSON(w, http.StatusOK, stats.BuildOpeningTree(games, sideParam(r), plies, minCount))
}

func (h *Handler) handleAPIRatingHistory(w http.ResponseWriter, r *http.Request) {
	series, err := h.sync.RatingHistory(r.Context(), userParam(r))
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (h *Handler) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force")
	res, err := h.sync.Refresh(r.Context(), userParam(r), force == "1" || force == "true")
	if err != nil {
		h.apiFail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     toUserJSON(res.User),
		"fetched":  res.Fetched,
		"inserted": res.Inserted,
		"skipped":  res.Skipped,
	})
}

func (h *Handler) handleAPIDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Forget(r.Context(), userParam(r)); err != nil {
		h.apiFail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
