package web

import (
	"bytes"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chessinsight/internal/db"
	"chessinsight/internal/stats"
	"chessinsight/internal/syncer"
)

const (
	recentGames  = 20
	treePlies    = 10
	treeMinCount = 2
)

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format("2006-01-02 15:04")
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data map[string]any) {
	if _, ok := data["Title"]; !ok {
		data["Title"] = ""
	}
	if _, ok := data["LichessID"]; !ok {
		data["LichessID"] = ""
	}
	var buf bytes.Buffer
	if err := h.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		h.log.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "index.html", map[string]any{
		"Placeholders": stats.PlaceholderLines(),
	})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	id := syncer.NormalizeID(r.URL.Query().Get("lichess_id"))
	if id == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/users/"+url.PathEscape(id), http.StatusSeeOther)
}

func pick(v string, allowed []string) string {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return allowed[0]
}

func (h *Handler) handleUserPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := syncer.NormalizeID(chi.URLParam(r, "id"))
	tab := pick(r.URL.Query().Get("tab"), []string{"ratings", "openings", "tree"})
	side := pick(r.URL.Query().Get("side"), []string{db.SideWhite, db.SideBlack})

	games, err := h.sync.RetrieveGames(ctx, id)
	if err != nil {
		h.pageFail(w, r, id, err)
		return
	}
	u, err := h.sync.RetrieveUser(ctx, id)
	if err != nil {
		h.pageFail(w, r, id, err)
		return
	}

	data := map[string]any{
		"Title":     u.Username,
		"LichessID": u.LichessID,
		"User":      u,
		"Summary":   stats.SummaryLines(u),
		"Tab":       tab,
		"Side":      side,
		"GameCount": len(games),
		"CreatedAt": formatDate(u.CreatedAt()),
		"UpdatedAt": formatDate(u.UpdatedAt()),
		"SyncedAt":  formatDate(u.GamesSyncedAt()),
	}
	recent := games
	if len(recent) > recentGames {
		recent = recent[:recentGames]
	}
	data["Recent"] = recent

	switch tab {
	case "ratings":
		rows, err := h.store.TimeControlResults(ctx, u.LichessID)
		if err != nil {
			h.pageFail(w, r, id, err)
			return
		}
		data["TimeControls"] = stats.TimeControls(u, rows)
	case "openings":
		rows, err := h.store.OpeningResults(ctx, u.LichessID, side)
		if err != nil {
			h.pageFail(w, r, id, err)
			return
		}
		data["Openings"] = stats.Openings(rows)
	case "tree":
		data["Tree"] = stats.BuildOpeningTree(games, side, treePlies, treeMinCount)
	}
	h.render(w, http.StatusOK, "user.html", data)
}

func (h *Handler) handleGamePage(w http.ResponseWriter, r *http.Request) {
	id := syncer.NormalizeID(chi.URLParam(r, "id"))
	g, err := h.store.GetGame(r.Context(), chi.URLParam(r, "gameID"))
	if err == nil && g.UserID != id {
		err = db.ErrNotFound
	}
	if err != nil {
		h.pageFail(w, r, id, err)
		return
	}
	h.render(w, http.StatusOK, "game.html", map[string]any{
		"Title":     "Game " + g.GameID,
		"LichessID": id,
		"View":      buildGameView(g),
	})
}
