package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"chessinsight/internal/db"
	"chessinsight/internal/lichess"
	"chessinsight/internal/stats"
	"chessinsight/internal/syncer"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Syncer is the part of syncer.Service the handlers use.
type Syncer interface {
	RetrieveUser(ctx context.Context, id string) (db.User, error)
	RetrieveGames(ctx context.Context, id string) ([]db.Game, error)
	Refresh(ctx context.Context, id string, force bool) (syncer.RefreshResult, error)
	Forget(ctx context.Context, id string) error
	RatingHistory(ctx context.Context, id string) ([]lichess.RatingSeries, error)
}

type Store interface {
	GetGame(ctx context.Context, gameID string) (db.Game, error)
	ListGames(ctx context.Context, userID string, filter db.GameFilter) ([]db.Game, error)
	CountGames(ctx context.Context, userID string) (int, error)
	OpeningResults(ctx context.Context, userID, side string) ([]db.ResultCount, error)
	TimeControlResults(ctx context.Context, userID string) ([]db.ResultCount, error)
	Ping(ctx context.Context) error
}

type Options struct {
	Store       Store
	Syncer      Syncer
	Broadcaster *syncer.Broadcaster
	Logger      *zap.Logger
	// AdminToken guards refresh and delete; empty disables both.
	AdminToken string
	// Metrics serves /metrics when set.
	Metrics  http.Handler
	Observer RequestObserver
	// RateLimiter, when set, applies to everything but /static and /health.
	RateLimiter *RateLimiter
}

type Handler struct {
	store  Store
	sync   Syncer
	b      *syncer.Broadcaster
	log    *zap.Logger
	opts   Options
	tpl    *template.Template
	static fs.FS
}

func NewHandler(opts Options) *Handler {
	tpl := template.Must(template.New("base").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html"))
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:  opts.Store,
		sync:   opts.Syncer,
		b:      opts.Broadcaster,
		log:    log,
		opts:   opts,
		tpl:    tpl,
		static: staticSub,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log, h.opts.Observer))
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(h.static))))
	r.Get("/health", h.handleHealth)
	if h.opts.Metrics != nil {
		r.Handle("/metrics", h.opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if h.opts.RateLimiter != nil {
			r.Use(h.opts.RateLimiter.Middleware)
		}

		r.Get("/", h.handleIndex)
		r.Get("/lookup", h.handleLookup)
		r.Get("/users/{id}", h.handleUserPage)
		r.Get("/users/{id}/games/{gameID}", h.handleGamePage)

		r.Route("/api", func(r chi.Router) {
			r.Get("/events", syncer.SSEHandler(h.b))
			r.Get("/users/{id}", h.handleAPIUser)
			r.Get("/users/{id}/games", h.handleAPIGames)
			r.Get("/users/{id}/openings", h.handleAPIOpenings)
			r.Get("/users/{id}/timecontrols", h.handleAPITimeControls)
			r.Get("/users/{id}/tree", h.handleAPITree)
			r.Get("/users/{id}/rating-history", h.handleAPIRatingHistory)
			r.Post("/users/{id}/refresh", h.requireAdmin(h.handleAPIRefresh))
			r.Delete("/users/{id}", h.requireAdmin(h.handleAPIDelete))
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeAPIError(w, http.StatusServiceUnavailable, "db_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var templateFuncs = template.FuncMap{
	// width renders a bar width as a style attribute.
	"width": func(pct float64) template.CSS {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		return template.CSS(fmt.Sprintf("width: %.1f%%", pct))
	},
	"title":  stats.Title,
	"result": resultLabel,
	"played": func(g db.Game) string { return formatDate(g.CreatedAt()) },
	"pct":    func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
	// perGame is n as a percentage of total, for stacked bars inside one row.
	"perGame": func(n, total int) float64 {
		if total <= 0 {
			return 0
		}
		return float64(n) * 100 / float64(total)
	},
}
