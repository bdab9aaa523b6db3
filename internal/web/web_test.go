package web

import (
	"context"
	"encoding/json"
	"html"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chessinsight/internal/db"
	"chessinsight/internal/lichess"
	"chessinsight/internal/syncer"
)

// fakeSyncer serves whatever is already in the store and never talks to Lichess.
type fakeSyncer struct {
	store     *db.Store
	refreshes int
	forgotten []string
	err       error
}

func (f *fakeSyncer) RetrieveUser(ctx context.Context, id string) (db.User, error) {
	if f.err != nil {
		return db.User{}, f.err
	}
	if id == "" {
		return db.User{}, syncer.ErrEmptyID
	}
	u, err := f.store.GetUser(ctx, id)
	if err == db.ErrNotFound {
		return db.User{}, syncer.ErrUnknownUser
	}
	return u, err
}

func (f *fakeSyncer) RetrieveGames(ctx context.Context, id string) ([]db.Game, error) {
	if _, err := f.RetrieveUser(ctx, id); err != nil {
		return nil, err
	}
	return f.store.ListGames(ctx, id, db.GameFilter{})
}

func (f *fakeSyncer) Refresh(ctx context.Context, id string, force bool) (syncer.RefreshResult, error) {
	u, err := f.RetrieveUser(ctx, id)
	if err != nil {
		return syncer.RefreshResult{}, err
	}
	f.refreshes++
	return syncer.RefreshResult{User: u, Fetched: true, Inserted: 1, Skipped: 1}, nil
}

func (f *fakeSyncer) Forget(ctx context.Context, id string) error {
	f.forgotten = append(f.forgotten, id)
	return f.store.DeleteUser(ctx, id)
}

func (f *fakeSyncer) RatingHistory(context.Context, string) ([]lichess.RatingSeries, error) {
	return []lichess.RatingSeries{{Name: "Blitz", Points: []lichess.RatingPoint{
		{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Rating: 1500},
	}}}, nil
}

type testEnv struct {
	store *db.Store
	sync  *fakeSyncer
	srv   http.Handler
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "web.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.UpsertUser(ctx, db.User{
		LichessID:   "alice",
		Username:    "Alice",
		CreatedAtMS: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli(),
		BlitzRating: 1850, BlitzGames: 420,
		RapidRating: 1900, RapidGames: 12,
		UpdatedAtMS: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	nan := math.NaN()
	base := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	games := []db.Game{
		{GameID: "g1", UserID: "alice", UserSide: db.SideWhite, OpponentID: "bob", TimeControl: "blitz",
			CreatedAtMS: base, Opening: "Italian Game", ECO: "C50", Result: db.ResultWin, Status: "mate",
			Moves: "e4 e5 Nf3 Nc6", MovesUCI: "e2e4 e7e5 g1f3 b8c6"},
		{GameID: "g2", UserID: "alice", UserSide: db.SideWhite, OpponentID: "carol", TimeControl: "blitz",
			CreatedAtMS: base + 60_000, Opening: "Italian Game", ECO: "C50", Result: db.ResultLoss, Status: "resign",
			Moves: "e4 e5 Nf3 Nc6", MovesUCI: "e2e4 e7e5 g1f3 b8c6",
			Analysis: true, Evals: db.FloatList{20, 25, 18, 30}, Mates: db.FloatList{nan, nan, nan, nan},
			JudgmentName: db.StringList{"", "", "", ""}, JudgmentComment: db.StringList{"", "", "", ""}},
		{GameID: "g3", UserID: "alice", UserSide: db.SideBlack, OpponentID: "", TimeControl: "rapid",
			CreatedAtMS: base + 120_000, Opening: "Sicilian Defense", ECO: "B20", Result: db.ResultDraw, Status: "draw",
			Moves: "e4 c5", MovesUCI: "e2e4 c7c5"},
	}
	if _, err := store.ImportGames(ctx, "seed", games); err != nil {
		t.Fatalf("seed games: %v", err)
	}

	fs := &fakeSyncer{store: store}
	opts.Store = store
	opts.Syncer = fs
	h := NewHandler(opts)
	return &testEnv{store: store, sync: fs, srv: h.Routes()}
}

func (e *testEnv) do(t *testing.T, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func TestIndexShowsPlaceholders(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Classical rating : ____", "Bullet rating    : ____", `name="lichess_id"`} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestLookupRedirects(t *testing.T) {
	env := newTestEnv(t, Options{})
	tests := []struct {
		query string
		want  string
	}{
		{query: "?lichess_id=%20Alice%20", want: "/users/alice"},
		{query: "?lichess_id=", want: "/"},
		{query: "", want: "/"},
	}
	for _, tt := range tests {
		rec := env.do(t, http.MethodGet, "/lookup"+tt.query, nil)
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("%q: status = %d", tt.query, rec.Code)
		}
		if got := rec.Header().Get("Location"); got != tt.want {
			t.Errorf("%q: location = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestUserPageTabs(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/users/Alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Rating Blitz     : 1850 ( 420 games)",
		"Rating Classical :    0 (   0 games)",
		"Rating per time control",
		"/users/alice/games/g3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("ratings tab missing %q", want)
		}
	}

	rec = env.do(t, http.MethodGet, "/users/alice?tab=openings&side=white", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("openings status = %d", rec.Code)
	}
	body = rec.Body.String()
	if !strings.Contains(body, "Italian Game") || strings.Contains(body, "<th>Sicilian Defense</th>") {
		t.Errorf("openings tab should list only white openings")
	}

	rec = env.do(t, http.MethodGet, "/users/alice?tab=tree&side=white", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("tree status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `<span class="move">e4</span>`) {
		t.Errorf("tree tab missing first move")
	}
}

func TestUnknownUserPage(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/users/nobody", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `No Lichess user named &#34;nobody&#34;.`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestGamePage(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/users/alice/games/g2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	// html/template escapes "+" in text, so compare the unescaped page
	body := html.UnescapeString(rec.Body.String())
	for _, want := range []string{"Nf3", "+0.20", "Lost"} {
		if !strings.Contains(body, want) {
			t.Errorf("game page missing %q", want)
		}
	}

	rec = env.do(t, http.MethodGet, "/users/bob/games/g2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign game status = %d, want 404", rec.Code)
	}
}

func TestAPIGamesAndStats(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.do(t, http.MethodGet, "/api/users/alice/games?side=white&limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("games status = %d", rec.Code)
	}
	var games struct {
		Total int        `json:"total"`
		Games []gameJSON `json:"games"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&games); err != nil {
		t.Fatalf("decode games: %v", err)
	}
	if games.Total != 3 || len(games.Games) != 1 || games.Games[0].GameID != "g2" {
		t.Fatalf("games = %+v", games)
	}
	if len(games.Games[0].Analysis) != 4 || games.Games[0].MovesUCI[0] != "e2e4" {
		t.Errorf("analysis/moves not exported: %+v", games.Games[0])
	}

	rec = env.do(t, http.MethodGet, "/api/users/alice/openings?side=white", nil)
	var openings struct {
		Side     string `json:"side"`
		Openings []struct {
			Opening string `json:"opening"`
			Wins    int    `json:"wins"`
			Losses  int    `json:"losses"`
			Games   int    `json:"games"`
		} `json:"openings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&openings); err != nil {
		t.Fatalf("decode openings: %v", err)
	}
	if openings.Side != "white" || len(openings.Openings) != 1 {
		t.Fatalf("openings = %+v", openings)
	}
	if o := openings.Openings[0]; o.Opening != "Italian Game" || o.Wins != 1 || o.Losses != 1 || o.Games != 2 {
		t.Errorf("italian row = %+v", o)
	}

	rec = env.do(t, http.MethodGet, "/api/users/alice/timecontrols", nil)
	var tcs struct {
		TimeControls []struct {
			TimeControl string `json:"time_control"`
			Rating      int    `json:"rating"`
			Stored      int    `json:"stored"`
		} `json:"time_controls"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&tcs); err != nil {
		t.Fatalf("decode time controls: %v", err)
	}
	if len(tcs.TimeControls) != len(db.TimeControls) {
		t.Fatalf("time controls = %+v", tcs)
	}
	if blitz := tcs.TimeControls[1]; blitz.TimeControl != "blitz" || blitz.Rating != 1850 || blitz.Stored != 2 {
		t.Errorf("blitz row = %+v", blitz)
	}
}

func TestAPIUnknownUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/api/users/nobody", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body apiError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "unknown_user" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.sync.err = &lichess.APIError{Status: http.StatusInternalServerError, Path: "/api/user/alice"}
	rec := env.do(t, http.MethodGet, "/api/users/alice", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("upstream error status = %d, want 502", rec.Code)
	}

	env.sync.err = &lichess.APIError{Status: http.StatusTooManyRequests, Path: "/api/user/alice"}
	rec = env.do(t, http.MethodGet, "/api/users/alice", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("rate limited status = %d, want 503", rec.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{AdminToken: "s3cret"})

	rec := env.do(t, http.MethodPost, "/api/users/alice/refresh", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/users/alice/refresh?token=nope", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/users/alice/refresh?force=1", map[string]string{"Authorization": "Bearer s3cret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d body=%s", rec.Code, rec.Body.String())
	}
	if env.sync.refreshes != 1 {
		t.Errorf("refreshes = %d", env.sync.refreshes)
	}

	rec = env.do(t, http.MethodDelete, "/api/users/alice?token=s3cret", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if n, _ := env.store.CountGames(context.Background(), "alice"); n != 0 {
		t.Errorf("games left after delete: %d", n)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodPost, "/api/users/alice/refresh?token=x", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	t.Cleanup(rl.Stop)
	env := newTestEnv(t, Options{RateLimiter: rl})

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodGet, "/", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Errorf("missing Retry-After")
	}
	// health stays outside the limiter
	if rec := env.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}
}

func TestStaticAndHealth(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.do(t, http.MethodGet, "/static/style.css", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "table.bars") {
		t.Errorf("style.css status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestEventsStream(t *testing.T) {
	b := syncer.NewBroadcaster()
	env := newTestEnv(t, Options{Broadcaster: b})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		env.srv.ServeHTTP(rec, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "event: ping") {
		t.Errorf("missing initial ping: %q", rec.Body.String())
	}
}

func TestEvalText(t *testing.T) {
	tests := []struct {
		eval, mate float64
		want       string
	}{
		{eval: 20, mate: math.NaN(), want: "+0.20"},
		{eval: -135, mate: math.NaN(), want: "-1.35"},
		{eval: math.NaN(), mate: 3, want: "#3"},
		{eval: math.NaN(), mate: -2, want: "#-2"},
		{eval: math.NaN(), mate: math.NaN(), want: ""},
	}
	for _, tt := range tests {
		if got := evalText(tt.eval, tt.mate); got != tt.want {
			t.Errorf("evalText(%v, %v) = %q, want %q", tt.eval, tt.mate, got, tt.want)
		}
	}
}
