package db

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.UpsertUser(context.Background(), User{LichessID: id, Username: id, UpdatedAtMS: 1}); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
}

func testGame(id, user, side, opening, result string, createdMS int64) Game {
	return Game{
		GameID:       id,
		UserID:       user,
		UserSide:     side,
		OpponentID:   "opp",
		TimeControl:  "blitz",
		CreatedAtMS:  createdMS,
		Opening:      opening,
		Result:       result,
		Moves:        "e4 e5",
		MovesUCI:     "e2e4 e7e5",
		Analysis:     true,
		Evals:        FloatList{18, math.NaN()},
		Mates:        FloatList{math.NaN(), 3},
		JudgmentName: StringList{"", "Blunder"},
		JudgmentComment: StringList{
			"", "Checkmate is now unavoidable. Nf3 was best.",
		},
	}
}

func TestUpsertUserKeepsSyncCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, User{LichessID: "bob", BlitzRating: 1500, UpdatedAtMS: 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	synced := time.UnixMilli(5000).UTC()
	if err := s.MarkGamesSynced(ctx, "bob", synced); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if err := s.UpsertUser(ctx, User{LichessID: "bob", BlitzRating: 1600, UpdatedAtMS: 20}); err != nil {
		t.Fatalf("update: %v", err)
	}

	u, err := s.GetUser(ctx, "bob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.BlitzRating != 1600 || u.UpdatedAtMS != 20 {
		t.Fatalf("profile not updated: %+v", u)
	}
	if !u.GamesSyncedAt().Equal(synced) {
		t.Fatalf("sync cursor lost: got %v want %v", u.GamesSyncedAt(), synced)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetUser(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
	if err := s.MarkGamesSynced(context.Background(), "nobody", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("mark synced: got %v want ErrNotFound", err)
	}
}

func TestImportGamesSkipsKnownIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "bob")

	first := []Game{
		testGame("g1", "bob", SideWhite, "Sicilian Defense", ResultWin, 1000),
		testGame("g2", "bob", SideBlack, "French Defense", ResultLoss, 2000),
	}
	n, err := s.ImportGames(ctx, "batch-1", first)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Fatalf("first import inserted %d want 2", n)
	}

	// re-importing an overlapping window must not duplicate g2.
	second := []Game{
		testGame("g2", "bob", SideBlack, "French Defense", ResultLoss, 2000),
		testGame("g3", "bob", SideWhite, "Sicilian Defense", ResultDraw, 3000),
	}
	n, err = s.ImportGames(ctx, "batch-2", second)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 1 {
		t.Fatalf("second import inserted %d want 1", n)
	}

	count, err := s.CountGames(ctx, "bob")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d want 3", count)
	}

	var staged int
	if err := s.db.GetContext(ctx, &staged, `SELECT COUNT(*) FROM games_staging`); err != nil {
		t.Fatalf("count staging: %v", err)
	}
	if staged != 0 {
		t.Fatalf("staging not cleaned up: %d rows", staged)
	}
}

func TestImportGamesRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "bob")

	bad := testGame("g2", "bob", "green", "", ResultWin, 2000)
	games := []Game{testGame("g1", "bob", SideWhite, "", ResultWin, 1000), bad}
	if _, err := s.ImportGames(ctx, "batch-1", games); err == nil {
		t.Fatalf("expected error for invalid side")
	}
	count, err := s.CountGames(ctx, "bob")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("partial import left %d games", count)
	}
}

func TestGameListsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "bob")

	if _, err := s.ImportGames(ctx, "b", []Game{testGame("g1", "bob", SideWhite, "Italian Game", ResultWin, 1000)}); err != nil {
		t.Fatalf("import: %v", err)
	}
	g, err := s.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if len(g.Evals) != 2 || g.Evals[0] != 18 || !math.IsNaN(g.Evals[1]) {
		t.Fatalf("evals = %v", g.Evals)
	}
	if len(g.Mates) != 2 || !math.IsNaN(g.Mates[0]) || g.Mates[1] != 3 {
		t.Fatalf("mates = %v", g.Mates)
	}
	if len(g.JudgmentName) != 2 || g.JudgmentName[1] != "Blunder" {
		t.Fatalf("judgments = %v", g.JudgmentName)
	}
	if !g.Analysis {
		t.Fatalf("analysis flag lost")
	}
	if _, err := s.GetGame(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestLatestGameTimeAndFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "bob")

	if _, ok, err := s.LatestGameTime(ctx, "bob"); err != nil || ok {
		t.Fatalf("empty user: ok=%v err=%v", ok, err)
	}

	games := []Game{
		testGame("g1", "bob", SideWhite, "A", ResultWin, 1000),
		testGame("g2", "bob", SideBlack, "B", ResultLoss, 3000),
		testGame("g3", "bob", SideWhite, "A", ResultDraw, 2000),
	}
	if _, err := s.ImportGames(ctx, "b", games); err != nil {
		t.Fatalf("import: %v", err)
	}

	latest, ok, err := s.LatestGameTime(ctx, "bob")
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if latest.UnixMilli() != 3000 {
		t.Fatalf("latest = %d want 3000", latest.UnixMilli())
	}

	white, err := s.ListGames(ctx, "bob", GameFilter{Side: SideWhite})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(white) != 2 || white[0].GameID != "g3" || white[1].GameID != "g1" {
		t.Fatalf("white games out of order: %+v", white)
	}

	page, err := s.ListGames(ctx, "bob", GameFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].GameID != "g3" {
		t.Fatalf("page = %+v", page)
	}
}

func TestOpeningResults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "bob")

	games := []Game{
		testGame("g1", "bob", SideWhite, "Italian Game", ResultWin, 1),
		testGame("g2", "bob", SideWhite, "Italian Game", ResultWin, 2),
		testGame("g3", "bob", SideWhite, "Italian Game", ResultLoss, 3),
		testGame("g4", "bob", SideBlack, "Caro-Kann Defense", ResultDraw, 4),
	}
	if _, err := s.ImportGames(ctx, "b", games); err != nil {
		t.Fatalf("import: %v", err)
	}

	rows, err := s.OpeningResults(ctx, "bob", SideWhite)
	if err != nil {
		t.Fatalf("opening results: %v", err)
	}
	want := []ResultCount{
		{Key: "Italian Game", Result: ResultLoss, Count: 1},
		{Key: "Italian Game", Result: ResultWin, Count: 2},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %+v", rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Fatalf("row %d = %+v want %+v", i, rows[i], want[i])
		}
	}
}

func TestDeleteUserRemovesGames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "bob")
	if _, err := s.ImportGames(ctx, "b", []Game{testGame("g1", "bob", SideWhite, "A", ResultWin, 1)}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := s.DeleteUser(ctx, "bob"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := s.CountGames(ctx, "bob"); n != 0 {
		t.Fatalf("games left after delete: %d", n)
	}
	if err := s.DeleteUser(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: got %v want ErrNotFound", err)
	}
}
