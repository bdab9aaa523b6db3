package replycache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"chessinsight/internal/lichess"
)

type countingSource struct {
	users   int
	history int
	games   int
}

func (s *countingSource) PublicData(_ context.Context, id string) (lichess.User, error) {
	s.users++
	return lichess.User{ID: id, Username: "Bob", Perfs: map[string]lichess.Perf{"blitz": {Rating: 1700, Games: 9}}}, nil
}

func (s *countingSource) RatingHistory(_ context.Context, id string) ([]lichess.RatingSeries, error) {
	s.history++
	return []lichess.RatingSeries{{
		Name:   "Blitz",
		Points: []lichess.RatingPoint{{Date: time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC), Rating: 1650}},
	}}, nil
}

func (s *countingSource) ExportGames(_ context.Context, _ string, _ lichess.ExportQuery) ([]lichess.Game, error) {
	s.games++
	return nil, nil
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, ttl), mr
}

func TestCacheGetPut(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	var got map[string]int
	ok, err := c.Get(ctx, "k", &got)
	if err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}
	if err := c.Put(ctx, "k", map[string]int{"a": 1}); err != nil {
		t.Fatalf("put: %v", err)
	}
	ok, err = c.Get(ctx, "k", &got)
	if err != nil || !ok || got["a"] != 1 {
		t.Fatalf("get: ok=%v err=%v got=%v", ok, err, got)
	}

	mr.FastForward(2 * time.Minute)
	got = nil
	if ok, _ := c.Get(ctx, "k", &got); ok {
		t.Fatalf("entry survived its ttl")
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	if err := c.Put(ctx, "k", 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	var v int
	if ok, err := c.Get(ctx, "k", &v); ok || err != nil {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if c := New(nil, time.Minute); c != nil {
		t.Fatalf("New(nil) should return nil")
	}
}

func TestFetcherCachesProfileAndHistory(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	src := &countingSource{}
	f := NewFetcher(src, c, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u, err := f.PublicData(ctx, "Bob")
		if err != nil {
			t.Fatalf("public data: %v", err)
		}
		if u.Perf("blitz").Rating != 1700 {
			t.Fatalf("user = %+v", u)
		}
		h, err := f.RatingHistory(ctx, "bob")
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(h) != 1 || h[0].Points[0].Rating != 1650 || h[0].Points[0].Date.Month() != time.March {
			t.Fatalf("history = %+v", h)
		}
		if _, err := f.ExportGames(ctx, "bob", lichess.ExportQuery{}); err != nil {
			t.Fatalf("export: %v", err)
		}
	}
	if src.users != 1 || src.history != 1 {
		t.Fatalf("source calls users=%d history=%d want 1 each", src.users, src.history)
	}
	if src.games != 3 {
		t.Fatalf("exports must not be cached, got %d calls", src.games)
	}

	if err := f.Invalidate(ctx, "bob"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := f.PublicData(ctx, "bob"); err != nil {
		t.Fatalf("public data: %v", err)
	}
	if src.users != 2 {
		t.Fatalf("invalidate did not drop the profile, calls=%d", src.users)
	}
}
