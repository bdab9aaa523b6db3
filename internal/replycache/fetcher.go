package replycache

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"chessinsight/internal/lichess"
)

// Source is the subset of the Lichess client that Fetcher wraps.
type Source interface {
	PublicData(ctx context.Context, id string) (lichess.User, error)
	RatingHistory(ctx context.Context, id string) ([]lichess.RatingSeries, error)
	ExportGames(ctx context.Context, id string, q lichess.ExportQuery) ([]lichess.Game, error)
}

// Fetcher serves profiles and rating histories from the cache when it can.
// Game exports are windowed by time and always go to the source.
type Fetcher struct {
	src   Source
	cache *Cache
	log   *zap.Logger
}

func NewFetcher(src Source, cache *Cache, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{src: src, cache: cache, log: log}
}

func userKey(id string) string    { return "user:" + strings.ToLower(id) }
func historyKey(id string) string { return "history:" + strings.ToLower(id) }

func (f *Fetcher) PublicData(ctx context.Context, id string) (lichess.User, error) {
	var u lichess.User
	if ok, err := f.cache.Get(ctx, userKey(id), &u); err != nil {
		f.log.Warn("reply cache read failed", zap.String("user", id), zap.Error(err))
	} else if ok {
		return u, nil
	}
	u, err := f.src.PublicData(ctx, id)
	if err != nil {
		return lichess.User{}, err
	}
	if err := f.cache.Put(ctx, userKey(id), u); err != nil {
		f.log.Warn("reply cache write failed", zap.String("user", id), zap.Error(err))
	}
	return u, nil
}

func (f *Fetcher) RatingHistory(ctx context.Context, id string) ([]lichess.RatingSeries, error) {
	var out []lichess.RatingSeries
	if ok, err := f.cache.Get(ctx, historyKey(id), &out); err != nil {
		f.log.Warn("reply cache read failed", zap.String("user", id), zap.Error(err))
	} else if ok {
		return out, nil
	}
	out, err := f.src.RatingHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.cache.Put(ctx, historyKey(id), out); err != nil {
		f.log.Warn("reply cache write failed", zap.String("user", id), zap.Error(err))
	}
	return out, nil
}

func (f *Fetcher) ExportGames(ctx context.Context, id string, q lichess.ExportQuery) ([]lichess.Game, error) {
	return f.src.ExportGames(ctx, id, q)
}

// Invalidate drops cached replies so the next read goes to Lichess.
func (f *Fetcher) Invalidate(ctx context.Context, id string) error {
	return f.cache.Forget(ctx, id)
}
