// Package syncer keeps stored Lichess profiles and games up to date.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chessinsight/internal/db"
	"chessinsight/internal/lichess"
)

var (
	ErrUnknownUser = errors.New("unknown lichess user")
	ErrEmptyID     = errors.New("empty lichess id")
)

type Fetcher interface {
	PublicData(ctx context.Context, id string) (lichess.User, error)
	RatingHistory(ctx context.Context, id string) ([]lichess.RatingSeries, error)
	ExportGames(ctx context.Context, id string, q lichess.ExportQuery) ([]lichess.Game, error)
}

// invalidator is implemented by fetchers that cache replies.
type invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

type Store interface {
	GetUser(ctx context.Context, lichessID string) (db.User, error)
	ListUsers(ctx context.Context) ([]db.User, error)
	UpsertUser(ctx context.Context, u db.User) error
	MarkGamesSynced(ctx context.Context, lichessID string, at time.Time) error
	DeleteUser(ctx context.Context, lichessID string) error
	ImportGames(ctx context.Context, batchID string, games []db.Game) (int, error)
	ListGames(ctx context.Context, userID string, filter db.GameFilter) ([]db.Game, error)
	LatestGameTime(ctx context.Context, userID string) (time.Time, bool, error)
}

// Recorder receives sync outcomes, usually backed by prometheus.
type Recorder interface {
	SyncFinished(kind, outcome string)
	GamesImported(inserted, skipped int)
}

type Thresholds struct {
	// UserStale is how old a stored profile may get before it is refetched.
	UserStale time.Duration
	// GamesStale is how long after the last games sync a lookup triggers a new one.
	GamesStale time.Duration
	// InitialWindow is how far back the first games fetch for a user reaches.
	InitialWindow time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		UserStale:     10 * 24 * time.Hour,
		GamesStale:    5 * time.Minute,
		InitialWindow: 10 * 24 * time.Hour,
	}
}

type Options struct {
	Thresholds  Thresholds
	Broadcaster *Broadcaster
	Recorder    Recorder
	Logger      *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	store   Store
	fetcher Fetcher
	th      Thresholds
	b       *Broadcaster
	rec     Recorder
	log     *zap.Logger
	now     func() time.Time
	locks   keyedMutex
}

func NewService(store Store, fetcher Fetcher, opts Options) *Service {
	s := &Service{
		store:   store,
		fetcher: fetcher,
		th:      opts.Thresholds,
		b:       opts.Broadcaster,
		rec:     opts.Recorder,
		log:     opts.Logger,
		now:     opts.Now,
	}
	def := DefaultThresholds()
	if s.th.UserStale <= 0 {
		s.th.UserStale = def.UserStale
	}
	if s.th.GamesStale <= 0 {
		s.th.GamesStale = def.GamesStale
	}
	if s.th.InitialWindow <= 0 {
		s.th.InitialWindow = def.InitialWindow
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NormalizeID trims and lower-cases a Lichess id.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// RetrieveUser returns the stored profile, fetching it from Lichess when it is
// missing or older than UserStale.
func (s *Service) RetrieveUser(ctx context.Context, id string) (db.User, error) {
	id = NormalizeID(id)
	if id == "" {
		return db.User{}, ErrEmptyID
	}
	unlock, err := s.locks.lock(ctx, id)
	if err != nil {
		return db.User{}, err
	}
	defer unlock()
	return s.retrieveUser(ctx, id, false)
}

// RetrieveGames returns every stored game of the user after bringing them up
// to date when the last sync is older than GamesStale.
func (s *Service) RetrieveGames(ctx context.Context, id string) ([]db.Game, error) {
	id = NormalizeID(id)
	if id == "" {
		return nil, ErrEmptyID
	}
	unlock, err := s.locks.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	u, err := s.retrieveUser(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if _, err := s.syncGames(ctx, u, false); err != nil {
		return nil, err
	}
	return s.store.ListGames(ctx, id, db.GameFilter{})
}

// RefreshResult describes one Refresh call.
type RefreshResult struct {
	User     db.User
	Fetched  bool
	Inserted int
	Skipped  int
}

// Refresh brings profile and games up to date. With force the staleness
// thresholds are ignored.
func (s *Service) Refresh(ctx context.Context, id string, force bool) (RefreshResult, error) {
	id = NormalizeID(id)
	if id == "" {
		return RefreshResult{}, ErrEmptyID
	}
	unlock, err := s.locks.lock(ctx, id)
	if err != nil {
		return RefreshResult{}, err
	}
	defer unlock()

	u, err := s.retrieveUser(ctx, id, force)
	if err != nil {
		return RefreshResult{}, err
	}
	res, err := s.syncGames(ctx, u, force)
	if err != nil {
		return RefreshResult{}, err
	}
	res.User = u
	return res, nil
}

// Forget deletes the user and their games.
func (s *Service) Forget(ctx context.Context, id string) error {
	id = NormalizeID(id)
	unlock, err := s.locks.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// invalidate drops cached Lichess replies for id so the next fetch is live.
func (s *Service) invalidate(ctx context.Context, id string) {
	inv, ok := s.fetcher.(invalidator)
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, id); err != nil {
		s.log.Warn("reply cache invalidate failed", zap.String("user", id), zap.Error(err))
	}
}

// RatingHistory passes through to Lichess.
func (s *Service) RatingHistory(ctx context.Context, id string) ([]lichess.RatingSeries, error) {
	id = NormalizeID(id)
	if id == "" {
		return nil, ErrEmptyID
	}
	out, err := s.fetcher.RatingHistory(ctx, id)
	if errors.Is(err, lichess.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownUser)
	}
	return out, err
}

func (s *Service) retrieveUser(ctx context.Context, id string, force bool) (db.User, error) {
	now := s.now()
	stored, err := s.store.GetUser(ctx, id)
	switch {
	case errors.Is(err, db.ErrNotFound):
	case err != nil:
		return db.User{}, err
	case !force && now.Sub(stored.UpdatedAt()) < s.th.UserStale:
		s.rec.SyncFinished("user", "fresh")
		return stored, nil
	}
	isNew := err != nil

	if force {
		s.invalidate(ctx, id)
	}
	remote, err := s.fetcher.PublicData(ctx, id)
	if err != nil {
		s.rec.SyncFinished("user", "failed")
		if errors.Is(err, lichess.ErrNotFound) {
			return db.User{}, fmt.Errorf("%s: %w", id, ErrUnknownUser)
		}
		return db.User{}, fmt.Errorf("fetch profile %s: %w", id, err)
	}
	u := MapUser(remote, now)
	if u.LichessID == "" {
		u.LichessID = id
	}
	if u.LichessID != id {
		return db.User{}, fmt.Errorf("fetch profile %s: lichess returned %q", id, u.LichessID)
	}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		s.rec.SyncFinished("user", "failed")
		return db.User{}, fmt.Errorf("store profile %s: %w", id, err)
	}
	u.GamesSyncedAtMS = stored.GamesSyncedAtMS

	outcome := "updated"
	if isNew {
		outcome = "created"
	}
	s.rec.SyncFinished("user", outcome)
	s.log.Info("profile synced", zap.String("user", id), zap.String("outcome", outcome))
	return u, nil
}

// syncGames fetches games newer than the stored ones, or the initial window
// when nothing is stored, unless the last sync is recent.
func (s *Service) syncGames(ctx context.Context, u db.User, force bool) (RefreshResult, error) {
	id := u.LichessID
	now := s.now()

	latest, hasGames, err := s.store.LatestGameTime(ctx, id)
	if err != nil {
		return RefreshResult{}, err
	}
	cursor := u.GamesSyncedAt()
	if cursor.IsZero() && hasGames {
		cursor = latest
	}
	if !force && !cursor.IsZero() && now.Sub(cursor) < s.th.GamesStale {
		s.rec.SyncFinished("games", "fresh")
		return RefreshResult{}, nil
	}

	since := now.Add(-s.th.InitialWindow)
	if hasGames {
		since = latest.Add(time.Millisecond)
	}
	remote, err := s.fetcher.ExportGames(ctx, id, lichess.ExportQuery{
		Since:   since,
		Until:   now,
		Rated:   true,
		Evals:   true,
		Opening: true,
	})
	if err != nil {
		s.rec.SyncFinished("games", "failed")
		if errors.Is(err, lichess.ErrNotFound) {
			return RefreshResult{}, fmt.Errorf("%s: %w", id, ErrUnknownUser)
		}
		return RefreshResult{}, fmt.Errorf("export games %s: %w", id, err)
	}

	games := make([]db.Game, 0, len(remote))
	skipped := 0
	for _, g := range remote {
		mapped, err := MapGame(id, g)
		if err != nil {
			skipped++
			s.log.Warn("skipping game", zap.String("user", id), zap.String("game", g.ID), zap.Error(err))
			continue
		}
		games = append(games, mapped)
	}

	batchID := uuid.New().String()
	inserted, err := s.store.ImportGames(ctx, batchID, games)
	if err != nil {
		s.rec.SyncFinished("games", "failed")
		return RefreshResult{}, fmt.Errorf("import games %s: %w", id, err)
	}
	if err := s.store.MarkGamesSynced(ctx, id, now); err != nil {
		s.rec.SyncFinished("games", "failed")
		return RefreshResult{}, fmt.Errorf("mark synced %s: %w", id, err)
	}

	s.rec.SyncFinished("games", "synced")
	s.rec.GamesImported(inserted, skipped+len(games)-inserted)
	s.log.Info("games synced",
		zap.String("user", id),
		zap.String("batch", batchID),
		zap.Time("since", since),
		zap.Int("fetched", len(remote)),
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
	)
	s.b.Publish(Event{UserID: id, Inserted: inserted, At: now})
	return RefreshResult{Fetched: true, Inserted: inserted, Skipped: skipped}, nil
}

type nopRecorder struct{}

func (nopRecorder) SyncFinished(string, string) {}
func (nopRecorder) GamesImported(int, int)      {}

// keyedMutex serializes work per user id. Waiting honours ctx.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
