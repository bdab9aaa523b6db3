package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"chessinsight/internal/config"
	"chessinsight/internal/db"
	"chessinsight/internal/lichess"
	"chessinsight/internal/metrics"
	"chessinsight/internal/replycache"
	"chessinsight/internal/syncer"
	"chessinsight/internal/web"
)

type App struct {
	cfg   config.Config
	log   *zap.Logger
	store *db.Store
	cache *replycache.Cache

	svc       *syncer.Service
	scheduler *syncer.Scheduler
	limiter   *web.RateLimiter
	router    http.Handler

	adminToken   string
	tokenCreated bool

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := db.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	adminToken, created := cfg.AdminToken, false
	if adminToken == "" {
		adminToken, created, err = loadOrInitAdminToken(cfg.DataDir)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	token := cfg.Lichess.Token
	if token == "" && cfg.Lichess.TokenFile != "" {
		token, err = lichess.LoadToken(cfg.Lichess.TokenFile)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)

	client := lichess.NewClient(lichess.Options{
		BaseURL:           cfg.Lichess.BaseURL,
		Token:             token,
		HTTPClient:        &http.Client{Timeout: cfg.Lichess.Timeout},
		RequestsPerSecond: cfg.Lichess.RequestsPerSecond,
		Logger:            log.Named("lichess"),
		Observer:          m,
	})

	cache, err := replycache.Dial(ctx, cfg.Redis.URL, cfg.Redis.TTL)
	if err != nil {
		// the dashboard works without the cache, only slower
		log.Warn("redis unavailable, reply cache disabled", zap.Error(err))
		cache = nil
	}
	fetcher := replycache.NewFetcher(client, cache, log.Named("replycache"))

	b := syncer.NewBroadcaster()
	svc := syncer.NewService(store, fetcher, syncer.Options{
		Thresholds: syncer.Thresholds{
			UserStale:     cfg.Sync.UserStale,
			GamesStale:    cfg.Sync.GamesStale,
			InitialWindow: cfg.Sync.InitialWindow,
		},
		Broadcaster: b,
		Recorder:    m,
		Logger:      log.Named("syncer"),
	})

	var limiter *web.RateLimiter
	if cfg.RateLimit.PerMinute > 0 {
		limiter = web.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	}

	h := web.NewHandler(web.Options{
		Store:       store,
		Syncer:      svc,
		Broadcaster: b,
		Logger:      log.Named("web"),
		AdminToken:  adminToken,
		Metrics:     metrics.Handler(reg),
		Observer:    m,
		RateLimiter: limiter,
	})

	return &App{
		cfg:          cfg,
		log:          log,
		store:        store,
		cache:        cache,
		svc:          svc,
		scheduler:    syncer.NewScheduler(svc, log.Named("scheduler"), cfg.Sync.MaxConcurrent),
		limiter:      limiter,
		router:       h.Routes(),
		adminToken:   adminToken,
		tokenCreated: created,
	}, nil
}

// Start launches the background refresh loop. Close stops it.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.scheduler.Start(ctx, a.cfg.Sync.Interval)
	}()
}

func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) Service() *syncer.Service {
	return a.svc
}

func (a *App) AdminToken() string {
	return a.adminToken
}

// AdminTokenCreated reports whether New wrote a fresh token file.
func (a *App) AdminTokenCreated() bool {
	return a.tokenCreated
}

func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		if a.limiter != nil {
			a.limiter.Stop()
		}
		if err := a.cache.Close(); err != nil {
			a.log.Warn("close redis", zap.Error(err))
		}
		if err := a.store.Close(); err != nil {
			a.log.Warn("close store", zap.Error(err))
		}
	})
}
