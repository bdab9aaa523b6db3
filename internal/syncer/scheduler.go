package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler periodically refreshes every stored user.
type Scheduler struct {
	svc            *Service
	log            *zap.Logger
	maxConcurrency int
}

func NewScheduler(svc *Service, log *zap.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{svc: svc, log: log, maxConcurrency: maxConcurrency}
}

// Start runs a cycle immediately and then every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("sync scheduler started",
		zap.Duration("interval", interval),
		zap.Int("max_concurrency", s.maxConcurrency),
	)

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("sync cycle failed", zap.Error(err))
	}
}

// RunOnce refreshes all stored users with bounded concurrency. Per-user
// failures are logged and do not stop the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	users, err := s.svc.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, u := range users {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := s.svc.Refresh(ctx, id, false); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				s.log.Error("user refresh failed", zap.String("user", id), zap.Error(err))
			}
		}(u.LichessID)
	}
	wg.Wait()

	s.log.Info("sync cycle finished",
		zap.Int("users", len(users)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
