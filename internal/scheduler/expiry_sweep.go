package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jack/golang-shortlink-service/internal/service"
)

// ExpirySweeper periodically deactivates past-expiry shortcode records.
// Sweeps are idempotent and only ever flip the active flag; records are
// never deleted.
type ExpirySweeper struct {
	store    service.RecordStore
	cache    service.RecordCache
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewExpirySweeper(
	store service.RecordStore,
	cache service.RecordCache,
	interval time.Duration,
	logger *zap.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		store:    store,
		cache:    cache,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep process
func (s *ExpirySweeper) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("expiry sweeper started", zap.Duration("interval", s.interval))
}

// Stop gracefully stops the sweeper, running one final sweep first.
func (s *ExpirySweeper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("expiry sweeper stopped")
}

func (s *ExpirySweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepNow(); err != nil {
				s.logger.Error("expiry sweep failed", zap.Error(err))
			}
		case <-s.stopCh:
			if _, err := s.SweepNow(); err != nil {
				s.logger.Error("final expiry sweep failed", zap.Error(err))
			}
			return
		}
	}
}

// SweepNow deactivates all past-expiry records and returns how many were
// flipped. Safe to call on any interval or on demand.
func (s *ExpirySweeper) SweepNow() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	codes, err := s.store.DeactivateExpired(ctx)
	if err != nil {
		return 0, err
	}

	if len(codes) == 0 {
		return 0, nil
	}

	// Swept records must drop out of the cache too, or cached entries would
	// keep serving a link the store already deactivated.
	if s.cache != nil {
		for _, code := range codes {
			if err := s.cache.DeleteRecord(ctx, code); err != nil {
				s.logger.Warn("cache invalidation after sweep failed",
					zap.String("code", code), zap.Error(err))
			}
		}
	}

	s.logger.Info("expiry sweep completed", zap.Int("deactivated", len(codes)))
	return len(codes), nil
}
