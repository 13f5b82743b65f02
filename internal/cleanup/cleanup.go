// Package cleanup reaps bins that have been idle past their expiry.
package cleanup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hookbin/hookbin/internal/hub"
	"github.com/hookbin/hookbin/internal/store"
)

type Scheduler struct {
	store    store.Store
	hub      *hub.Hub
	expiry   time.Duration
	interval time.Duration
	log      *zap.Logger
}

func New(s store.Store, h *hub.Hub, expiry, interval time.Duration, log *zap.Logger) *Scheduler {
	return &Scheduler{store: s, hub: h, expiry: expiry, interval: interval, log: log}
}

// Run sweeps on every tick until ctx is cancelled. A failed sweep is logged
// and retried on the next tick; expiry is eventually consistent, never a hard
// deadline.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep deletes every bin idle past the expiry and tears down its live
// subscribers.
func (s *Scheduler) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.expiry)
	ids, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		s.log.Warn("failed to delete expired bins", zap.Error(err))
		return
	}

	for _, id := range ids {
		s.hub.CloseBin(id)
	}
	if len(ids) > 0 {
		s.log.Info("expired bins removed", zap.Int("count", len(ids)))
	}
}
