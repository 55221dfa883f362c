// Package matview keeps the violation/schedule join view current.
package matview

import (
	"context"
	"log"
	"time"
)

// Store rebuilds the join view; the batch size bounds per-statement work.
type Store interface {
	RefreshJoinView(ctx context.Context, batchSize int) (int, error)
}

// Refresher rebuilds the join view on demand or on a fixed schedule.
type Refresher struct {
	store     Store
	batchSize int
}

func New(store Store, batchSize int) *Refresher {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Refresher{store: store, batchSize: batchSize}
}

// Refresh rebuilds the view once and returns the row count.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.store.RefreshJoinView(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	log.Printf("✅ join view refreshed: %d row(s) in %s", n, time.Since(start).Round(time.Millisecond))
	return n, nil
}

// Run refreshes immediately, then on every interval tick until the
// context is canceled. A failed refresh is logged and retried on the
// next tick, never fatal.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	if _, err := r.Refresh(ctx); err != nil {
		log.Printf("❌ join view refresh: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				log.Printf("❌ join view refresh: %v", err)
			}
		}
	}
}
