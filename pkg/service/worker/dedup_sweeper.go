package worker

import (
	"context"
	"time"

	"github.com/yata-dev/yata-server/pkg/domain/interfaces"
	"github.com/yata-dev/yata-server/pkg/utils/logging"
)

// DedupSweeper periodically purges expired webhook de-duplication records.
// Losing a dedup record early is safe (the reconciler write is idempotent),
// so the sweeper only has to keep the collection from growing unbounded.
//
// Architecture assumptions:
// - Single sweeper per deployment is sufficient; a second instance racing
//   the purge only deletes records the first would have deleted anyway.
type DedupSweeper struct {
	repo     interfaces.Repository
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDedupSweeper creates a sweeper that purges every interval
func NewDedupSweeper(repo interfaces.Repository, interval time.Duration) *DedupSweeper {
	return &DedupSweeper{
		repo:     repo,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background purge loop. It does not block.
func (w *DedupSweeper) Start(ctx context.Context) error {
	logging.Default().Info("webhook dedup sweeper starting", "interval", w.interval.String())
	go w.run(ctx)
	return nil
}

// Stop signals the sweeper to stop and waits for completion
func (w *DedupSweeper) Stop() {
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("webhook dedup sweeper stopped")
}

func (w *DedupSweeper) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *DedupSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	purged, err := w.repo.WebhookDedup().PurgeExpired(sweepCtx, time.Now())
	if err != nil {
		logging.From(ctx).Error("failed to purge expired dedup records", "error", err)
		return
	}

	if purged > 0 {
		logging.From(ctx).Info("purged expired dedup records", "count", purged)
	}
}
