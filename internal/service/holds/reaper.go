package holds

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/metrics"
	"github.com/Domenick1991/flightbooking/internal/repository"
)

const reapBatch = 500

// Reaper periodically deletes expired holds so their seats can be claimed
// again.
type Reaper struct {
	ledger   *Ledger
	metrics  *metrics.Metrics
	interval time.Duration
	log      *zap.Logger
}

func NewReaper(ledger *Ledger, m *metrics.Metrics, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		ledger:   ledger,
		metrics:  m,
		interval: interval,
		log:      ledger.log.With(zap.String("component", "reaper")),
	}
}

// SweepExpired deletes every hold with expires_at <= now and returns how many
// were removed. Holds locked by an in-flight unit are left for the next sweep.
func (r *Reaper) SweepExpired(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.sweepBatch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < reapBatch {
			break
		}
	}

	if total > 0 {
		r.metrics.HoldsReaped(total)
		r.log.Info("expired holds reaped", zap.Int("count", total))
	}
	return total, nil
}

func (r *Reaper) sweepBatch(ctx context.Context) (int, error) {
	var reaped int
	err := repository.RetryOnConflict(ctx, r.ledger.store, func(ctx context.Context, tx repository.Tx) error {
		reaped = 0
		expired, err := tx.Holds().Expired(ctx, r.ledger.now(), reapBatch)
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		if err := tx.Holds().Delete(ctx, expired); err != nil {
			return err
		}
		if err := r.ledger.emitReleased(ctx, tx, "", expired, domain.ReleaseReasonExpired); err != nil {
			return err
		}
		reaped = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep expired holds: %w", err)
	}
	return reaped, nil
}

// Run sweeps on every tick until ctx is done. Failures are logged and the
// loop keeps going.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
