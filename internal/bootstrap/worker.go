package bootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/kafka"
	"github.com/Domenick1991/flightbooking/internal/replica"
	"github.com/Domenick1991/flightbooking/internal/service/outbox"
)

const purgeInterval = time.Hour

// RunWorkers runs the hold reaper, the outbox relay and its purge loop, and,
// when consumer is non-nil, the replica projector. It returns when ctx is done
// or a loop fails.
func RunWorkers(ctx context.Context, cfg config.WorkerConfig, app *App, dispatcher *outbox.Dispatcher, projector *replica.Projector, consumer *kafka.Consumer) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return app.Reaper.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return dispatcher.RunPurge(ctx, purgeInterval, cfg.OutboxRetention()) })
	if projector != nil && consumer != nil {
		g.Go(func() error { return projector.Run(ctx, consumer) })
	}

	app.Log.Info("workers started",
		zap.Duration("reaper_interval", cfg.ReaperInterval()),
		zap.Duration("dispatch_interval", cfg.DispatchInterval()),
		zap.Bool("replica", consumer != nil))
	return g.Wait()
}
