package app

import (
	"context"

	"floodgate.io/floodgate/internal/pkg/logger"
)

// Start starts the background services: the stream worker's drain loop and
// the aggregator's tick loop. Both run until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	a.bgWG.Add(2)

	go func() { //nolint:naked-goroutine // lifecycle loop, joined in Shutdown
		defer a.bgWG.Done()
		a.worker.Run(ctx)
	}()

	go func() { //nolint:naked-goroutine // lifecycle loop, joined in Shutdown
		defer a.bgWG.Done()
		a.aggregator.Run(ctx, a.hub, a.rejections)
	}()

	logger.Info("Background services started")
	return nil
}

// Shutdown gracefully shuts down all application components. The caller
// must have cancelled the Start context first so the background loops exit.
func (a *Application) Shutdown() {
	// Ingress has stopped: flush whatever the batcher still holds.
	if a.batcher != nil {
		a.batcher.Close()
	}

	a.bgWG.Wait()

	if a.hub != nil {
		a.hub.Close()
	}
	if a.pools != nil {
		a.pools.Shutdown()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}

	logger.Info("Application shut down")
}
