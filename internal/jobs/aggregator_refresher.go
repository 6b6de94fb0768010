package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/forgo/progression/internal/service"
)

// AggregatorRefresher recomputes the wellness index on a fixed interval so
// readers of the cached value never see one older than the interval
type AggregatorRefresher struct {
	aggregator *service.DimensionAggregator
	scheduler  *DailyScheduler
	interval   time.Duration
	logger     *zap.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

// NewAggregatorRefresher creates a new refresher job. The scheduler supplies
// the maintained users.
func NewAggregatorRefresher(aggregator *service.DimensionAggregator, scheduler *DailyScheduler, interval time.Duration, logger *zap.Logger) *AggregatorRefresher {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AggregatorRefresher{
		aggregator: aggregator,
		scheduler:  scheduler,
		interval:   interval,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the refresh loop
func (r *AggregatorRefresher) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
	r.logger.Info("aggregator refresher started", zap.Duration("interval", r.interval))
}

// Stop gracefully stops the refresh loop
func (r *AggregatorRefresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("aggregator refresher stopped")
}

func (r *AggregatorRefresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Warn("wellness refresh failed", zap.Error(err))
			}
			cancel()
		case <-r.stopCh:
			return
		}
	}
}

// RunOnce recomputes the index of every maintained user
func (r *AggregatorRefresher) RunOnce(ctx context.Context) error {
	users, err := r.scheduler.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var errs []error
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.aggregator.Compute(ctx, userID); err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

// IsRunning returns whether the refresher is running
func (r *AggregatorRefresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}
