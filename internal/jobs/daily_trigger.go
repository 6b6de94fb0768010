package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DailyTrigger periodically checks whether a daily run is due for each
// maintained user and catches up missed days
type DailyTrigger struct {
	scheduler  *DailyScheduler
	interval   time.Duration
	startDelay time.Duration
	timeout    time.Duration
	logger     *zap.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

// DailyTriggerConfig holds configuration for the daily trigger
type DailyTriggerConfig struct {
	Scheduler *DailyScheduler
	Interval  time.Duration
	// StartDelay postpones the first check after Start
	StartDelay time.Duration
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewDailyTrigger creates a new daily trigger job
func NewDailyTrigger(cfg DailyTriggerConfig) *DailyTrigger {
	t := &DailyTrigger{
		scheduler:  cfg.Scheduler,
		interval:   cfg.Interval,
		startDelay: cfg.StartDelay,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
		stopCh:     make(chan struct{}),
	}
	if t.interval <= 0 {
		t.interval = 15 * time.Minute
	}
	if t.timeout <= 0 {
		t.timeout = 10 * time.Minute
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// Start begins the trigger loop
func (t *DailyTrigger) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run()
	t.logger.Info("daily trigger started", zap.Duration("interval", t.interval))
}

// Stop gracefully stops the trigger loop and waits for an in-flight check
func (t *DailyTrigger) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	close(t.stopCh)
	t.wg.Wait()
	t.logger.Info("daily trigger stopped")
}

func (t *DailyTrigger) run() {
	defer t.wg.Done()

	if t.startDelay > 0 {
		select {
		case <-time.After(t.startDelay):
		case <-t.stopCh:
			return
		}
	}
	t.check()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.check()
		case <-t.stopCh:
			return
		}
	}
}

// check runs one catch-up pass, cancelled when the trigger stops
func (t *DailyTrigger) check() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-t.stopCh:
			cancel()
		case <-done:
		}
	}()

	if err := t.RunOnce(ctx); err != nil {
		t.logger.Error("daily trigger check failed", zap.Error(err))
	}
}

// RunOnce catches up every maintained user (for testing or manual trigger)
func (t *DailyTrigger) RunOnce(ctx context.Context) error {
	reports, err := t.scheduler.CatchUpAll(ctx)
	runs := 0
	for _, rs := range reports {
		for _, r := range rs {
			if !r.IsEmpty() {
				runs++
			}
		}
	}
	if runs > 0 {
		t.logger.Info("daily trigger ran pipelines",
			zap.Int("users", len(reports)),
			zap.Int("runs", runs))
	}
	return err
}

// IsRunning returns whether the trigger is running
func (t *DailyTrigger) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
