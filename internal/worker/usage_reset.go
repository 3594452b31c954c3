package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UsageResetter zeroes every user's monthly upload counter.
type UsageResetter interface {
	ResetMonthlyCounts(ctx context.Context) error
}

// UsageResetWorker watches for the month to roll over and resets all
// per-user upload counters when it does. Polling instead of a long timer
// keeps the worker correct across restarts and clock adjustments.
type UsageResetWorker struct {
	users  UsageResetter
	logger *zap.Logger

	pollInterval time.Duration
	now          func() time.Time

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastMonth time.Month
	lastYear  int
}

// NewUsageResetWorker creates a new usage reset worker
func NewUsageResetWorker(users UsageResetter, logger *zap.Logger) *UsageResetWorker {
	return &UsageResetWorker{
		users:        users,
		logger:       logger,
		pollInterval: time.Hour,
		now:          time.Now,
	}
}

// Name implements Worker.
func (w *UsageResetWorker) Name() string { return "usage-reset" }

// Start begins watching for month boundaries.
func (w *UsageResetWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("usage reset worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true

	now := w.now()
	w.lastYear, w.lastMonth = now.Year(), now.Month()

	w.wg.Add(1)
	go w.watchLoop()

	w.logger.Info("UsageResetWorker started",
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop stops the worker.
func (w *UsageResetWorker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *UsageResetWorker) watchLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.checkRollover()
		}
	}
}

// checkRollover resets counters once per calendar month.
func (w *UsageResetWorker) checkRollover() {
	now := w.now()

	w.mu.Lock()
	rolled := now.Year() != w.lastYear || now.Month() != w.lastMonth
	if rolled {
		w.lastYear, w.lastMonth = now.Year(), now.Month()
	}
	w.mu.Unlock()

	if !rolled {
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
	defer cancel()

	if err := w.users.ResetMonthlyCounts(ctx); err != nil {
		w.logger.Error("Failed to reset monthly usage counters", zap.Error(err))
		return
	}
	w.logger.Info("Monthly usage counters reset",
		zap.String("month", now.Format("2006-01")))
}
