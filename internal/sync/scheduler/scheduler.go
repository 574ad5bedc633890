// Package scheduler decides when the queue reconciler runs: shortly after
// the network comes back, and periodically while it stays up.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/network"
	syncpkg "github.com/kimhsiao/campusync/internal/sync"
)

// Scheduler manages background reconciliation runs.
type Scheduler struct {
	reconciler syncpkg.Reconciler
	monitor    *network.Monitor
	logger     *logging.Logger

	debounce time.Duration
	interval time.Duration
	timeout  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu           sync.RWMutex
	ctx          context.Context
	isRunning    bool
	activeRuns   int
	timer        *time.Timer
	lastSyncTime time.Time
	lastResult   *syncpkg.Result
	unsubscribe  func()
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Debounce time.Duration // Delay after an online transition (default: 2 seconds)
	Interval time.Duration // How often to drain while online (default: 1 minute)
	Timeout  time.Duration // Upper bound for one run (default: 5 minutes)
	Logger   *logging.Logger
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Debounce: 2 * time.Second,
		Interval: 1 * time.Minute,
		Timeout:  5 * time.Minute,
	}
}

// NewScheduler creates a new Scheduler. Zero config fields take defaults.
func NewScheduler(reconciler syncpkg.Reconciler, monitor *network.Monitor, config *SchedulerConfig) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config == nil {
		config = defaults
	}
	s := &Scheduler{
		reconciler: reconciler,
		monitor:    monitor,
		logger:     config.Logger,
		debounce:   config.Debounce,
		interval:   config.Interval,
		timeout:    config.Timeout,
	}
	if s.debounce <= 0 {
		s.debounce = defaults.Debounce
	}
	if s.interval <= 0 {
		s.interval = defaults.Interval
	}
	if s.timeout <= 0 {
		s.timeout = defaults.Timeout
	}
	if s.logger == nil {
		s.logger = logging.Get()
	}
	s.logger = s.logger.With(logging.Fields{"component": "scheduler"})
	return s
}

// Start subscribes to online transitions and starts the periodic drain.
// If the network is already up, a debounced run is scheduled right away
// to pick up operations left over from a previous session.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ctx = ctx
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	unsubscribe := s.monitor.OnOnline(s.scheduleDebounced)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.wg.Add(1)
	go s.periodicSyncLoop(ctx, stopCh)

	if s.monitor.IsOnline() {
		s.scheduleDebounced()
	}

	s.logger.Info("Background sync scheduler started", logging.Fields{
		"debounce_ms": s.debounce.Milliseconds(),
		"interval_s":  s.interval.Seconds(),
	})
}

// Stop cancels any pending debounced run and waits for active runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	close(s.stopCh)
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.wg.Wait()

	s.logger.Info("Background sync scheduler stopped")
}

// scheduleDebounced (re)arms the debounce timer. A transition arriving
// while the timer is pending pushes the run back.
func (s *Scheduler) scheduleDebounced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.fireDebounced)
}

func (s *Scheduler) fireDebounced() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.runSync(ctx, "online")
}

// periodicSyncLoop drains the queue on every tick while online.
func (s *Scheduler) periodicSyncLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				continue
			}
			s.runSync(ctx, "periodic")
		}
	}
}

// runSync executes one reconciliation run and records its outcome.
func (s *Scheduler) runSync(ctx context.Context, reason string) syncpkg.Result {
	s.mu.Lock()
	s.activeRuns++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.activeRuns--
		s.mu.Unlock()
	}()

	syncCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := s.reconciler.SyncPendingOperations(syncCtx)
	if result.Skipped {
		s.logger.Debug("Sync skipped", logging.Fields{"reason": reason, "skip_reason": result.SkipReason})
		return result
	}

	s.mu.Lock()
	s.lastSyncTime = time.Now()
	r := result
	s.lastResult = &r
	s.mu.Unlock()

	s.logger.Debug("Scheduled sync finished", logging.Fields{
		"reason":    reason,
		"processed": result.Processed,
		"failed":    result.Failed,
	})
	return result
}

// TriggerSync starts a run in the background.
// Returns true if a run was started, false if one is already in progress.
func (s *Scheduler) TriggerSync(ctx context.Context) bool {
	s.mu.Lock()
	if s.activeRuns > 0 {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.runSync(ctx, "manual")
	}()
	return true
}

// SyncNow runs the reconciler and waits for the result.
func (s *Scheduler) SyncNow(ctx context.Context) syncpkg.Result {
	return s.runSync(ctx, "manual")
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning       bool            `json:"isRunning"`
	IsOnline        bool            `json:"isOnline"`
	SyncInProgress  bool            `json:"syncInProgress"`
	DebouncePending bool            `json:"debouncePending"`
	LastSyncTime    *time.Time      `json:"lastSyncTime,omitempty"`
	LastResult      *syncpkg.Result `json:"lastResult,omitempty"`
}

// Status returns the current status of the scheduler.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		IsRunning:       s.isRunning,
		IsOnline:        s.monitor.IsOnline(),
		SyncInProgress:  s.activeRuns > 0,
		DebouncePending: s.timer != nil,
	}
	if !s.lastSyncTime.IsZero() {
		t := s.lastSyncTime
		status.LastSyncTime = &t
	}
	if s.lastResult != nil {
		r := *s.lastResult
		status.LastResult = &r
	}
	return status
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
