// Package scheduler tests for background sync scheduling functionality.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/network"
	syncpkg "github.com/kimhsiao/campusync/internal/sync"
)

// =====================================================
// Test Helpers
// =====================================================

// fakeReconciler counts runs and can hold a run open until released.
type fakeReconciler struct {
	calls   atomic.Int32
	mu      sync.Mutex
	block   chan struct{}
	started chan struct{}
}

func (f *fakeReconciler) SyncPendingOperations(ctx context.Context) syncpkg.Result {
	f.calls.Add(1)
	f.mu.Lock()
	block, started := f.block, f.started
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return syncpkg.Result{Processed: 1, Succeeded: 1, StartedAt: time.Now()}
}

func createTestScheduler(t *testing.T, online bool, config *SchedulerConfig) (*fakeReconciler, *network.Monitor, *Scheduler) {
	t.Helper()
	rec := &fakeReconciler{}
	monitor := network.NewMonitor(online, logging.Discard())
	if config == nil {
		config = &SchedulerConfig{
			Debounce: 30 * time.Millisecond,
			Interval: time.Hour,
		}
	}
	config.Logger = logging.Discard()
	s := NewScheduler(rec, monitor, config)
	t.Cleanup(s.Stop)
	return rec, monitor, s
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// =====================================================
// Configuration Tests
// =====================================================

// TestDefaultSchedulerConfig verifies default configuration.
func TestDefaultSchedulerConfig(t *testing.T) {
	config := DefaultSchedulerConfig()

	if config.Debounce != 2*time.Second {
		t.Errorf("Debounce = %v, want 2s", config.Debounce)
	}
	if config.Interval != time.Minute {
		t.Errorf("Interval = %v, want 1m", config.Interval)
	}
	if config.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", config.Timeout)
	}
}

// TestNewScheduler_nilConfig verifies default config is used.
func TestNewScheduler_nilConfig(t *testing.T) {
	s := NewScheduler(&fakeReconciler{}, network.NewMonitor(true, logging.Discard()), nil)

	if s.debounce != 2*time.Second {
		t.Errorf("debounce = %v, want 2s (default)", s.debounce)
	}
	if s.interval != time.Minute {
		t.Errorf("interval = %v, want 1m (default)", s.interval)
	}
}

// TestNewScheduler_partialConfig verifies zero fields fall back to defaults.
func TestNewScheduler_partialConfig(t *testing.T) {
	s := NewScheduler(&fakeReconciler{}, network.NewMonitor(true, logging.Discard()),
		&SchedulerConfig{Debounce: time.Second})

	if s.debounce != time.Second {
		t.Errorf("debounce = %v, want 1s", s.debounce)
	}
	if s.interval != time.Minute {
		t.Errorf("interval = %v, want 1m (default)", s.interval)
	}
}

// =====================================================
// Start/Stop Tests
// =====================================================

// TestStartStop verifies start and stop are idempotent.
func TestStartStop(t *testing.T) {
	_, monitor, s := createTestScheduler(t, false, nil)

	s.Start(context.Background())
	s.Start(context.Background())
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}
	if monitor.Subscribers() == 0 {
		t.Error("Start() did not subscribe to the monitor")
	}

	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
}

// TestStartStop_restart verifies a stopped scheduler can be started again.
func TestStartStop_restart(t *testing.T) {
	rec, _, s := createTestScheduler(t, true, &SchedulerConfig{
		Debounce: time.Hour,
		Interval: 20 * time.Millisecond,
	})

	s.Start(context.Background())
	if !waitFor(t, time.Second, func() bool { return rec.calls.Load() >= 1 }) {
		t.Fatal("no periodic run before first Stop")
	}
	s.Stop()

	before := rec.calls.Load()
	s.Start(context.Background())
	if !s.IsRunning() {
		t.Fatal("IsRunning() = false after restart")
	}
	if !waitFor(t, time.Second, func() bool { return rec.calls.Load() > before }) {
		t.Fatal("periodic loop did not resume after restart")
	}

	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after second Stop")
	}
}

// TestStart_onlineSchedulesInitialRun verifies leftovers drain after startup.
func TestStart_onlineSchedulesInitialRun(t *testing.T) {
	rec, _, s := createTestScheduler(t, true, nil)

	s.Start(context.Background())

	if !waitFor(t, time.Second, func() bool { return rec.calls.Load() == 1 }) {
		t.Fatalf("calls = %d, want 1", rec.calls.Load())
	}
}

// =====================================================
// Debounce Tests
// =====================================================

// TestOnlineTransition_debounced verifies the run waits for the debounce window.
func TestOnlineTransition_debounced(t *testing.T) {
	rec, monitor, s := createTestScheduler(t, false, &SchedulerConfig{
		Debounce: 100 * time.Millisecond,
		Interval: time.Hour,
	})
	s.Start(context.Background())

	monitor.HandleOnline()
	if !s.Status().DebouncePending {
		t.Error("DebouncePending = false right after transition")
	}
	time.Sleep(30 * time.Millisecond)
	if got := rec.calls.Load(); got != 0 {
		t.Errorf("calls = %d before debounce elapsed, want 0", got)
	}

	if !waitFor(t, time.Second, func() bool { return rec.calls.Load() == 1 }) {
		t.Fatalf("calls = %d, want 1", rec.calls.Load())
	}
}

// TestOnlineTransition_resetsTimer verifies flapping collapses into one run.
func TestOnlineTransition_resetsTimer(t *testing.T) {
	rec, monitor, s := createTestScheduler(t, false, &SchedulerConfig{
		Debounce: 80 * time.Millisecond,
		Interval: time.Hour,
	})
	s.Start(context.Background())

	for i := 0; i < 3; i++ {
		monitor.HandleOnline()
		time.Sleep(20 * time.Millisecond)
		monitor.HandleOffline()
	}
	monitor.HandleOnline()

	if !waitFor(t, time.Second, func() bool { return rec.calls.Load() >= 1 }) {
		t.Fatal("no run after transitions settled")
	}
	time.Sleep(150 * time.Millisecond)
	if got := rec.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

// TestStop_cancelsPendingDebounce verifies no run fires after Stop.
func TestStop_cancelsPendingDebounce(t *testing.T) {
	rec, monitor, s := createTestScheduler(t, false, nil)
	s.Start(context.Background())

	monitor.HandleOnline()
	s.Stop()
	time.Sleep(100 * time.Millisecond)

	if got := rec.calls.Load(); got != 0 {
		t.Errorf("calls = %d after Stop, want 0", got)
	}
	if monitor.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after Stop, want 0", monitor.Subscribers())
	}
}

// =====================================================
// Periodic Tests
// =====================================================

// TestPeriodic_runsWhileOnline verifies the periodic drain.
func TestPeriodic_runsWhileOnline(t *testing.T) {
	rec, _, s := createTestScheduler(t, true, &SchedulerConfig{
		Debounce: time.Hour,
		Interval: 20 * time.Millisecond,
	})
	s.Start(context.Background())

	if !waitFor(t, time.Second, func() bool { return rec.calls.Load() >= 2 }) {
		t.Fatalf("calls = %d, want at least 2", rec.calls.Load())
	}
}

// TestPeriodic_idleWhileOffline verifies nothing runs offline.
func TestPeriodic_idleWhileOffline(t *testing.T) {
	rec, _, s := createTestScheduler(t, false, &SchedulerConfig{
		Debounce: time.Hour,
		Interval: 20 * time.Millisecond,
	})
	s.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	if got := rec.calls.Load(); got != 0 {
		t.Errorf("calls = %d while offline, want 0", got)
	}
}

// =====================================================
// Manual Trigger Tests
// =====================================================

// TestSyncNow verifies a synchronous run records its result.
func TestSyncNow(t *testing.T) {
	rec, _, s := createTestScheduler(t, true, nil)

	result := s.SyncNow(context.Background())

	if result.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", result.Succeeded)
	}
	if rec.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", rec.calls.Load())
	}
	status := s.Status()
	if status.LastSyncTime == nil || status.LastResult == nil {
		t.Fatal("Status() did not record the run")
	}
	if status.SyncInProgress {
		t.Error("SyncInProgress = true after SyncNow returned")
	}
}

// TestTriggerSync_rejectsWhileRunning verifies only one run at a time.
func TestTriggerSync_rejectsWhileRunning(t *testing.T) {
	rec, _, s := createTestScheduler(t, true, nil)
	rec.block = make(chan struct{})
	rec.started = make(chan struct{}, 1)

	if !s.TriggerSync(context.Background()) {
		t.Fatal("TriggerSync() = false on idle scheduler")
	}
	<-rec.started

	if !s.Status().SyncInProgress {
		t.Error("SyncInProgress = false during run")
	}
	if s.TriggerSync(context.Background()) {
		t.Error("TriggerSync() = true while a run is active")
	}

	close(rec.block)
	if !waitFor(t, time.Second, func() bool { return !s.Status().SyncInProgress }) {
		t.Fatal("run did not finish")
	}
	if rec.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", rec.calls.Load())
	}
}

// TestSyncInProgress_overlappingRuns verifies one run finishing does not
// hide another that is still active.
func TestSyncInProgress_overlappingRuns(t *testing.T) {
	rec, _, s := createTestScheduler(t, true, nil)
	rec.block = make(chan struct{})
	rec.started = make(chan struct{}, 2)

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			s.SyncNow(context.Background())
			done <- struct{}{}
		}()
	}
	<-rec.started
	<-rec.started

	rec.block <- struct{}{}
	<-done

	if !s.Status().SyncInProgress {
		t.Error("SyncInProgress = false while a run is still active")
	}
	if s.TriggerSync(context.Background()) {
		t.Error("TriggerSync() = true while a run is still active")
	}

	rec.block <- struct{}{}
	<-done
	if s.Status().SyncInProgress {
		t.Error("SyncInProgress = true after both runs finished")
	}
}

// skippingReconciler always reports a skipped run.
type skippingReconciler struct{}

func (skippingReconciler) SyncPendingOperations(context.Context) syncpkg.Result {
	return syncpkg.Result{Skipped: true, SkipReason: syncpkg.SkipOffline}
}

// TestSyncNow_skippedNotRecorded verifies skipped runs leave status alone.
func TestSyncNow_skippedNotRecorded(t *testing.T) {
	s := NewScheduler(skippingReconciler{}, network.NewMonitor(false, logging.Discard()),
		&SchedulerConfig{Logger: logging.Discard()})

	result := s.SyncNow(context.Background())

	if !result.Skipped {
		t.Error("Skipped = false")
	}
	if s.Status().LastSyncTime != nil {
		t.Error("LastSyncTime set for a skipped run")
	}
}
