// Package queue provides unit tests for the sync queue.
package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
	"github.com/kimhsiao/campusync/internal/store"
)

func newTestQueue(t *testing.T) *SyncQueue {
	t.Helper()
	s, err := store.Open(context.Background(), t.TempDir(), store.DefaultSchema(), logging.Discard())
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSyncQueue(s, WithLogger(logging.Discard()))
}

func createOp(entity, localID string) models.QueueOperation {
	return models.QueueOperation{
		Type:       models.OperationCreate,
		EntityName: entity,
		LocalID:    localID,
		Data:       models.Record{"id": localID, "name": "test"},
	}
}

// TestSyncQueueAdd tests enqueuing operations.
func TestSyncQueueAdd(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s, err := store.Open(ctx, t.TempDir(), store.DefaultSchema(), logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	q := NewSyncQueue(s, WithLogger(logging.Discard()), WithClock(func() time.Time { return fixed }))

	op := createOp("students", "local_1_a")
	op.Status = models.QueueStatusFailed
	op.Attempts = 7

	id, err := q.Add(ctx, op)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected id to be set")
	}

	got, err := q.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.QueueStatusPending {
		t.Errorf("Expected pending status, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("Expected 0 attempts, got %d", got.Attempts)
	}
	if !got.Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, fixed)
	}
	if got.Data["name"] != "test" {
		t.Errorf("Data not persisted: %v", got.Data)
	}
}

// TestSyncQueueListOrder tests entries come back in insertion order.
func TestSyncQueueListOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	var ids []string
	for _, local := range []string{"local_1_a", "local_2_b", "local_3_c"} {
		id, err := q.Add(ctx, createOp("students", local))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	ops, err := q.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(ops))
	}
	for i, op := range ops {
		if op.ID != ids[i] {
			t.Errorf("ops[%d].ID = %s, want %s", i, op.ID, ids[i])
		}
	}
}

// TestSyncQueueUpdate tests merge-patch semantics.
func TestSyncQueueUpdate(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	first, _ := q.Add(ctx, createOp("students", "local_1_a"))
	second, _ := q.Add(ctx, createOp("students", "local_2_b"))

	attempts := 2
	msg := "boom"
	if err := q.Update(ctx, first, Patch{Attempts: &attempts, LastError: &msg}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, _ := q.Get(ctx, first)
	if got.Attempts != 2 || got.LastError != "boom" {
		t.Errorf("Update not applied: %+v", got)
	}
	if got.Status != models.QueueStatusPending || got.EntityName != "students" {
		t.Errorf("Update clobbered untouched fields: %+v", got)
	}

	// Updating keeps the entry's position
	ops, _ := q.List(ctx)
	if ops[0].ID != first || ops[1].ID != second {
		t.Errorf("Update changed order: %s, %s", ops[0].ID, ops[1].ID)
	}
}

// TestSyncQueueUpdateUnknown tests updating a missing entry.
func TestSyncQueueUpdateUnknown(t *testing.T) {
	q := newTestQueue(t)

	status := models.QueueStatusFailed
	err := q.Update(context.Background(), "nope", Patch{Status: &status})
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestSyncQueueRecordFailure tests attempt bookkeeping.
func TestSyncQueueRecordFailure(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	id, _ := q.Add(ctx, createOp("fees", "local_1_a"))
	for i := 0; i < MaxAttempts; i++ {
		op, _ := q.Get(ctx, id)
		if err := q.RecordFailure(ctx, op, errors.New("server unavailable")); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	op, _ := q.Get(ctx, id)
	if op.Attempts != MaxAttempts {
		t.Errorf("Attempts = %d, want %d", op.Attempts, MaxAttempts)
	}
	if op.LastError != "server unavailable" || op.LastAttempt.IsZero() {
		t.Errorf("Failure not recorded: %+v", op)
	}
}

// TestSyncQueueRetryFailed tests resetting failed items.
func TestSyncQueueRetryFailed(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	a, _ := q.Add(ctx, createOp("students", "local_1_a"))
	b, _ := q.Add(ctx, createOp("students", "local_2_b"))
	_, _ = q.Add(ctx, createOp("students", "local_3_c"))

	attempts := MaxAttempts
	_ = q.Update(ctx, a, Patch{Attempts: &attempts})
	_ = q.MarkFailed(ctx, a)
	_ = q.MarkFailed(ctx, b)

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats != (Stats{Total: 3, Pending: 1, Failed: 2}) {
		t.Errorf("Stats before retry = %+v", stats)
	}

	n, err := q.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 reset, got %d", n)
	}

	op, _ := q.Get(ctx, a)
	if op.Status != models.QueueStatusPending || op.Attempts != 0 || op.LastError != "" {
		t.Errorf("Entry not reset: %+v", op)
	}

	stats, _ = q.Stats(ctx)
	if stats.Failed != 0 || stats.Pending != 3 {
		t.Errorf("Stats after retry = %+v", stats)
	}
}

// TestSyncQueueRemoveAndClear tests deleting entries.
func TestSyncQueueRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	a, _ := q.Add(ctx, createOp("students", "local_1_a"))
	_, _ = q.Add(ctx, createOp("students", "local_2_b"))

	if err := q.Remove(ctx, a); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := q.Get(ctx, a); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Removed entry still present: %v", err)
	}

	if err := q.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	ops, _ := q.List(ctx)
	if len(ops) != 0 {
		t.Errorf("Expected empty queue, got %d", len(ops))
	}
}

// TestSyncQueueConcurrentAdd tests concurrent enqueues are all persisted.
func TestSyncQueueConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Add(ctx, createOp("attendance", "local_1_x")); err != nil {
				t.Errorf("Add failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stats, _ := q.Stats(ctx)
	if stats.Total != 20 {
		t.Errorf("Expected 20 entries, got %d", stats.Total)
	}
}

// TestSyncQueueRebind tests entries follow a local id to its permanent id.
func TestSyncQueueRebind(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	create, _ := q.Add(ctx, createOp("students", "local_1_a"))
	update, _ := q.Add(ctx, models.QueueOperation{
		Type:       models.OperationUpdate,
		EntityName: "students",
		RecordID:   "local_1_a",
		LocalID:    "local_1_a",
		Data:       models.Record{"id": "local_1_a", "name": "renamed"},
	})
	other, _ := q.Add(ctx, createOp("students", "local_2_b"))

	// The CREATE itself is removed before rebinding in practice
	_ = q.Remove(ctx, create)

	n, err := q.Rebind(ctx, "local_1_a", "srv-1")
	if err != nil {
		t.Fatalf("Rebind failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 rebound entry, got %d", n)
	}

	op, _ := q.Get(ctx, update)
	if op.RecordID != "srv-1" || op.TargetID() != "srv-1" || op.Data["id"] != "srv-1" {
		t.Errorf("Entry not rebound: %+v", op)
	}
	if op.LocalID != "local_1_a" {
		t.Errorf("LocalID should be kept, got %q", op.LocalID)
	}

	untouched, _ := q.Get(ctx, other)
	if untouched.RecordID != "" || untouched.Data["id"] != "local_2_b" {
		t.Errorf("Unrelated entry changed: %+v", untouched)
	}
}
