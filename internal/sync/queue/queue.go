// Package queue provides the persistent Sync Queue of mutations awaiting
// replay against the server.
//
// Entries live in the Local Store's syncQueue partition, so they survive
// restarts. Order is insertion order; there is no dependency graph between
// entries and each one carries everything needed to replay it.
package queue

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
	"github.com/kimhsiao/campusync/internal/store"
	"github.com/kimhsiao/campusync/internal/uuid"
)

// MaxAttempts is the retry ceiling: an entry that has been tried this many
// times is marked failed and no longer replayed automatically.
const MaxAttempts = 3

// Patch is a partial update of a queue entry. Nil fields are left alone.
type Patch struct {
	Status      *models.QueueStatus
	Attempts    *int
	LastError   *string
	LastAttempt *time.Time
}

// Stats summarises the queue.
type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
}

// SyncQueue manages pending sync operations with retry bookkeeping.
type SyncQueue struct {
	store  *store.Store
	logger *logging.Logger
	now    func() time.Time

	// mu serialises read-modify-write cycles on single entries.
	mu sync.Mutex
}

// Option configures a SyncQueue.
type Option func(*SyncQueue)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *SyncQueue) { q.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(q *SyncQueue) { q.logger = l }
}

// NewSyncQueue creates a queue over the store's syncQueue partition.
func NewSyncQueue(s *store.Store, opts ...Option) *SyncQueue {
	q := &SyncQueue{
		store:  s,
		logger: logging.Get(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(logging.Fields{"component": "sync_queue"})
	return q
}

// Add appends op to the queue. ID, Status, Attempts and Timestamp are
// assigned here; whatever the caller set is overwritten.
func (q *SyncQueue) Add(ctx context.Context, op models.QueueOperation) (string, error) {
	now := q.now()
	op.ID = uuid.NewQueueID(now)
	op.Status = models.QueueStatusPending
	op.Attempts = 0
	op.Timestamp = now
	op.LastError = ""
	op.LastAttempt = time.Time{}

	if err := store.PutDoc(ctx, q.store, store.SyncQueuePartition, op.ID, op); err != nil {
		return "", err
	}

	q.logger.Debug("Enqueued operation", logging.Fields{
		"id":     op.ID,
		"type":   op.Type,
		"entity": op.EntityName,
		"target": op.TargetID(),
	})
	return op.ID, nil
}

// List returns every entry in insertion order.
func (q *SyncQueue) List(ctx context.Context) ([]models.QueueOperation, error) {
	return store.ListDocs[models.QueueOperation](ctx, q.store, store.SyncQueuePartition)
}

// ListByStatus returns the entries with the given status in insertion order.
func (q *SyncQueue) ListByStatus(ctx context.Context, status models.QueueStatus) ([]models.QueueOperation, error) {
	return store.ListDocsByIndex[models.QueueOperation](ctx, q.store, store.SyncQueuePartition, "byStatus", string(status))
}

// Get returns the entry with the given id.
func (q *SyncQueue) Get(ctx context.Context, id string) (models.QueueOperation, error) {
	op, found, err := store.GetDoc[models.QueueOperation](ctx, q.store, store.SyncQueuePartition, id)
	if err != nil {
		return op, err
	}
	if !found {
		return op, apperrors.Newf(apperrors.ErrNotFound, "queue entry %s not found", id)
	}
	return op, nil
}

// Remove deletes an entry. Removing a missing id is not an error.
func (q *SyncQueue) Remove(ctx context.Context, id string) error {
	return q.store.Delete(ctx, store.SyncQueuePartition, id)
}

// Update applies patch to the entry with the given id.
func (q *SyncQueue) Update(ctx context.Context, id string, patch Patch) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	op, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if patch.Status != nil {
		op.Status = *patch.Status
	}
	if patch.Attempts != nil {
		op.Attempts = *patch.Attempts
	}
	if patch.LastError != nil {
		op.LastError = *patch.LastError
	}
	if patch.LastAttempt != nil {
		op.LastAttempt = *patch.LastAttempt
	}
	return store.PutDoc(ctx, q.store, store.SyncQueuePartition, id, op)
}

// MarkFailed flags an entry as failed so it is no longer replayed.
func (q *SyncQueue) MarkFailed(ctx context.Context, id string) error {
	status := models.QueueStatusFailed
	if err := q.Update(ctx, id, Patch{Status: &status}); err != nil {
		return err
	}
	q.logger.Warn("Operation marked failed", logging.Fields{"id": id, "max_attempts": MaxAttempts})
	return nil
}

// RecordFailure bumps the attempt counter and stores the error.
func (q *SyncQueue) RecordFailure(ctx context.Context, op models.QueueOperation, cause error) error {
	attempts := op.Attempts + 1
	msg := cause.Error()
	at := q.now()
	if err := q.Update(ctx, op.ID, Patch{Attempts: &attempts, LastError: &msg, LastAttempt: &at}); err != nil {
		return err
	}
	q.logger.Warn("Operation failed", logging.Fields{
		"id":       op.ID,
		"type":     op.Type,
		"entity":   op.EntityName,
		"attempts": attempts,
		"error":    msg,
	})
	return nil
}

// Rebind points every entry still addressing localID at the permanent
// recordID, once the server has accepted the CREATE for that record.
// Entries stay self-contained: after a restart they replay against the
// permanent id without needing the CREATE's outcome.
func (q *SyncQueue) Rebind(ctx context.Context, localID, recordID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.List(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, op := range ops {
		if op.LocalID != localID || (op.RecordID != "" && op.RecordID != localID) {
			continue
		}
		op.RecordID = recordID
		if op.Data != nil {
			op.Data = op.Data.Clone()
			op.Data[models.KeyID] = recordID
		}
		if err := store.PutDoc(ctx, q.store, store.SyncQueuePartition, op.ID, op); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		q.logger.Debug("Rebound queued operations", logging.Fields{
			"local_id":  localID,
			"record_id": recordID,
			"count":     count,
		})
	}
	return count, nil
}

// HasCreate reports whether a CREATE for localID is still queued, pending
// or failed.
func (q *SyncQueue) HasCreate(ctx context.Context, localID string) (bool, error) {
	if localID == "" {
		return false, nil
	}
	ops, err := q.List(ctx)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if op.Type == models.OperationCreate && op.LocalID == localID {
			return true, nil
		}
	}
	return false, nil
}

// Clear removes every entry.
func (q *SyncQueue) Clear(ctx context.Context) error {
	if err := q.store.Clear(ctx, store.SyncQueuePartition); err != nil {
		return err
	}
	q.logger.Info("Queue cleared")
	return nil
}

// RetryFailed resets all failed entries to pending with zero attempts and
// returns how many were reset.
func (q *SyncQueue) RetryFailed(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	failed, err := q.ListByStatus(ctx, models.QueueStatusFailed)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, op := range failed {
		op.Status = models.QueueStatusPending
		op.Attempts = 0
		op.LastError = ""
		if err := store.PutDoc(ctx, q.store, store.SyncQueuePartition, op.ID, op); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		q.logger.Info("Reset failed operations for retry", logging.Fields{"count": count})
	}
	return count, nil
}

// Stats returns queue statistics.
func (q *SyncQueue) Stats(ctx context.Context) (Stats, error) {
	ops, err := q.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(ops)}
	for _, op := range ops {
		switch op.Status {
		case models.QueueStatusPending:
			stats.Pending++
		case models.QueueStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}
