package offline

import (
	"context"
	"fmt"

	"github.com/kimhsiao/campusync/internal/api"
	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
	syncpkg "github.com/kimhsiao/campusync/internal/sync"
	"github.com/kimhsiao/campusync/internal/sync/queue"
	"github.com/kimhsiao/campusync/internal/uuid"
)

var _ syncpkg.Reconciler = (*Client)(nil)

// SyncPendingOperations drains the sync queue in insertion order. Only one
// run happens at a time; a call made while another run is active, or while
// offline, returns a skipped result immediately.
//
// Operations that have already been tried MaxAttempts times are marked
// failed and left for manual retry. A failing operation has its attempt
// counter bumped and the drain moves on to the next one. Operations
// enqueued during the run are picked up before it ends.
func (c *Client) SyncPendingOperations(ctx context.Context) syncpkg.Result {
	start := c.now()
	result := syncpkg.Result{StartedAt: start}

	if !c.syncing.CompareAndSwap(false, true) {
		result.Skipped = true
		result.SkipReason = syncpkg.SkipInProgress
		return result
	}
	defer c.syncing.Store(false)

	if !c.online() {
		result.Skipped = true
		result.SkipReason = syncpkg.SkipOffline
		return result
	}

	c.emit(syncpkg.Event{Type: syncpkg.EventSyncStarted})
	c.logger.Info("Starting queue sync")

	seen := make(map[string]bool)
	for {
		ops, err := c.queue.ListByStatus(ctx, models.QueueStatusPending)
		if err != nil {
			c.logger.ErrorWithCode("Failed to read sync queue", string(apperrors.CodeOf(err)), err)
			break
		}

		progressed := false
		for _, op := range ops {
			if seen[op.ID] {
				continue
			}
			seen[op.ID] = true
			progressed = true

			if ctx.Err() != nil || !c.online() {
				break
			}
			c.processOperation(ctx, op, &result)
		}
		if !progressed || ctx.Err() != nil || !c.online() {
			break
		}
	}

	result.Duration = c.now().Sub(start)
	c.finishRun(ctx, result)
	return result
}

func (c *Client) processOperation(ctx context.Context, op models.QueueOperation, result *syncpkg.Result) {
	// Re-read: an earlier CREATE in this run may have rebound the entry.
	fresh, err := c.queue.Get(ctx, op.ID)
	if err != nil {
		// Removed concurrently
		return
	}
	op = fresh

	if op.Attempts >= queue.MaxAttempts {
		if err := c.queue.MarkFailed(ctx, op.ID); err != nil {
			c.logger.Error("Failed to mark operation failed", err, logging.Fields{"id": op.ID})
		}
		exhausted := apperrors.Newf(apperrors.ErrQueueExhausted, "%s %s/%s gave up after %d attempts: %s",
			op.Type, op.EntityName, op.TargetID(), op.Attempts, op.LastError)
		c.logger.ErrorWithCode("Operation needs manual retry", string(apperrors.ErrQueueExhausted), exhausted)
		result.MarkedFailed++
		c.metrics.ObserveSyncOperation(string(op.Type), "exhausted")
		return
	}

	result.Processed++
	if err := c.replay(ctx, op); err != nil {
		result.Failed++
		c.metrics.ObserveSyncOperation(string(op.Type), "failed")
		if qerr := c.queue.RecordFailure(ctx, op, err); qerr != nil {
			c.logger.Error("Failed to record operation failure", qerr, logging.Fields{"id": op.ID})
		}
		return
	}

	result.Succeeded++
	c.metrics.ObserveSyncOperation(string(op.Type), "succeeded")
	if err := c.queue.Remove(ctx, op.ID); err != nil {
		c.logger.Error("Failed to remove replayed operation", err, logging.Fields{"id": op.ID})
	}
}

func (c *Client) replay(ctx context.Context, op models.QueueOperation) error {
	switch op.Type {
	case models.OperationCreate:
		return c.replayCreate(ctx, op)
	case models.OperationUpdate:
		return c.replayUpdate(ctx, op)
	case models.OperationDelete:
		return c.replayDelete(ctx, op)
	default:
		return apperrors.Newf(apperrors.ErrInvalid, "unknown operation type %q", op.Type)
	}
}

func (c *Client) replayCreate(ctx context.Context, op models.QueueOperation) error {
	server, err := c.remote.Create(ctx, op.EntityName, outgoing(op.Data))
	if err != nil {
		return err
	}

	partition, mapped := c.entities.Partition(op.EntityName)
	if !mapped {
		return nil
	}

	localID := op.LocalID
	if localID == "" {
		localID = op.Data.ID()
	}
	local := c.store.GetByID(ctx, partition, localID)
	if local == nil {
		local = &models.CachedRecord{Record: op.Data, Meta: models.Unflatten(op.Data).Meta}
	}

	synced, err := c.acceptCreate(ctx, partition, *local, server)
	if err != nil {
		return err
	}
	if synced.ID() != localID {
		if _, err := c.queue.Rebind(ctx, localID, synced.ID()); err != nil {
			c.logger.Error("Failed to rebind queued operations", err, logging.Fields{
				"local_id":  localID,
				"record_id": synced.ID(),
			})
		}
	}
	return nil
}

func (c *Client) replayUpdate(ctx context.Context, op models.QueueOperation) error {
	id := op.TargetID()
	if id == "" || uuid.IsLocalID(id) {
		return apperrors.Newf(apperrors.ErrInvalid, "record %q has not been created on the server yet", id)
	}

	server, err := c.remote.Update(ctx, op.EntityName, id, outgoing(op.Data))
	if err != nil {
		return err
	}

	partition, mapped := c.entities.Partition(op.EntityName)
	if !mapped {
		return nil
	}

	local := c.store.GetByID(ctx, partition, id)
	if local == nil {
		cached := models.Unflatten(op.Data)
		local = &cached
	}
	local.Record[models.KeyID] = id
	_, err = c.acceptUpdate(ctx, partition, *local, server)
	return err
}

func (c *Client) replayDelete(ctx context.Context, op models.QueueOperation) error {
	id := op.TargetID()
	partition, mapped := c.entities.Partition(op.EntityName)

	if id == "" || uuid.IsLocalID(id) {
		// The tombstone stays while a CREATE of the record is still queued.
		localID := op.LocalID
		if localID == "" {
			localID = id
		}
		queued, err := c.queue.HasCreate(ctx, localID)
		if err != nil {
			return err
		}
		if queued {
			return apperrors.Newf(apperrors.ErrInvalid, "record %q has not been created on the server yet", localID)
		}
		// Never reached the server: purging locally is enough.
	} else if err := c.remote.Delete(ctx, op.EntityName, id); err != nil && !api.IsNotFound(err) {
		return err
	}

	if !mapped {
		return nil
	}
	for _, key := range []string{id, op.LocalID} {
		if key == "" {
			continue
		}
		if err := c.store.Delete(ctx, partition, key); err != nil {
			return fmt.Errorf("purge %s/%s: %w", partition, key, err)
		}
	}
	return nil
}

func (c *Client) finishRun(ctx context.Context, result syncpkg.Result) {
	finished := result.StartedAt.Add(result.Duration)

	c.mu.Lock()
	c.lastSync = finished
	r := result
	c.lastResult = &r
	c.mu.Unlock()

	c.metrics.ObserveSyncRun(result.Failed, result.Duration, finished)
	c.refreshQueueGauge(ctx)

	c.logger.Info("Queue sync completed", logging.Fields{
		"processed":     result.Processed,
		"succeeded":     result.Succeeded,
		"failed":        result.Failed,
		"marked_failed": result.MarkedFailed,
		"duration_ms":   result.Duration.Milliseconds(),
	})
	c.emit(syncpkg.Event{Type: syncpkg.EventSyncCompleted, Result: &r})
}
