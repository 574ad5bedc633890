package offline

import (
	"context"

	"github.com/kimhsiao/campusync/internal/api"
	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
	"github.com/kimhsiao/campusync/internal/uuid"
)

// Write statuses.
const (
	StatusQueued = "queued"
	StatusSynced = "synced"
)

// Keys added by WriteResult.Flatten.
const (
	KeyQueued = "_queued"
	KeyStatus = "_status"
)

// WriteResult is the outcome of Post or Put.
type WriteResult struct {
	Record models.CachedRecord
	Queued bool
	Status string
}

// Flatten returns the record in the underscore-key shape, tagged with
// _queued and _status.
func (r WriteResult) Flatten() models.Record {
	out := r.Record.Flatten()
	out[KeyStatus] = r.Status
	if r.Queued {
		out[KeyQueued] = true
	}
	return out
}

// DeleteResult is the outcome of Delete. Success means accepted, not
// necessarily confirmed by the server.
type DeleteResult struct {
	Success bool `json:"success"`
	Queued  bool `json:"_queued,omitempty"`
}

// Post creates a record optimistically. The record is stored locally under
// a temporary id first; when the server accepts it the temporary record is
// replaced by the server's. Any network or HTTP failure queues a CREATE
// and returns the local record. Only a local write failure is an error.
func (c *Client) Post(ctx context.Context, entity string, data models.Record) (WriteResult, error) {
	partition, mapped := c.entities.Partition(entity)
	if !mapped {
		return c.passThroughCreate(ctx, entity, data)
	}

	now := c.now()
	localID := uuid.NewLocalID(now)
	rec := models.StripBookkeeping(data)
	rec[models.KeyID] = localID
	local := models.CachedRecord{
		Record: rec,
		Meta: models.SyncMeta{
			LocalID:   localID,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := c.store.Put(ctx, partition, local); err != nil {
		c.metrics.ObserveRequest("post", "error")
		return WriteResult{}, err
	}

	if !c.online() {
		return c.enqueueWrite(ctx, "post", models.OperationCreate, entity, "", local)
	}

	server, err := c.remote.Create(ctx, entity, outgoing(rec))
	if err != nil {
		c.logWriteFailure("post", entity, localID, err)
		return c.enqueueWrite(ctx, "post", models.OperationCreate, entity, "", local)
	}

	// Finish the local swap even if the caller cancels now.
	ctx = context.WithoutCancel(ctx)
	synced, err := c.acceptCreate(ctx, partition, local, server)
	if err != nil {
		c.metrics.ObserveRequest("post", "error")
		return WriteResult{}, err
	}
	c.metrics.ObserveRequest("post", StatusSynced)
	return WriteResult{Record: synced, Status: StatusSynced}, nil
}

// Put updates a record optimistically, merging into the cached copy when
// there is one.
func (c *Client) Put(ctx context.Context, entity, id string, data models.Record) (WriteResult, error) {
	partition, mapped := c.entities.Partition(entity)
	if !mapped {
		return c.passThroughUpdate(ctx, entity, id, data)
	}

	now := c.now()
	patch := models.StripBookkeeping(data)
	var local models.CachedRecord
	if existing := c.store.GetByID(ctx, partition, id); existing != nil {
		local = *existing
		local.Record = existing.Record.Merge(patch)
		local.Meta.Version++
	} else {
		local = models.CachedRecord{
			Record: patch,
			Meta:   models.SyncMeta{Version: 1, CreatedAt: now},
		}
	}
	local.Record[models.KeyID] = id
	local.Meta.PendingUpdate = true
	local.Meta.UpdatedAt = now

	if err := c.store.Put(ctx, partition, local); err != nil {
		c.metrics.ObserveRequest("put", "error")
		return WriteResult{}, err
	}

	// A temporary id is unknown to the server until its CREATE replays.
	if !c.online() || uuid.IsLocalID(id) {
		return c.enqueueWrite(ctx, "put", models.OperationUpdate, entity, id, local)
	}

	server, err := c.remote.Update(ctx, entity, id, outgoing(local.Record))
	if err != nil {
		c.logWriteFailure("put", entity, id, err)
		return c.enqueueWrite(ctx, "put", models.OperationUpdate, entity, id, local)
	}

	ctx = context.WithoutCancel(ctx)
	synced, err := c.acceptUpdate(ctx, partition, local, server)
	if err != nil {
		c.metrics.ObserveRequest("put", "error")
		return WriteResult{}, err
	}
	c.metrics.ObserveRequest("put", StatusSynced)
	return WriteResult{Record: synced, Status: StatusSynced}, nil
}

// Delete tombstones a cached record and removes it once the server
// confirms. The record must be cached: a missing record fails with
// ErrNotCached before any network or queue activity.
func (c *Client) Delete(ctx context.Context, entity, id string) (DeleteResult, error) {
	partition, mapped := c.entities.Partition(entity)
	if !mapped {
		return c.passThroughDelete(ctx, entity, id)
	}

	existing := c.store.GetByID(ctx, partition, id)
	if existing == nil {
		c.metrics.ObserveRequest("delete", "not_cached")
		return DeleteResult{}, apperrors.Newf(apperrors.ErrNotCached, "%s/%s is not cached locally", entity, id)
	}

	now := c.now()
	local := *existing
	local.Meta.Deleted = true
	local.Meta.DeletedAt = now
	local.Meta.Version++
	if err := c.store.Put(ctx, partition, local); err != nil {
		c.metrics.ObserveRequest("delete", "error")
		return DeleteResult{}, err
	}

	if !c.online() || uuid.IsLocalID(id) {
		return c.enqueueDelete(ctx, entity, id, local)
	}

	if err := c.remote.Delete(ctx, entity, id); err != nil && !api.IsNotFound(err) {
		c.logWriteFailure("delete", entity, id, err)
		return c.enqueueDelete(ctx, entity, id, local)
	}

	ctx = context.WithoutCancel(ctx)
	if err := c.store.Delete(ctx, partition, id); err != nil {
		c.metrics.ObserveRequest("delete", "error")
		return DeleteResult{}, err
	}
	c.metrics.ObserveRequest("delete", StatusSynced)
	return DeleteResult{Success: true}, nil
}

// acceptCreate replaces the temporary record with the server's.
func (c *Client) acceptCreate(ctx context.Context, partition string, local models.CachedRecord, server models.Record) (models.CachedRecord, error) {
	if server.ID() == "" {
		// Nothing to swap to; keep the local copy and call it synced.
		local.Meta.Synced = true
		local.Meta.UpdatedAt = c.now()
		return local, c.store.Put(ctx, partition, local)
	}

	synced := syncedRecord(server, &local, c.now())
	// A delete queued behind the create still applies.
	synced.Meta.Deleted = local.Meta.Deleted
	synced.Meta.DeletedAt = local.Meta.DeletedAt
	if err := c.store.Delete(ctx, partition, local.ID()); err != nil {
		return models.CachedRecord{}, err
	}
	if err := c.store.Put(ctx, partition, synced); err != nil {
		return models.CachedRecord{}, err
	}
	return synced, nil
}

// acceptUpdate stores the server's version of an updated record.
func (c *Client) acceptUpdate(ctx context.Context, partition string, local models.CachedRecord, server models.Record) (models.CachedRecord, error) {
	if server == nil {
		server = local.Record
	}
	if server.ID() == "" {
		server = server.Clone()
		server[models.KeyID] = local.ID()
	}
	synced := syncedRecord(server, &local, c.now())
	if synced.ID() != local.ID() {
		if err := c.store.Delete(ctx, partition, local.ID()); err != nil {
			return models.CachedRecord{}, err
		}
	}
	if err := c.store.Put(ctx, partition, synced); err != nil {
		return models.CachedRecord{}, err
	}
	return synced, nil
}

func (c *Client) enqueueWrite(ctx context.Context, verb string, typ models.OperationType, entity, recordID string, local models.CachedRecord) (WriteResult, error) {
	op := models.QueueOperation{
		Type:       typ,
		EntityName: entity,
		RecordID:   recordID,
		LocalID:    local.Meta.LocalID,
		Data:       local.Flatten(),
	}
	if _, err := c.queue.Add(context.WithoutCancel(ctx), op); err != nil {
		c.metrics.ObserveRequest(verb, "error")
		return WriteResult{}, err
	}
	c.refreshQueueGauge(ctx)
	c.metrics.ObserveRequest(verb, StatusQueued)
	return WriteResult{Record: local, Queued: true, Status: StatusQueued}, nil
}

func (c *Client) enqueueDelete(ctx context.Context, entity, id string, local models.CachedRecord) (DeleteResult, error) {
	op := models.QueueOperation{
		Type:       models.OperationDelete,
		EntityName: entity,
		RecordID:   id,
		LocalID:    local.Meta.LocalID,
		Data:       local.Flatten(),
	}
	if _, err := c.queue.Add(context.WithoutCancel(ctx), op); err != nil {
		c.metrics.ObserveRequest("delete", "error")
		return DeleteResult{}, err
	}
	c.refreshQueueGauge(ctx)
	c.metrics.ObserveRequest("delete", StatusQueued)
	return DeleteResult{Success: true, Queued: true}, nil
}

func (c *Client) logWriteFailure(verb, entity, id string, err error) {
	c.logger.Warn("Remote write failed, queued for retry", logging.Fields{
		"verb":   verb,
		"entity": entity,
		"id":     id,
		"code":   string(apperrors.CodeOf(err)),
		"status": api.StatusCode(err),
		"error":  err.Error(),
	})
}
