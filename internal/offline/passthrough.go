package offline

import (
	"context"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/models"
)

// Unmapped entities go straight to the server: nothing is cached or
// queued, so there is nothing to fall back to when offline.

func (c *Client) offlineUnmapped(verb, entity string) error {
	c.metrics.ObserveRequest(verb, "offline_unmapped")
	return apperrors.Newf(apperrors.ErrOfflineUnmapped, "%s has no local partition and the network is offline", entity)
}

func (c *Client) passThroughCreate(ctx context.Context, entity string, data models.Record) (WriteResult, error) {
	if !c.online() {
		return WriteResult{}, c.offlineUnmapped("post", entity)
	}
	server, err := c.remote.Create(ctx, entity, models.StripBookkeeping(data))
	if err != nil {
		c.metrics.ObserveRequest("post", "error")
		return WriteResult{}, err
	}
	c.metrics.ObserveRequest("post", StatusSynced)
	return WriteResult{Record: syncedRecord(server, nil, c.now()), Status: StatusSynced}, nil
}

func (c *Client) passThroughUpdate(ctx context.Context, entity, id string, data models.Record) (WriteResult, error) {
	if !c.online() {
		return WriteResult{}, c.offlineUnmapped("put", entity)
	}
	server, err := c.remote.Update(ctx, entity, id, models.StripBookkeeping(data))
	if err != nil {
		c.metrics.ObserveRequest("put", "error")
		return WriteResult{}, err
	}
	c.metrics.ObserveRequest("put", StatusSynced)
	return WriteResult{Record: syncedRecord(server, nil, c.now()), Status: StatusSynced}, nil
}

func (c *Client) passThroughDelete(ctx context.Context, entity, id string) (DeleteResult, error) {
	if !c.online() {
		return DeleteResult{}, c.offlineUnmapped("delete", entity)
	}
	if err := c.remote.Delete(ctx, entity, id); err != nil {
		c.metrics.ObserveRequest("delete", "error")
		return DeleteResult{}, err
	}
	c.metrics.ObserveRequest("delete", StatusSynced)
	return DeleteResult{Success: true}, nil
}
