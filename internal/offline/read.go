package offline

import (
	"context"

	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
)

// ReadStatus says where the records of a ReadResult came from.
type ReadStatus string

const (
	// ReadFresh is server data, just fetched and cached.
	ReadFresh ReadStatus = "fresh"
	// ReadCached is a cache hit served without touching the network.
	ReadCached ReadStatus = "cached"
	// ReadStaleFallback is cached data returned because the server was
	// unreachable or failed.
	ReadStaleFallback ReadStatus = "stale_fallback"
	// ReadMiss means neither the server nor the cache had anything.
	ReadMiss ReadStatus = "miss"
)

// GetOptions tunes Get.
type GetOptions struct {
	// ForceRefresh skips the cache-first shortcut and asks the server.
	ForceRefresh bool
}

// ReadResult is what Get returns.
type ReadResult struct {
	Status  ReadStatus
	Records []models.CachedRecord
	// Err is the network or HTTP failure behind a StaleFallback or Miss,
	// if there was one.
	Err error
}

// Found reports whether any record was returned.
func (r ReadResult) Found() bool {
	return len(r.Records) > 0
}

// Get reads entity records, cache first. With id empty it reads the whole
// collection. It never fails: a failed or impossible network read falls
// back to whatever is cached, and ctx cancellation of the network call is
// treated like any other network failure.
func (c *Client) Get(ctx context.Context, entity, id string, opts GetOptions) ReadResult {
	result := c.get(ctx, entity, id, opts)
	c.metrics.ObserveRequest("get", string(result.Status))
	return result
}

func (c *Client) get(ctx context.Context, entity, id string, opts GetOptions) ReadResult {
	partition, mapped := c.entities.Partition(entity)

	if mapped && !opts.ForceRefresh {
		if cached := c.readCache(ctx, partition, id); len(cached) > 0 {
			return ReadResult{Status: ReadCached, Records: cached}
		}
	}

	if !c.online() {
		return c.fallback(ctx, partition, mapped, id, nil)
	}

	var (
		recs []models.Record
		err  error
	)
	if id == "" {
		recs, err = c.remote.List(ctx, entity)
	} else {
		recs, err = c.remote.Get(ctx, entity, id)
	}
	if err != nil {
		c.logger.Warn("Remote read failed, falling back to cache", logging.Fields{
			"entity": entity,
			"id":     id,
			"error":  err.Error(),
		})
		return c.fallback(ctx, partition, mapped, id, err)
	}

	out := make([]models.CachedRecord, 0, len(recs))
	for _, rec := range recs {
		if !mapped || rec.IsOfflineEcho() {
			out = append(out, syncedRecord(rec, nil, c.now()))
			continue
		}
		out = append(out, c.cacheServerRecord(ctx, entity, partition, rec))
	}
	if len(out) == 0 {
		return ReadResult{Status: ReadMiss, Records: out}
	}
	return ReadResult{Status: ReadFresh, Records: out}
}

// fallback serves the cache after the network path was skipped or failed.
func (c *Client) fallback(ctx context.Context, partition string, mapped bool, id string, cause error) ReadResult {
	if mapped {
		if cached := c.readCache(ctx, partition, id); len(cached) > 0 {
			return ReadResult{Status: ReadStaleFallback, Records: cached, Err: cause}
		}
	}
	return ReadResult{Status: ReadMiss, Records: []models.CachedRecord{}, Err: cause}
}

// readCache returns live (non-tombstoned) records.
func (c *Client) readCache(ctx context.Context, partition, id string) []models.CachedRecord {
	var recs []models.CachedRecord
	if id != "" {
		if rec := c.store.GetByID(ctx, partition, id); rec != nil {
			recs = []models.CachedRecord{*rec}
		}
	} else {
		recs = c.store.GetAll(ctx, partition)
	}

	live := recs[:0]
	for _, rec := range recs {
		if !rec.Meta.Deleted {
			live = append(live, rec)
		}
	}
	return live
}

// cacheServerRecord stores an authoritative record, applying
// last-write-wins over unconfirmed local changes. Storage failures are
// logged; the server record is returned regardless.
func (c *Client) cacheServerRecord(ctx context.Context, entity, partition string, rec models.Record) models.CachedRecord {
	if rec.ID() == "" {
		c.logger.Warn("Server record without id not cached", logging.Fields{"entity": entity})
		return syncedRecord(rec, nil, c.now())
	}

	existing := c.store.GetByID(ctx, partition, rec.ID())

	var cached models.CachedRecord
	if conflict, ok := c.resolver.DetectConflict(entity, existing, rec); ok {
		resolved, err := c.resolver.Resolve(ctx, conflict)
		if err != nil {
			c.logger.Error("Conflict resolution failed", err, logging.Fields{"entity": entity, "id": rec.ID()})
			cached = syncedRecord(rec, nil, c.now())
		} else {
			cached = resolved.Winner
		}
	} else {
		cached = syncedRecord(rec, existing, c.now())
	}

	if err := c.store.Put(ctx, partition, cached); err != nil {
		c.logger.Error("Failed to cache server record", err, logging.Fields{"entity": entity, "id": rec.ID()})
	}
	return cached
}
