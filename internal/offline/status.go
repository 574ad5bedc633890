package offline

import (
	"context"
	"time"

	"github.com/kimhsiao/campusync/internal/models"
	syncpkg "github.com/kimhsiao/campusync/internal/sync"
)

// Status is the sync-status query result surfaced to the UI.
type Status struct {
	Online     bool            `json:"online"`
	Syncing    bool            `json:"syncing"`
	Pending    int             `json:"pending"`
	Failed     int             `json:"failed"`
	LastSync   *time.Time      `json:"lastSync,omitempty"`
	LastResult *syncpkg.Result `json:"lastResult,omitempty"`
}

// SyncStatus reports connectivity, queue depth and the last run.
func (c *Client) SyncStatus(ctx context.Context) (Status, error) {
	stats, err := c.queue.Stats(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Online:  c.online(),
		Syncing: c.syncing.Load(),
		Pending: stats.Pending,
		Failed:  stats.Failed,
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.lastSync.IsZero() {
		t := c.lastSync
		status.LastSync = &t
	}
	if c.lastResult != nil {
		r := *c.lastResult
		status.LastResult = &r
	}
	return status, nil
}

// PendingOperations returns the whole queue in insertion order.
func (c *Client) PendingOperations(ctx context.Context) ([]models.QueueOperation, error) {
	return c.queue.List(ctx)
}

// FailedOperations returns the operations that hit the retry ceiling.
func (c *Client) FailedOperations(ctx context.Context) ([]models.QueueOperation, error) {
	return c.queue.ListByStatus(ctx, models.QueueStatusFailed)
}

// RetryFailed puts every failed operation back in line with a fresh
// attempt budget.
func (c *Client) RetryFailed(ctx context.Context) (int, error) {
	n, err := c.queue.RetryFailed(ctx)
	c.refreshQueueGauge(ctx)
	return n, err
}

// ConflictLogs returns the recorded last-write-wins overwrites.
func (c *Client) ConflictLogs(ctx context.Context, entity string) ([]models.ConflictLog, error) {
	return c.resolver.Logs(ctx, entity)
}
