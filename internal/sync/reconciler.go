// Package sync defines the contract between the queue reconciler and the
// components that trigger or observe it.
package sync

import (
	"context"
	"time"
)

// Result summarises one reconciliation run.
type Result struct {
	Processed    int           `json:"processed"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	MarkedFailed int           `json:"markedFailed"`
	Skipped      bool          `json:"skipped"`
	SkipReason   string        `json:"skipReason,omitempty"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
}

// Skip reasons.
const (
	SkipInProgress = "in_progress"
	SkipOffline    = "offline"
)

// Reconciler drains the sync queue against the server.
type Reconciler interface {
	// SyncPendingOperations replays queued operations in insertion order.
	// It never returns an error: per-operation failures are recorded on the
	// queue entries and counted in the result.
	SyncPendingOperations(ctx context.Context) Result
}

// EventType names a sync lifecycle event.
type EventType string

const (
	EventSyncStarted   EventType = "sync.started"
	EventSyncCompleted EventType = "sync.completed"
)

// Event is emitted around every non-skipped reconciliation run.
type Event struct {
	Type   EventType `json:"type"`
	Result *Result   `json:"result,omitempty"`
}

// EventHandler receives sync events. It must not block.
type EventHandler func(Event)
