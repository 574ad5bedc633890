// Package conflict applies the last-write-wins policy when authoritative
// server data lands on top of unsynced local edits, and keeps a log of
// every such overwrite.
package conflict

import (
	"context"
	"time"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
	"github.com/kimhsiao/campusync/internal/store"
	"github.com/kimhsiao/campusync/internal/uuid"
)

// ResolutionRemoteWins is the only resolution the resolver produces.
const ResolutionRemoteWins = "remote_wins"

// Conflict is a server record arriving for a local record that still has
// unsynced changes.
type Conflict struct {
	EntityName string
	RecordID   string
	Local      models.CachedRecord
	Remote     models.Record
	DetectedAt time.Time
}

// ResolveResult is the outcome of resolving a conflict.
type ResolveResult struct {
	Winner      models.CachedRecord // what gets stored
	Loser       models.CachedRecord // the overwritten local copy
	ConflictLog models.ConflictLog
}

// Resolver detects and resolves conflicts and persists the conflict log.
type Resolver struct {
	store  *store.Store
	logger *logging.Logger
	now    func() time.Time
}

// NewResolver creates a Resolver that records into the store's conflictLog
// partition.
func NewResolver(s *store.Store, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Get()
	}
	return &Resolver{
		store:  s,
		logger: logger.With(logging.Fields{"component": "conflict"}),
		now:    time.Now,
	}
}

// DetectConflict reports whether storing remote over local would discard
// unsynced local changes.
func (r *Resolver) DetectConflict(entity string, local *models.CachedRecord, remote models.Record) (*Conflict, bool) {
	// No conflict unless a local update or delete is still unconfirmed
	if local == nil || !(local.Meta.PendingUpdate || local.Meta.Deleted) {
		return nil, false
	}
	if local.ID() != remote.ID() {
		return nil, false
	}

	c := &Conflict{
		EntityName: entity,
		RecordID:   remote.ID(),
		Local:      *local,
		Remote:     remote,
		DetectedAt: r.now(),
	}

	r.logger.Warn("Unsynced local edit overwritten by server data", logging.Fields{
		"entity":           entity,
		"record_id":        c.RecordID,
		"local_version":    local.Meta.Version,
		"local_deleted":    local.Meta.Deleted,
		"local_updated_at": local.Meta.UpdatedAt,
	})
	return c, true
}

// Resolve applies last-write-wins: the server record wins and is stored as
// synced. The conflict is appended to the log; a log write failure is
// logged and does not block resolution.
func (r *Resolver) Resolve(ctx context.Context, c *Conflict) (*ResolveResult, error) {
	if c == nil || c.Remote == nil {
		return nil, apperrors.New(apperrors.ErrInvalid, "invalid conflict: remote record is required")
	}

	now := r.now()
	winner := models.CachedRecord{
		Record: c.Remote.Clone(),
		Meta: models.SyncMeta{
			Synced:    true,
			Version:   c.Local.Meta.Version + 1,
			CreatedAt: c.Local.Meta.CreatedAt,
			UpdatedAt: now,
		},
	}

	entry := models.ConflictLog{
		ID:             uuid.New(),
		EntityName:     c.EntityName,
		RecordID:       c.RecordID,
		LocalVersion:   c.Local.Meta.Version,
		LocalUpdatedAt: c.Local.Meta.UpdatedAt,
		Resolution:     ResolutionRemoteWins,
		DetectedAt:     c.DetectedAt,
	}
	if entry.DetectedAt.IsZero() {
		entry.DetectedAt = now
	}

	if err := store.PutDoc(ctx, r.store, store.ConflictLogPartition, entry.ID, entry); err != nil {
		r.logger.Error("Failed to record conflict", err, logging.Fields{"record_id": c.RecordID})
	}

	r.logger.Info("Conflict resolved using last-write-wins", logging.Fields{
		"entity":     c.EntityName,
		"record_id":  c.RecordID,
		"resolution": ResolutionRemoteWins,
	})

	return &ResolveResult{Winner: winner, Loser: c.Local, ConflictLog: entry}, nil
}

// Logs returns the recorded conflicts for entity, or all of them when
// entity is empty.
func (r *Resolver) Logs(ctx context.Context, entity string) ([]models.ConflictLog, error) {
	if entity == "" {
		return store.ListDocs[models.ConflictLog](ctx, r.store, store.ConflictLogPartition)
	}
	return store.ListDocsByIndex[models.ConflictLog](ctx, r.store, store.ConflictLogPartition, "byEntity", entity)
}
