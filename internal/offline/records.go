package offline

import (
	"time"

	"github.com/kimhsiao/campusync/internal/models"
	"github.com/kimhsiao/campusync/internal/uuid"
)

// syncedRecord wraps server data as a synced cached record, carrying over
// the version and creation time of the local copy it replaces.
func syncedRecord(rec models.Record, prev *models.CachedRecord, now time.Time) models.CachedRecord {
	meta := models.SyncMeta{
		Synced:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev != nil {
		if prev.Meta.Version > meta.Version {
			meta.Version = prev.Meta.Version
		}
		if !prev.Meta.CreatedAt.IsZero() {
			meta.CreatedAt = prev.Meta.CreatedAt
		}
	}
	return models.CachedRecord{Record: models.StripBookkeeping(rec), Meta: meta}
}

// outgoing is the payload sent to the server: bookkeeping stripped and a
// temporary id dropped, since the server assigns the permanent one.
func outgoing(rec models.Record) models.Record {
	out := models.StripBookkeeping(rec)
	if uuid.IsLocalID(out.ID()) {
		delete(out, models.KeyID)
	}
	return out
}
