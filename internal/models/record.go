// Package models provides data model definitions for campusync.
package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Bookkeeping keys used by the flattened record shape.
const (
	KeyID            = "id"
	KeyLocalID       = "_localId"
	KeySynced        = "_synced"
	KeyPendingUpdate = "_pendingUpdate"
	KeyDeleted       = "_deleted"
	KeyVersion       = "_version"
	KeyCreatedAt     = "_createdAt"
	KeyUpdatedAt     = "_updatedAt"
	KeyDeletedAt     = "_deletedAt"

	// KeyOffline is set by the server on records that are themselves cached
	// echoes; such records must not be cached again.
	KeyOffline = "offline"
)

// Record is one domain row (student, staff, fee record...) as JSON fields.
type Record map[string]any

// ID returns the record's id as a string, or "" when absent.
func (r Record) ID() string {
	switch v := r[KeyID].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every key of patch applied on top.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// IsOfflineEcho reports whether the server flagged the record as a cached echo.
func (r Record) IsOfflineEcho() bool {
	v, _ := r[KeyOffline].(bool)
	return v
}

// StripBookkeeping returns a copy of r without any underscore-prefixed key.
// The result is what gets sent to the server.
func StripBookkeeping(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// SyncMeta is the local-only bookkeeping kept next to a cached record.
type SyncMeta struct {
	LocalID       string    `json:"localId,omitempty"`
	Synced        bool      `json:"synced"`
	PendingUpdate bool      `json:"pendingUpdate,omitempty"`
	Deleted       bool      `json:"deleted,omitempty"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
	UpdatedAt     time.Time `json:"updatedAt,omitzero"`
	DeletedAt     time.Time `json:"deletedAt,omitzero"`
}

// CachedRecord is the unit stored in an entity partition.
type CachedRecord struct {
	Record Record   `json:"record"`
	Meta   SyncMeta `json:"meta"`
}

// ID returns the key the record is stored under.
func (c CachedRecord) ID() string {
	return c.Record.ID()
}

// Flatten merges the bookkeeping onto a copy of the record using the
// underscore-prefixed keys.
func (c CachedRecord) Flatten() Record {
	out := c.Record.Clone()
	if c.Meta.LocalID != "" {
		out[KeyLocalID] = c.Meta.LocalID
	}
	out[KeySynced] = c.Meta.Synced
	if c.Meta.PendingUpdate {
		out[KeyPendingUpdate] = true
	}
	if c.Meta.Deleted {
		out[KeyDeleted] = true
	}
	out[KeyVersion] = c.Meta.Version
	if !c.Meta.CreatedAt.IsZero() {
		out[KeyCreatedAt] = c.Meta.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !c.Meta.UpdatedAt.IsZero() {
		out[KeyUpdatedAt] = c.Meta.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if !c.Meta.DeletedAt.IsZero() {
		out[KeyDeletedAt] = c.Meta.DeletedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

// Unflatten splits a flattened record back into record fields and metadata.
// Unknown underscore keys are dropped.
func Unflatten(flat Record) CachedRecord {
	meta := SyncMeta{}
	meta.LocalID, _ = flat[KeyLocalID].(string)
	meta.Synced, _ = flat[KeySynced].(bool)
	meta.PendingUpdate, _ = flat[KeyPendingUpdate].(bool)
	meta.Deleted, _ = flat[KeyDeleted].(bool)
	switch v := flat[KeyVersion].(type) {
	case float64:
		meta.Version = int(v)
	case int:
		meta.Version = v
	}
	meta.CreatedAt = parseTime(flat[KeyCreatedAt])
	meta.UpdatedAt = parseTime(flat[KeyUpdatedAt])
	meta.DeletedAt = parseTime(flat[KeyDeletedAt])
	return CachedRecord{Record: StripBookkeeping(flat), Meta: meta}
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
