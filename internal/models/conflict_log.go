// Package models provides data model definitions for campusync.
package models

import "time"

// ConflictLog records a server record overwriting unsynced local changes.
type ConflictLog struct {
	ID             string    `json:"id"`
	EntityName     string    `json:"entityName"`
	RecordID       string    `json:"recordId"`
	LocalVersion   int       `json:"localVersion"`
	LocalUpdatedAt time.Time `json:"localUpdatedAt,omitzero"`
	Resolution     string    `json:"resolution"` // remote_wins
	DetectedAt     time.Time `json:"detectedAt"`
}

// PartitionName returns the Local Store partition holding conflict entries.
func (ConflictLog) PartitionName() string {
	return "conflictLog"
}
