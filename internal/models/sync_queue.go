// Package models provides data model definitions for campusync.
package models

import "time"

// OperationType is the kind of mutation a queue entry replays.
type OperationType string

const (
	OperationCreate OperationType = "CREATE"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// QueueStatus is the replay state of a queue entry.
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusFailed  QueueStatus = "failed"
)

// QueueOperation is one pending mutation awaiting replay against the server.
type QueueOperation struct {
	ID          string        `json:"id"`
	Type        OperationType `json:"type"`
	EntityName  string        `json:"entityName"`
	RecordID    string        `json:"recordId,omitempty"`
	LocalID     string        `json:"localId,omitempty"`
	Data        Record        `json:"data,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	Status      QueueStatus   `json:"status"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"lastError,omitempty"`
	LastAttempt time.Time     `json:"lastAttempt,omitzero"`
}

// PartitionName returns the Local Store partition holding queue entries.
func (QueueOperation) PartitionName() string {
	return "syncQueue"
}

// TargetID returns the id the operation addresses: the permanent id when
// known, otherwise the local one.
func (op QueueOperation) TargetID() string {
	if op.RecordID != "" {
		return op.RecordID
	}
	return op.LocalID
}
