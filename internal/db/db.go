// Package db provides the SQLite engine behind the Local Store: connection
// management, versioned partition schemas and raw partition operations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "campusync.db"

// DB wraps the sql.DB with the partition registry loaded from the schema tables.
type DB struct {
	*sql.DB

	mu         sync.RWMutex
	partitions map[string]*PartitionSpec
	version    int
}

// Open opens (creating if needed) the database inside dataDir.
func Open(dataDir string) (*DB, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return OpenPath(filepath.Join(dataDir, FileName))
}

// OpenPath opens the database file at path.
// The database is opened with:
// - a single connection, so SQLite sees one writer and schema upgrades never
//   interleave with another open transaction
// - WAL mode for crash-safe writes
// - a busy timeout for processes sharing the file
func OpenPath(path string) (*DB, error) {
	// Open database with modernc.org/sqlite (pure Go, no CGO)
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &DB{DB: sqlDB, partitions: make(map[string]*PartitionSpec)}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Version returns the schema version the database was last migrated to.
func (db *DB) Version() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.version
}

// Partition returns the registered spec for name.
func (db *DB) Partition(name string) (*PartitionSpec, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.partitions[name]
	return p, ok
}

// PartitionNames returns every registered partition.
func (db *DB) PartitionNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.partitions))
	for name := range db.partitions {
		names = append(names, name)
	}
	return names
}

// Ping checks the connection is usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}
