package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
)

var (
	namePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	keyPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// IndexSpec declares a secondary index over a JSON path of the stored document.
type IndexSpec struct {
	Name    string
	KeyPath string
}

// PartitionSpec declares one named partition and its indexes.
type PartitionSpec struct {
	Name    string
	Indexes []IndexSpec
}

// Index returns the index called name.
func (p *PartitionSpec) Index(name string) (IndexSpec, bool) {
	for _, idx := range p.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

// Schema is a versioned set of partitions. Upgrades are additive.
type Schema struct {
	Version    int
	Partitions []PartitionSpec
}

// Validate checks names and key paths are safe to embed in SQL.
func (s Schema) Validate() error {
	if s.Version < 1 {
		return apperrors.Newf(apperrors.ErrInvalid, "schema version must be positive, got %d", s.Version)
	}
	seen := make(map[string]bool)
	for _, p := range s.Partitions {
		if !namePattern.MatchString(p.Name) {
			return apperrors.Newf(apperrors.ErrInvalid, "invalid partition name %q", p.Name)
		}
		if seen[p.Name] {
			return apperrors.Newf(apperrors.ErrInvalid, "duplicate partition %q", p.Name)
		}
		seen[p.Name] = true
		for _, idx := range p.Indexes {
			if !namePattern.MatchString(idx.Name) {
				return apperrors.Newf(apperrors.ErrInvalid, "invalid index name %q on %s", idx.Name, p.Name)
			}
			if !keyPathPattern.MatchString(idx.KeyPath) {
				return apperrors.Newf(apperrors.ErrInvalid, "invalid key path %q on %s.%s", idx.KeyPath, p.Name, idx.Name)
			}
		}
	}
	return nil
}

// Migration is one applied schema upgrade.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// Migrator applies versioned partition schemas.
type Migrator struct {
	db     *DB
	logger *logging.Logger
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithLogger sets the logger upgrades are reported to.
func WithLogger(l *logging.Logger) MigratorOption {
	return func(m *Migrator) { m.logger = l }
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *DB, opts ...MigratorOption) *Migrator {
	m := &Migrator{db: db, logger: logging.Get()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize creates the bookkeeping tables if they don't exist.
func (m *Migrator) Initialize(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY CHECK(version > 0),
			applied_at INTEGER NOT NULL CHECK(applied_at > 0),
			description TEXT NOT NULL CHECK(length(description) > 0),
			checksum TEXT NOT NULL CHECK(length(checksum) = 64)
		)`,
		`CREATE TABLE IF NOT EXISTS schema_partitions (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS schema_indexes (
			partition TEXT NOT NULL,
			name TEXT NOT NULL,
			key_path TEXT NOT NULL,
			PRIMARY KEY (partition, name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create bookkeeping table: %w", err)
		}
	}
	return nil
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		migrations = append(migrations, mig)
	}
	return migrations, rows.Err()
}

// Apply brings the database up to schema. A schema older than the stored
// version fails with ErrSchemaVersion. A newer one creates missing
// partitions and indexes in a single transaction; existing rows are kept.
// The partition registry is reloaded afterwards in every case.
func (m *Migrator) Apply(ctx context.Context, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	if err := m.Initialize(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to initialize schema tables", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to read schema version", err)
	}

	switch {
	case schema.Version < current:
		return apperrors.Newf(apperrors.ErrSchemaVersion,
			"requested schema version %d is lower than stored version %d", schema.Version, current)
	case schema.Version > current:
		if err := m.upgrade(ctx, schema); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("failed to apply schema version %d", schema.Version), err)
		}
		m.logger.Info("Schema upgraded", logging.Fields{
			"from":       current,
			"to":         schema.Version,
			"partitions": len(schema.Partitions),
		})
	}

	return m.loadRegistry(ctx)
}

// upgrade creates everything the schema declares that does not exist yet.
func (m *Migrator) upgrade(ctx context.Context, schema Schema) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ddl := schemaDDL(schema)
	for _, stmt := range ddl {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}

	for _, p := range schema.Partitions {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO schema_partitions (name) VALUES (?)`, p.Name); err != nil {
			return fmt.Errorf("failed to register partition %s: %w", p.Name, err)
		}
		for _, idx := range p.Indexes {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO schema_indexes (partition, name, key_path) VALUES (?, ?, ?)`,
				p.Name, idx.Name, idx.KeyPath); err != nil {
				return fmt.Errorf("failed to register index %s.%s: %w", p.Name, idx.Name, err)
			}
		}
	}

	// Compute SHA-256 checksum of the generated DDL
	hash := sha256.Sum256([]byte(strings.Join(ddl, ";\n")))
	checksum := hex.EncodeToString(hash[:])
	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, schema.Version, time.Now().Unix(), describe(schema), checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// loadRegistry reads partitions and indexes from the bookkeeping tables.
func (m *Migrator) loadRegistry(ctx context.Context) error {
	version, err := m.CurrentVersion(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to read schema version", err)
	}

	partitions := make(map[string]*PartitionSpec)
	rows, err := m.db.QueryContext(ctx, `SELECT name FROM schema_partitions`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load partitions", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return apperrors.Wrap(apperrors.ErrStorage, "failed to load partitions", err)
		}
		partitions[name] = &PartitionSpec{Name: name}
	}
	rows.Close()

	rows, err = m.db.QueryContext(ctx, `SELECT partition, name, key_path FROM schema_indexes ORDER BY partition, name`)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load indexes", err)
	}
	defer rows.Close()
	for rows.Next() {
		var partition string
		var idx IndexSpec
		if err := rows.Scan(&partition, &idx.Name, &idx.KeyPath); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to load indexes", err)
		}
		if p, ok := partitions[partition]; ok {
			p.Indexes = append(p.Indexes, idx)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to load indexes", err)
	}

	m.db.mu.Lock()
	m.db.partitions = partitions
	m.db.version = version
	m.db.mu.Unlock()
	return nil
}

func schemaDDL(schema Schema) []string {
	var stmts []string
	for _, p := range schema.Partitions {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`, tableName(p.Name)))
		for _, idx := range p.Indexes {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`,
				indexName(p.Name, idx.Name), tableName(p.Name), indexExpr(idx.KeyPath)))
		}
	}
	return stmts
}

func describe(schema Schema) string {
	names := make([]string, 0, len(schema.Partitions))
	for _, p := range schema.Partitions {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "empty"
	}
	return "partitions: " + strings.Join(names, ",")
}

func tableName(partition string) string {
	return "p_" + partition
}

func indexName(partition, index string) string {
	return "ix_" + partition + "_" + index
}

// indexExpr must match the expression used by ByIndex for SQLite to pick
// the index.
func indexExpr(keyPath string) string {
	return fmt.Sprintf("json_extract(doc, '$.%s')", keyPath)
}
