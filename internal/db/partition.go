package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
)

// requirePartition returns the registered spec or ErrUnknownPartition.
func (db *DB) requirePartition(name string) (*PartitionSpec, error) {
	p, ok := db.Partition(name)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnknownPartition, "unknown partition %q", name)
	}
	return p, nil
}

// Put inserts or replaces the document stored under id. Replacing keeps the
// row's original insertion position.
func (db *DB) Put(ctx context.Context, partition, id string, doc []byte) error {
	if _, err := db.requirePartition(partition); err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO %s (id, doc) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET doc = excluded.doc`,
		tableName(partition))
	if _, err := db.ExecContext(ctx, query, id, string(doc)); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", partition, id, err)
	}
	return nil
}

// Get returns the document stored under id; found is false when absent.
func (db *DB) Get(ctx context.Context, partition, id string) (doc []byte, found bool, err error) {
	if _, err := db.requirePartition(partition); err != nil {
		return nil, false, err
	}
	var s string
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, tableName(partition))
	err = db.QueryRowContext(ctx, query, id).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s/%s: %w", partition, id, err)
	}
	return []byte(s), true, nil
}

// All returns every document of the partition in insertion order.
func (db *DB) All(ctx context.Context, partition string) ([][]byte, error) {
	if _, err := db.requirePartition(partition); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT doc FROM %s ORDER BY rowid`, tableName(partition))
	return db.queryDocs(ctx, query)
}

// ByIndex returns the documents whose indexed value equals value, in
// insertion order.
func (db *DB) ByIndex(ctx context.Context, partition, index string, value any) ([][]byte, error) {
	p, err := db.requirePartition(partition)
	if err != nil {
		return nil, err
	}
	idx, ok := p.Index(index)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrInvalid, "partition %q has no index %q", partition, index)
	}
	query := fmt.Sprintf(`SELECT doc FROM %s WHERE %s = ? ORDER BY rowid`,
		tableName(partition), indexExpr(idx.KeyPath))
	return db.queryDocs(ctx, query, value)
}

// Delete removes the document stored under id. Deleting a missing id is a no-op.
func (db *DB) Delete(ctx context.Context, partition, id string) error {
	if _, err := db.requirePartition(partition); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, tableName(partition))
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", partition, id, err)
	}
	return nil
}

// Clear removes every document of the partition.
func (db *DB) Clear(ctx context.Context, partition string) error {
	if _, err := db.requirePartition(partition); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, tableName(partition))); err != nil {
		return fmt.Errorf("failed to clear %s: %w", partition, err)
	}
	return nil
}

// Count returns the number of documents in the partition.
func (db *DB) Count(ctx context.Context, partition string) (int, error) {
	if _, err := db.requirePartition(partition); err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tableName(partition))).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", partition, err)
	}
	return n, nil
}

func (db *DB) queryDocs(ctx context.Context, query string, args ...any) ([][]byte, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		docs = append(docs, []byte(s))
	}
	return docs, rows.Err()
}
