// Package store implements the Local Store: named partitions of JSON
// documents backed by SQLite, with cache-style reads that never fail.
//
// Reads (GetAll, GetByID, GetByIndex) log and swallow storage errors and
// return an empty result, so callers can always fall through to the
// network. Writes return the wrapped storage error.
package store

import (
	"context"
	"encoding/json"

	"github.com/kimhsiao/campusync/internal/db"
	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
)

// Store is the Local Store.
type Store struct {
	db     *db.DB
	logger *logging.Logger
}

// New wraps an already migrated database.
func New(d *db.DB, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Get()
	}
	return &Store{db: d, logger: logger.With(logging.Fields{"component": "store"})}
}

// Open opens the database in dataDir and brings it up to schema.
func Open(ctx context.Context, dataDir string, schema db.Schema, logger *logging.Logger) (*Store, error) {
	d, err := db.Open(dataDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to open local store", err)
	}
	if logger == nil {
		logger = logging.Get()
	}
	migrator := db.NewMigrator(d, db.WithLogger(logger.With(logging.Fields{"component": "db"})))
	if err := migrator.Apply(ctx, schema); err != nil {
		_ = d.Close()
		return nil, err
	}
	return New(d, logger), nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database.
func (s *Store) DB() *db.DB {
	return s.db
}

// GetAll returns every record of the partition in insertion order.
func (s *Store) GetAll(ctx context.Context, partition string) []models.CachedRecord {
	docs, err := s.db.All(ctx, partition)
	if err != nil {
		s.readFailed("GetAll", partition, err)
		return []models.CachedRecord{}
	}
	return s.decodeAll(partition, docs)
}

// GetByID returns the record stored under id, or nil.
func (s *Store) GetByID(ctx context.Context, partition, id string) *models.CachedRecord {
	doc, found, err := s.db.Get(ctx, partition, id)
	if err != nil {
		s.readFailed("GetByID", partition, err)
		return nil
	}
	if !found {
		return nil
	}
	var rec models.CachedRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		s.logger.Warn("Skipping undecodable record", logging.Fields{"partition": partition, "id": id, "error": err.Error()})
		return nil
	}
	return &rec
}

// GetByIndex returns the records whose indexed field equals value.
func (s *Store) GetByIndex(ctx context.Context, partition, index string, value any) []models.CachedRecord {
	docs, err := s.db.ByIndex(ctx, partition, index, value)
	if err != nil {
		s.readFailed("GetByIndex", partition, err)
		return []models.CachedRecord{}
	}
	return s.decodeAll(partition, docs)
}

// Put inserts or replaces rec under its id.
func (s *Store) Put(ctx context.Context, partition string, rec models.CachedRecord) error {
	id := rec.ID()
	if id == "" {
		return apperrors.Newf(apperrors.ErrInvalid, "record for %s has no id", partition)
	}
	return PutDoc(ctx, s, partition, id, rec)
}

// Delete removes the record stored under id.
func (s *Store) Delete(ctx context.Context, partition, id string) error {
	if err := s.db.Delete(ctx, partition, id); err != nil {
		return storageErr("failed to delete record", err)
	}
	return nil
}

// Clear removes every record of the partition.
func (s *Store) Clear(ctx context.Context, partition string) error {
	if err := s.db.Clear(ctx, partition); err != nil {
		return storageErr("failed to clear partition", err)
	}
	return nil
}

func (s *Store) decodeAll(partition string, docs [][]byte) []models.CachedRecord {
	out := make([]models.CachedRecord, 0, len(docs))
	for _, doc := range docs {
		var rec models.CachedRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			s.logger.Warn("Skipping undecodable record", logging.Fields{"partition": partition, "error": err.Error()})
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *Store) readFailed(op, partition string, err error) {
	s.logger.ErrorWithCode("Local read failed", string(apperrors.CodeOf(err)), err, logging.Fields{
		"op":        op,
		"partition": partition,
	})
}

// storageErr keeps already classified errors and wraps the rest as ErrStorage.
func storageErr(msg string, err error) error {
	if apperrors.Is(err, apperrors.ErrUnknownPartition) || apperrors.Is(err, apperrors.ErrInvalid) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrStorage, msg, err)
}
