package store

import (
	"context"
	"encoding/json"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
)

// The helpers below store arbitrary JSON documents, for partitions that do
// not hold cached entity records (the sync queue, the conflict log).

// PutDoc marshals v and stores it under id.
func PutDoc(ctx context.Context, s *Store, partition, id string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode document", err)
	}
	if err := s.db.Put(ctx, partition, id, doc); err != nil {
		return storageErr("failed to write record", err)
	}
	return nil
}

// GetDoc decodes the document stored under id into a T.
func GetDoc[T any](ctx context.Context, s *Store, partition, id string) (T, bool, error) {
	var v T
	doc, found, err := s.db.Get(ctx, partition, id)
	if err != nil {
		return v, false, storageErr("failed to read record", err)
	}
	if !found {
		return v, false, nil
	}
	if err := json.Unmarshal(doc, &v); err != nil {
		return v, false, apperrors.Wrap(apperrors.ErrStorage, "failed to decode document", err)
	}
	return v, true, nil
}

// ListDocs decodes every document of the partition in insertion order.
// Undecodable documents are skipped.
func ListDocs[T any](ctx context.Context, s *Store, partition string) ([]T, error) {
	docs, err := s.db.All(ctx, partition)
	if err != nil {
		return nil, storageErr("failed to list records", err)
	}
	return decodeDocs[T](s, partition, docs), nil
}

// ListDocsByIndex decodes the documents whose indexed value equals value.
func ListDocsByIndex[T any](ctx context.Context, s *Store, partition, index string, value any) ([]T, error) {
	docs, err := s.db.ByIndex(ctx, partition, index, value)
	if err != nil {
		return nil, storageErr("failed to query index", err)
	}
	return decodeDocs[T](s, partition, docs), nil
}

// Count returns the number of documents in the partition.
func Count(ctx context.Context, s *Store, partition string) (int, error) {
	n, err := s.db.Count(ctx, partition)
	if err != nil {
		return 0, storageErr("failed to count records", err)
	}
	return n, nil
}

func decodeDocs[T any](s *Store, partition string, docs [][]byte) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			s.logger.Warn("Skipping undecodable document", logging.Fields{"partition": partition, "error": err.Error()})
			continue
		}
		out = append(out, v)
	}
	return out
}
