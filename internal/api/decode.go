package api

import (
	"bytes"
	"encoding/json"
	"errors"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/models"
)

// decodeList accepts a bare array, an object with a "data" array or
// object, or a single record.
func decodeList(body []byte) ([]models.Record, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []models.Record{}, nil
	}

	if body[0] == '[' {
		var recs []models.Record
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, decodeErr(err)
		}
		return recs, nil
	}

	var obj models.Record
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, decodeErr(err)
	}
	switch data := obj["data"].(type) {
	case []any:
		out := make([]models.Record, 0, len(data))
		for _, item := range data {
			if m, ok := item.(map[string]any); ok {
				out = append(out, models.Record(m))
			}
		}
		return out, nil
	case map[string]any:
		return []models.Record{models.Record(data)}, nil
	}
	return []models.Record{obj}, nil
}

// decodeOne accepts a record or {"data": record}. An empty body yields nil.
func decodeOne(body []byte) (models.Record, error) {
	recs, err := decodeList(body)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func decodeErr(err error) error {
	return apperrors.Wrap(apperrors.ErrHTTP, "failed to decode response body", err)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == 404
}
