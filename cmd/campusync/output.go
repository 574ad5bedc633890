package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kimhsiao/campusync/internal/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseRecord decodes a JSON object argument.
func parseRecord(arg string) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal([]byte(arg), &rec); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record must be a JSON object, got null")
	}
	return rec, nil
}
