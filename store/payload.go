package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// serializePayload turns a draft payload into its stored form. Absent
// payloads stay absent (NULL), not an empty container.
func serializePayload(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("payload serialize error: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// deserializePayload is best-effort: a stored value written by an older
// payload format, or corrupted in place, comes back as the raw string
// rather than failing the read.
func deserializePayload(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return s.String
	}
	return v
}
