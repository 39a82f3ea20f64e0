package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON stores V in a JSONB column.
type JSON[T any] struct {
	V T
}

func NewJSON[T any](v T) JSON[T] {
	return JSON[T]{V: v}
}

func (j JSON[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, fmt.Errorf("encoding json column: %w", err)
	}
	return b, nil
}

func (j *JSON[T]) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		var zero T
		j.V = zero
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into a json column", src)
	}

	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decoding json column: %w", err)
	}
	j.V = v
	return nil
}
