package entry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEntry is wrapped by every validation failure
var ErrInvalidEntry = errors.New("invalid memory entry")

// Validate checks the structural invariants every stored entry must satisfy
func Validate(e *Entry) error {
	if e == nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, errNilEntry)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: id must be a non-empty string", ErrInvalidEntry)
	}
	d := e.Metadata.Duration
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return fmt.Errorf("%w: metadata.duration must be a finite number", ErrInvalidEntry)
	}
	if d < 0 {
		return fmt.Errorf("%w: metadata.duration must be non-negative", ErrInvalidEntry)
	}
	return nil
}

// DecodeEntry parses raw JSON and applies the structural type check before
// decoding, so foreign records with missing or mistyped fields are rejected
// instead of silently zero-filled.
func DecodeEntry(data []byte) (*Entry, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := checkFields(raw); err != nil {
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if err := Validate(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

func checkFields(raw map[string]json.RawMessage) error {
	id, ok := field[string](raw, "id")
	if !ok || id == "" {
		return fmt.Errorf("%w: id must be a non-empty string", ErrInvalidEntry)
	}
	if _, ok := field[float64](raw, "timestamp"); !ok {
		return fmt.Errorf("%w: timestamp must be a number", ErrInvalidEntry)
	}
	if _, ok := field[string](raw, "task"); !ok {
		return fmt.Errorf("%w: task must be a string", ErrInvalidEntry)
	}

	var meta map[string]json.RawMessage
	metaRaw, ok := raw["metadata"]
	if !ok || json.Unmarshal(metaRaw, &meta) != nil || meta == nil {
		return fmt.Errorf("%w: metadata must be an object", ErrInvalidEntry)
	}
	if _, ok := field[bool](meta, "success"); !ok {
		return fmt.Errorf("%w: metadata.success must be a boolean", ErrInvalidEntry)
	}
	if _, ok := field[float64](meta, "duration"); !ok {
		return fmt.Errorf("%w: metadata.duration must be a number", ErrInvalidEntry)
	}
	return nil
}

// field decodes raw[key] into a JSON value and reports whether it has type T
func field[T any](raw map[string]json.RawMessage, key string) (T, bool) {
	var zero T
	msg, ok := raw[key]
	if !ok {
		return zero, false
	}
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// GenerateID returns a time-prefixed identifier with a random suffix
func GenerateID() string {
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("mem_%d_%s", time.Now().UnixMilli(), suffix)
}
