package persistence

import (
	"fmt"
	"time"
)

// PersistenceError describes a failed storage read, write or parse
type PersistenceError struct {
	Op        string    // operation name, e.g. "saveEntry"
	EntryID   string    // affected entry, empty for store-wide operations
	Message   string    // human-readable summary
	Err       error     // underlying cause
	Timestamp time.Time // when the failure happened
}

func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("persistence error [%s]", e.Op)
	if e.EntryID != "" {
		msg += " entry=" + e.EntryID
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func newError(op, entryID, message string, err error) *PersistenceError {
	return &PersistenceError{
		Op:        op,
		EntryID:   entryID,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}
