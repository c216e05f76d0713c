package store

import (
	"errors"
	"strings"
)

// ErrNotFound marks an unknown record id. Surfaced, not retried.
var ErrNotFound = errors.New("record not found")

// ErrTimeout marks a bounded persistence timeout (the database stayed locked
// past busy_timeout). Transient: the caller may retry with backoff; the store
// itself never retries.
var ErrTimeout = errors.New("persistence timeout")

// wrapBusy converts sqlite busy/locked failures into ErrTimeout so callers
// can distinguish retryable contention from real faults.
func wrapBusy(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return errors.Join(ErrTimeout, err)
	}
	return err
}
