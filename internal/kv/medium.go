// Package kv provides the key/value storage media the task memory is
// persisted on. A medium has a finite byte quota and fails writes that
// would exceed it.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded is returned by Set when the write would overflow the medium
	ErrQuotaExceeded = errors.New("kv: storage quota exceeded")
	// ErrClosed is returned by operations on a closed medium
	ErrClosed = errors.New("kv: medium is closed")
)

// Medium key/value storage interface
type Medium interface {
	// Get returns the value stored under key and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; removing a missing key is not an error
	Remove(ctx context.Context, key string) error
	// Keys lists every stored key
	Keys(ctx context.Context) ([]string, error)
	// Size returns the bytes currently used by keys and values
	Size(ctx context.Context) (int64, error)
	// Close releases the medium
	Close() error
}

// entrySize is the accounting cost of one key/value pair
func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
