// Package persistence stores task-memory entries on a key/value medium and
// maintains the index record that enumerates them.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hession/taskmem/internal/entry"
	"github.com/hession/taskmem/internal/kv"
	"github.com/hession/taskmem/internal/logger"
)

const (
	// DefaultKeyPrefix namespaces every key written by the store
	DefaultKeyPrefix = "taskmem_"
	// DefaultCapacityBytes advisory capacity used for available-space reporting
	DefaultCapacityBytes int64 = 5 * 1024 * 1024
	// DefaultCacheEntries decoded entries kept in the read cache
	DefaultCacheEntries int64 = 1024
)

// Options persistence configuration
type Options struct {
	KeyPrefix     string
	CapacityBytes int64
	CacheEntries  int64 // 0 disables the read cache
}

// DefaultOptions returns default persistence options
func DefaultOptions() Options {
	return Options{
		KeyPrefix:     DefaultKeyPrefix,
		CapacityBytes: DefaultCapacityBytes,
		CacheEntries:  DefaultCacheEntries,
	}
}

// Store persists entries and their index on a kv.Medium
type Store struct {
	medium   kv.Medium
	prefix   string
	capacity int64
	cache    *entryCache

	// mu serializes index read-modify-write cycles
	mu sync.Mutex
}

// NewStore creates a persistence store on top of medium
func NewStore(medium kv.Medium, opts Options) (*Store, error) {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.CapacityBytes <= 0 {
		opts.CapacityBytes = DefaultCapacityBytes
	}

	cache, err := newEntryCache(opts.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry cache: %w", err)
	}

	return &Store{
		medium:   medium,
		prefix:   opts.KeyPrefix,
		capacity: opts.CapacityBytes,
		cache:    cache,
	}, nil
}

func (s *Store) entryKey(id string) string {
	return s.prefix + "entry_" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Capacity returns the advisory byte capacity
func (s *Store) Capacity() int64 {
	return s.capacity
}

// fail logs and returns a PersistenceError
func fail(op, entryID, message string, err error) *PersistenceError {
	perr := newError(op, entryID, message, err)
	logger.Error("%v", perr)
	return perr
}

// SaveEntry validates and writes an entry, then records it in the index.
// A structured result is replaced in e by its JSON form so e matches what
// RetrieveEntry returns.
func (s *Store) SaveEntry(ctx context.Context, e *entry.Entry) error {
	id := ""
	if e != nil {
		id = e.ID
	}
	if err := entry.Validate(e); err != nil {
		return fail("saveEntry", id, "validation failed", err)
	}

	if e.Result.Kind == entry.ResultStructured {
		normalized, err := entry.NormalizeStructured(e.Result.Structured)
		if err != nil {
			return fail("saveEntry", id, "failed to serialize entry", err)
		}
		e.Result.Structured = normalized
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fail("saveEntry", id, "failed to serialize entry", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex(ctx)
	if err != nil {
		return fail("saveEntry", id, "failed to read index", err)
	}

	if err := s.medium.Set(ctx, s.entryKey(id), string(data)); err != nil {
		return fail("saveEntry", id, "failed to write entry", err)
	}

	isNew := !idx.contains(id)
	if isNew {
		idx.EntryIDs = append(idx.EntryIDs, id)
	}
	if err := s.writeIndex(ctx, idx); err != nil {
		if isNew {
			// Drop the unreferenced entry; an orphan would also be tolerated
			_ = s.medium.Remove(ctx, s.entryKey(id))
		}
		return fail("saveEntry", id, "failed to update index", err)
	}

	s.cache.put(e)
	logger.Debug("Saved entry %s (%d bytes)", id, len(data))
	return nil
}

// RetrieveEntry reads one entry. It returns (nil, nil) when the id is
// unknown to the medium and (nil, *PersistenceError) when the stored record
// cannot be decoded.
func (s *Store) RetrieveEntry(ctx context.Context, id string) (*entry.Entry, error) {
	if e, ok := s.cache.get(id); ok {
		return e, nil
	}

	raw, ok, err := s.medium.Get(ctx, s.entryKey(id))
	if err != nil {
		return nil, fail("retrieveEntry", id, "failed to read entry", err)
	}
	if !ok {
		return nil, nil
	}

	e, err := entry.DecodeEntry([]byte(raw))
	if err != nil {
		return nil, fail("retrieveEntry", id, "failed to decode entry", err)
	}

	s.cache.put(e)
	return e, nil
}

// RetrieveEntries returns every readable entry listed in the index, in index
// order. Ids that cannot be read are skipped, not repaired.
func (s *Store) RetrieveEntries(ctx context.Context) ([]*entry.Entry, error) {
	s.mu.Lock()
	idx, err := s.loadIndex(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, fail("retrieveEntries", "", "failed to read index", err)
	}

	entries := make([]*entry.Entry, 0, len(idx.EntryIDs))
	for _, id := range idx.EntryIDs {
		e, err := s.RetrieveEntry(ctx, id)
		if err != nil {
			logger.Warn("Skipping unreadable entry %s: %v", id, err)
			continue
		}
		if e == nil {
			logger.Warn("Skipping dangling index id %s", id)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteEntry removes an entry and its index reference. It reports false
// when the id was not indexed.
func (s *Store) DeleteEntry(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex(ctx)
	if err != nil {
		return false, fail("deleteEntry", id, "failed to read index", err)
	}
	if !idx.contains(id) {
		return false, nil
	}

	if err := s.medium.Remove(ctx, s.entryKey(id)); err != nil {
		return false, fail("deleteEntry", id, "failed to remove entry", err)
	}
	s.cache.del(id)

	idx.remove(id)
	if err := s.writeIndex(ctx, idx); err != nil {
		return false, fail("deleteEntry", id, "failed to update index", err)
	}

	logger.Debug("Deleted entry %s", id)
	return true, nil
}

// ClearAllEntries removes every indexed entry and then the index itself
func (s *Store) ClearAllEntries(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex(ctx)
	if err != nil {
		return fail("clearAllEntries", "", "failed to read index", err)
	}

	var errs []error
	for _, id := range idx.EntryIDs {
		if err := s.medium.Remove(ctx, s.entryKey(id)); err != nil {
			errs = append(errs, err)
		}
	}
	s.cache.clear()

	if err := s.medium.Remove(ctx, s.indexKey()); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fail("clearAllEntries", "", "failed to remove keys", errors.Join(errs...))
	}

	logger.Info("Cleared %d entries", len(idx.EntryIDs))
	return nil
}

// StorageStats storage usage summary
type StorageStats struct {
	TotalEntries   int   `json:"totalEntries"`
	StorageSize    int64 `json:"storageSize"`
	LastUpdated    int64 `json:"lastUpdated"`
	AvailableSpace int64 `json:"availableSpace"`
}

// GetStorageStats reports entry count and live storage usage. AvailableSpace
// is advisory; the medium enforces its own quota.
func (s *Store) GetStorageStats(ctx context.Context) (StorageStats, error) {
	s.mu.Lock()
	idx, err := s.loadIndex(ctx)
	s.mu.Unlock()
	if err != nil {
		return StorageStats{}, fail("getStorageStats", "", "failed to read index", err)
	}

	size, err := s.medium.Size(ctx)
	if err != nil {
		return StorageStats{}, fail("getStorageStats", "", "failed to measure storage", err)
	}

	available := s.capacity - size
	if available < 0 {
		available = 0
	}

	return StorageStats{
		TotalEntries:   len(idx.EntryIDs),
		StorageSize:    size,
		LastUpdated:    idx.LastUpdated,
		AvailableSpace: available,
	}, nil
}

// Close releases the read cache. The medium is owned by the caller.
func (s *Store) Close() {
	s.cache.close()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
