package persistence

import (
	"context"
	"encoding/json"
	"fmt"
)

// Index is the authoritative list of stored entries plus size bookkeeping.
// Loading never enumerates the medium to discover entries.
type Index struct {
	EntryIDs     []string `json:"entryIds"`
	TotalEntries int      `json:"totalEntries"`
	LastUpdated  int64    `json:"lastUpdated"` // epoch milliseconds
	StorageSize  int64    `json:"storageSize"` // bytes, estimated at last write
}

func (idx *Index) contains(id string) bool {
	for _, existing := range idx.EntryIDs {
		if existing == id {
			return true
		}
	}
	return false
}

func (idx *Index) remove(id string) {
	kept := idx.EntryIDs[:0]
	for _, existing := range idx.EntryIDs {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	idx.EntryIDs = kept
}

// loadIndex reads the index record; a missing record is an empty index.
// Callers hold s.mu.
func (s *Store) loadIndex(ctx context.Context) (*Index, error) {
	raw, ok, err := s.medium.Get(ctx, s.indexKey())
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Index{EntryIDs: []string{}}, nil
	}

	var idx Index
	if err := json.Unmarshal([]byte(raw), &idx); err != nil {
		return nil, fmt.Errorf("corrupt index record: %w", err)
	}
	if idx.EntryIDs == nil {
		idx.EntryIDs = []string{}
	}
	return &idx, nil
}

// writeIndex refreshes the bookkeeping fields and stores the index.
// Callers hold s.mu.
func (s *Store) writeIndex(ctx context.Context, idx *Index) error {
	size, err := s.medium.Size(ctx)
	if err != nil {
		return err
	}

	idx.TotalEntries = len(idx.EntryIDs)
	idx.LastUpdated = nowMillis()
	idx.StorageSize = size

	data, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return s.medium.Set(ctx, s.indexKey(), string(data))
}

// Index returns a copy of the current index record
func (s *Store) Index(ctx context.Context) (*Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, fail("index", "", "failed to read index", err)
	}
	cp := *idx
	cp.EntryIDs = append([]string(nil), idx.EntryIDs...)
	return &cp, nil
}
