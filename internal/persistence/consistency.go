package persistence

import (
	"context"
	"sort"
	"strings"

	"github.com/hession/taskmem/internal/entry"
	"github.com/hession/taskmem/internal/logger"
)

// ConsistencyReport compares the index record with the entry keys on the
// medium. Loading tolerates every problem listed here; the report exists
// for diagnostics and explicit repair.
type ConsistencyReport struct {
	CheckTime       int64    `json:"checkTime"`
	IsConsistent    bool     `json:"isConsistent"`
	StoredEntries   int      `json:"storedEntries"`
	IndexedEntries  int      `json:"indexedEntries"`
	OrphanedEntries []string `json:"orphanedEntries,omitempty"` // stored, not indexed
	DanglingIDs     []string `json:"danglingIds,omitempty"`     // indexed, not stored
	InvalidEntries  []string `json:"invalidEntries,omitempty"`  // indexed, undecodable
}

// removableIDs lists ids whose stored records Repair deletes, in a new
// slice so the report fields are never written through
func (r *ConsistencyReport) removableIDs() []string {
	ids := make([]string, 0, len(r.OrphanedEntries)+len(r.InvalidEntries))
	ids = append(ids, r.OrphanedEntries...)
	return append(ids, r.InvalidEntries...)
}

// RepairResult counts what Repair removed
type RepairResult struct {
	RemovedOrphans int `json:"removedOrphans"`
	DroppedIDs     int `json:"droppedIds"`
}

// CheckConsistency enumerates the medium and reports disagreements with
// the index. It changes nothing.
func (s *Store) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkConsistency(ctx)
}

// checkConsistency callers hold s.mu
func (s *Store) checkConsistency(ctx context.Context) (*ConsistencyReport, error) {
	idx, err := s.loadIndex(ctx)
	if err != nil {
		return nil, fail("checkConsistency", "", "failed to read index", err)
	}
	keys, err := s.medium.Keys(ctx)
	if err != nil {
		return nil, fail("checkConsistency", "", "failed to list keys", err)
	}

	entryPrefix := s.entryKey("")
	stored := make(map[string]bool)
	for _, key := range keys {
		if strings.HasPrefix(key, entryPrefix) {
			stored[strings.TrimPrefix(key, entryPrefix)] = true
		}
	}

	report := &ConsistencyReport{
		CheckTime:      nowMillis(),
		StoredEntries:  len(stored),
		IndexedEntries: len(idx.EntryIDs),
	}

	indexed := make(map[string]bool, len(idx.EntryIDs))
	for _, id := range idx.EntryIDs {
		indexed[id] = true
		if !stored[id] {
			report.DanglingIDs = append(report.DanglingIDs, id)
			continue
		}

		raw, ok, err := s.medium.Get(ctx, s.entryKey(id))
		if err != nil {
			return nil, fail("checkConsistency", id, "failed to read entry", err)
		}
		if !ok {
			report.DanglingIDs = append(report.DanglingIDs, id)
			continue
		}
		if _, err := entry.DecodeEntry([]byte(raw)); err != nil {
			report.InvalidEntries = append(report.InvalidEntries, id)
		}
	}

	for id := range stored {
		if !indexed[id] {
			report.OrphanedEntries = append(report.OrphanedEntries, id)
		}
	}
	sort.Strings(report.OrphanedEntries)

	report.IsConsistent = len(report.OrphanedEntries) == 0 &&
		len(report.DanglingIDs) == 0 &&
		len(report.InvalidEntries) == 0
	return report, nil
}

// Repair removes orphaned entry records and drops dangling or invalid ids
// from the index. Invalid records are removed as well.
func (s *Store) Repair(ctx context.Context) (*RepairResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.checkConsistency(ctx)
	if err != nil {
		return nil, err
	}
	result := &RepairResult{}
	if report.IsConsistent {
		return result, nil
	}

	for _, id := range report.removableIDs() {
		if err := s.medium.Remove(ctx, s.entryKey(id)); err != nil {
			return result, fail("repair", id, "failed to remove entry", err)
		}
		s.cache.del(id)
	}
	result.RemovedOrphans = len(report.OrphanedEntries)

	drop := len(report.DanglingIDs) + len(report.InvalidEntries)
	if drop > 0 {
		idx, err := s.loadIndex(ctx)
		if err != nil {
			return result, fail("repair", "", "failed to read index", err)
		}
		for _, id := range report.DanglingIDs {
			idx.remove(id)
		}
		for _, id := range report.InvalidEntries {
			idx.remove(id)
		}
		if err := s.writeIndex(ctx, idx); err != nil {
			return result, fail("repair", "", "failed to update index", err)
		}
	}
	result.DroppedIDs = drop

	logger.Info("Repaired storage: removed %d orphaned records, dropped %d index ids",
		result.RemovedOrphans, result.DroppedIDs)
	return result, nil
}
