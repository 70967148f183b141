package persistence

import (
	"context"
	"encoding/json"

	"github.com/hession/taskmem/internal/entry"
	"github.com/hession/taskmem/internal/logger"
)

// SnapshotVersion is written into every export
const SnapshotVersion = "1.0"

// Snapshot is the export/import document
type Snapshot struct {
	Version   string         `json:"version"`
	Timestamp int64          `json:"timestamp"`
	Entries   []*entry.Entry `json:"entries"`
	Metadata  Index          `json:"metadata"`
}

// rawSnapshot defers entry decoding so each entry can be validated alone
type rawSnapshot struct {
	Version   string            `json:"version"`
	Timestamp int64             `json:"timestamp"`
	Entries   []json.RawMessage `json:"entries"`
	Metadata  json.RawMessage   `json:"metadata"`
}

// ExportData serializes every readable entry and the index into a snapshot
func (s *Store) ExportData(ctx context.Context) (string, error) {
	entries, err := s.RetrieveEntries(ctx)
	if err != nil {
		return "", err
	}
	idx, err := s.Index(ctx)
	if err != nil {
		return "", err
	}

	snap := Snapshot{
		Version:   SnapshotVersion,
		Timestamp: nowMillis(),
		Entries:   entries,
		Metadata:  *idx,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fail("exportData", "", "failed to serialize snapshot", err)
	}

	logger.Info("Exported %d entries", len(entries))
	return string(data), nil
}

// ImportData saves every valid entry found in a snapshot and returns how
// many were imported. Invalid entries are skipped; a write failure stops the
// import and is returned with the count reached so far.
func (s *Store) ImportData(ctx context.Context, snapshot string) (int, error) {
	var snap rawSnapshot
	if err := json.Unmarshal([]byte(snapshot), &snap); err != nil {
		return 0, fail("importData", "", "failed to parse snapshot", err)
	}

	imported := 0
	for i, raw := range snap.Entries {
		e, err := entry.DecodeEntry(raw)
		if err != nil {
			logger.Warn("Skipping invalid entry #%d in snapshot: %v", i, err)
			continue
		}
		if err := s.SaveEntry(ctx, e); err != nil {
			return imported, err
		}
		imported++
	}

	logger.Info("Imported %d of %d entries (snapshot version %s)", imported, len(snap.Entries), snap.Version)
	return imported, nil
}
