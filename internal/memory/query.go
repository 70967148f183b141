package memory

import (
	"context"
	"sort"

	"github.com/hession/taskmem/internal/entry"
	"github.com/hession/taskmem/internal/logger"
	"github.com/hession/taskmem/internal/persistence"
	"github.com/hession/taskmem/internal/search"
)

// Version reported by GetCapabilities
const Version = "1.0.0"

// Search runs a filtered query over the working set
func (s *Store) Search(opts search.Options) search.Result {
	return s.engine.Search(opts)
}

// FindSimilarTasks ranks stored tasks by similarity to task
func (s *Store) FindSimilarTasks(task string, threshold float64, limit int) []search.SimilarTask {
	return s.engine.FindSimilarTasks(task, threshold, limit)
}

// FindPatterns aggregates task, hour-of-day and tag statistics
func (s *Store) FindPatterns() search.Patterns {
	return s.engine.FindPatterns()
}

// GetSuggestions returns task texts and tags containing query
func (s *Store) GetSuggestions(query string) []string {
	return s.engine.GetSuggestions(query)
}

// GetRecentTasks returns the newest entries first
func (s *Store) GetRecentTasks(limit int) []*entry.Entry {
	return s.engine.Search(search.Options{
		SortBy:    search.SortTimestamp,
		SortOrder: search.OrderDesc,
		Limit:     limit,
	}).Entries
}

// ListTasks pages through entries newest first and returns the total count
func (s *Store) ListTasks(offset, limit int) ([]*entry.Entry, int) {
	all := s.engine.Entries()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp > all[j].Timestamp
	})

	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*entry.Entry{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total
}

// TagCount tag frequency
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats summary of the working set and storage usage
type Stats struct {
	TotalTasks      int                      `json:"totalTasks"`
	SuccessfulTasks int                      `json:"successfulTasks"`
	FailedTasks     int                      `json:"failedTasks"`
	SuccessRate     float64                  `json:"successRate"`     // 0..1
	AverageDuration float64                  `json:"averageDuration"` // milliseconds
	TopTags         []TagCount               `json:"topTags"`
	StorageUsage    float64                  `json:"storageUsage"` // percent of capacity
	Storage         persistence.StorageStats `json:"storage"`
}

// GetStats computes statistics on demand. Storage failures are logged and
// leave the storage fields zero.
func (s *Store) GetStats(ctx context.Context) Stats {
	entries := s.engine.Entries()

	stats := Stats{
		TotalTasks: len(entries),
		TopTags:    []TagCount{},
	}

	var totalDuration float64
	for _, e := range entries {
		if e.Metadata.Success {
			stats.SuccessfulTasks++
		} else {
			stats.FailedTasks++
		}
		totalDuration += e.Metadata.Duration
	}
	if len(entries) > 0 {
		stats.SuccessRate = float64(stats.SuccessfulTasks) / float64(len(entries))
		stats.AverageDuration = totalDuration / float64(len(entries))
	}

	for _, tp := range s.engine.FindPatterns().TagPatterns {
		stats.TopTags = append(stats.TopTags, TagCount{Tag: tp.Tag, Count: tp.Count})
	}

	if !s.IsOpen() {
		return stats
	}
	storage, err := s.persist.GetStorageStats(ctx)
	if err != nil {
		logger.Warn("Storage stats unavailable: %v", err)
		return stats
	}
	stats.Storage = storage
	if capacity := s.persist.Capacity(); capacity > 0 {
		stats.StorageUsage = float64(storage.StorageSize) / float64(capacity) * 100
	}
	return stats
}

// Capabilities static description of the store's limits and features
type Capabilities struct {
	Version         string   `json:"version"`
	MaxEntries      int      `json:"maxEntries"`
	MaxStorageBytes int64    `json:"maxStorageBytes"`
	SortFields      []string `json:"sortFields"`
	Features        []string `json:"features"`
}

// GetCapabilities describes what this store supports
func (s *Store) GetCapabilities() Capabilities {
	return Capabilities{
		Version:         Version,
		MaxEntries:      s.maxEntries,
		MaxStorageBytes: s.persist.Capacity(),
		SortFields: []string{
			string(search.SortTimestamp),
			string(search.SortDuration),
			string(search.SortRelevance),
		},
		Features: []string{
			"search",
			"similarity",
			"patterns",
			"suggestions",
			"export",
			"import",
			"eviction",
		},
	}
}
