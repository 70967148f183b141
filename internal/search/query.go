package search

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hession/taskmem/internal/entry"
	"github.com/hession/taskmem/internal/logger"
)

// SortBy selects the ordering of search results
type SortBy string

const (
	SortNone      SortBy = ""
	SortTimestamp SortBy = "timestamp"
	SortDuration  SortBy = "duration"
	SortRelevance SortBy = "relevance"
)

// SortOrder selects ascending or descending order
type SortOrder string

const (
	OrderDesc SortOrder = "desc"
	OrderAsc  SortOrder = "asc"
)

// TimeRange inclusive timestamp bounds in epoch milliseconds; zero is open
type TimeRange struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// Options search filters. Every set field must match (logical AND).
type Options struct {
	Query       string     `json:"query,omitempty"`
	Timeframe   *TimeRange `json:"timeframe,omitempty"`
	SuccessOnly *bool      `json:"successOnly,omitempty"`
	Tags        []string   `json:"tags,omitempty"` // entry must carry all of them
	MinDuration *float64   `json:"minDuration,omitempty"`
	MaxDuration *float64   `json:"maxDuration,omitempty"`
	SortBy      SortBy     `json:"sortBy,omitempty"`
	SortOrder   SortOrder  `json:"sortOrder,omitempty"`
	Limit       int        `json:"limit,omitempty"` // 0 means no limit
}

// Result search output
type Result struct {
	Entries     []*entry.Entry `json:"entries"`
	TotalCount  int            `json:"totalCount"` // matches before Limit
	SearchTime  time.Duration  `json:"searchTime"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Search filters, sorts and limits the working set. It never fails: an
// internal error yields an empty result that still reports SearchTime.
func (e *Engine) Search(opts Options) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			serr := &SearchError{Op: "search", Err: fmt.Errorf("%v", r)}
			logger.Error("%v", serr)
			res = Result{Entries: []*entry.Entry{}}
		}
		res.SearchTime = time.Since(start)
	}()

	snapshot := e.Entries()
	query := strings.ToLower(opts.Query)

	matched := make([]*entry.Entry, 0, len(snapshot))
	for _, en := range snapshot {
		ok, err := matches(en, query, &opts)
		if err != nil {
			logger.Error("%v", &SearchError{Op: "search", Err: err})
			return Result{Entries: []*entry.Entry{}}
		}
		if ok {
			matched = append(matched, en)
		}
	}

	sortEntries(matched, opts.SortBy, opts.SortOrder)

	total := len(matched)
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	res = Result{Entries: matched, TotalCount: total}
	if query != "" {
		res.Suggestions = e.GetSuggestions(query)
	}
	return res
}

func matches(en *entry.Entry, query string, opts *Options) (bool, error) {
	if query != "" {
		ok, err := matchesQuery(en, query)
		if err != nil || !ok {
			return false, err
		}
	}
	if tf := opts.Timeframe; tf != nil {
		if tf.Start != 0 && en.Timestamp < tf.Start {
			return false, nil
		}
		if tf.End != 0 && en.Timestamp > tf.End {
			return false, nil
		}
	}
	if opts.SuccessOnly != nil && en.Metadata.Success != *opts.SuccessOnly {
		return false, nil
	}
	for _, tag := range opts.Tags {
		if !en.HasTag(tag) {
			return false, nil
		}
	}
	if opts.MinDuration != nil && en.Metadata.Duration < *opts.MinDuration {
		return false, nil
	}
	if opts.MaxDuration != nil && en.Metadata.Duration > *opts.MaxDuration {
		return false, nil
	}
	return true, nil
}

// matchesQuery looks for query in the task, the tags and the JSON form of
// the result payload. query is already lowercased.
func matchesQuery(en *entry.Entry, query string) (bool, error) {
	if strings.Contains(strings.ToLower(en.Task), query) {
		return true, nil
	}
	for _, tag := range en.Metadata.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true, nil
		}
	}
	if en.Result.IsZero() {
		return false, nil
	}
	data, err := json.Marshal(en.Result.Payload())
	if err != nil {
		return false, fmt.Errorf("marshal result of %s: %w", en.ID, err)
	}
	return strings.Contains(strings.ToLower(string(data)), query), nil
}

func sortEntries(entries []*entry.Entry, by SortBy, order SortOrder) {
	var less func(a, b *entry.Entry) bool
	switch by {
	case SortTimestamp:
		less = func(a, b *entry.Entry) bool { return a.Timestamp < b.Timestamp }
	case SortDuration:
		less = func(a, b *entry.Entry) bool { return a.Metadata.Duration < b.Metadata.Duration }
	case SortRelevance:
		// Coarse: successful entries rank above failed ones
		less = func(a, b *entry.Entry) bool { return !a.Metadata.Success && b.Metadata.Success }
	default:
		return
	}

	asc := order == OrderAsc
	sort.SliceStable(entries, func(i, j int) bool {
		if asc {
			return less(entries[i], entries[j])
		}
		return less(entries[j], entries[i])
	})
}

// Bool returns a pointer to b, for Options.SuccessOnly
func Bool(b bool) *bool {
	return &b
}

// Float returns a pointer to f, for duration bounds
func Float(f float64) *float64 {
	return &f
}
