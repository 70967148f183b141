package cli

import (
	"fmt"
	"strings"

	"github.com/hession/taskmem/internal/config"
	"github.com/hession/taskmem/internal/memory"
	"github.com/hession/taskmem/internal/search"
	"github.com/spf13/pflag"
)

// Flag sets are shared by the cobra subcommands and the REPL so both accept
// the same syntax.

// RecordArgs flags of the record command
type RecordArgs struct {
	Fail     bool
	Duration float64 // negative means measure
	Tags     []string
	Priority int
	Result   string
	Errors   []string
}

// BindRecordFlags registers record flags on fs
func BindRecordFlags(fs *pflag.FlagSet) *RecordArgs {
	a := &RecordArgs{}
	fs.BoolVar(&a.Fail, "fail", false, "mark the task as failed")
	fs.Float64Var(&a.Duration, "duration", -1, "execution time in milliseconds")
	fs.StringSliceVarP(&a.Tags, "tag", "t", nil, "tag to attach (repeatable)")
	fs.IntVar(&a.Priority, "priority", 0, "priority 1-10 (default 5)")
	fs.StringVar(&a.Result, "result", "", "text result of the task")
	fs.StringArrayVar(&a.Errors, "error", nil, "error message (repeatable)")
	return a
}

// Payload returns the task result to record
func (a *RecordArgs) Payload() any {
	if a.Result != "" {
		return a.Result
	}
	return nil
}

// RecordOptions converts the flags into facade options
func (a *RecordArgs) RecordOptions() memory.RecordOptions {
	success := !a.Fail && len(a.Errors) == 0
	opts := memory.RecordOptions{
		Success:  &success,
		Tags:     a.Tags,
		Priority: a.Priority,
	}
	if len(a.Errors) > 0 {
		opts.Errors = a.Errors
	}
	if a.Duration >= 0 {
		d := a.Duration
		opts.Duration = &d
	}
	return opts
}

// SearchArgs flags of the search command
type SearchArgs struct {
	Tags        []string
	Success     bool
	Failed      bool
	Since       int64
	Until       int64
	MinDuration float64
	MaxDuration float64
	Sort        string
	Order       string
	Limit       int
}

// BindSearchFlags registers search flags on fs
func BindSearchFlags(fs *pflag.FlagSet, cfg config.SearchConfig) *SearchArgs {
	a := &SearchArgs{}
	fs.StringSliceVarP(&a.Tags, "tag", "t", nil, "required tag (repeatable, all must match)")
	fs.BoolVar(&a.Success, "success", false, "only successful tasks")
	fs.BoolVar(&a.Failed, "failed", false, "only failed tasks")
	fs.Int64Var(&a.Since, "since", 0, "earliest timestamp (epoch ms)")
	fs.Int64Var(&a.Until, "until", 0, "latest timestamp (epoch ms)")
	fs.Float64Var(&a.MinDuration, "min-duration", -1, "minimum duration in ms")
	fs.Float64Var(&a.MaxDuration, "max-duration", -1, "maximum duration in ms")
	fs.StringVar(&a.Sort, "sort", "", "sort by timestamp, duration or relevance")
	fs.StringVar(&a.Order, "order", string(search.OrderDesc), "sort order: asc or desc")
	fs.IntVarP(&a.Limit, "limit", "n", cfg.DefaultLimit, "maximum results (0 for all)")
	return a
}

// Options converts the flags and query into search options
func (a *SearchArgs) Options(query string) (search.Options, error) {
	opts := search.Options{
		Query: query,
		Tags:  a.Tags,
		Limit: a.Limit,
	}

	switch {
	case a.Success && a.Failed:
		return opts, fmt.Errorf("--success and --failed are mutually exclusive")
	case a.Success:
		opts.SuccessOnly = search.Bool(true)
	case a.Failed:
		opts.SuccessOnly = search.Bool(false)
	}

	if a.Since != 0 || a.Until != 0 {
		opts.Timeframe = &search.TimeRange{Start: a.Since, End: a.Until}
	}
	if a.MinDuration >= 0 {
		opts.MinDuration = search.Float(a.MinDuration)
	}
	if a.MaxDuration >= 0 {
		opts.MaxDuration = search.Float(a.MaxDuration)
	}

	switch sortBy := search.SortBy(strings.ToLower(a.Sort)); sortBy {
	case search.SortNone, search.SortTimestamp, search.SortDuration, search.SortRelevance:
		opts.SortBy = sortBy
	default:
		return opts, fmt.Errorf("unknown sort field %q", a.Sort)
	}

	switch order := search.SortOrder(strings.ToLower(a.Order)); order {
	case "", search.OrderDesc:
		opts.SortOrder = search.OrderDesc
	case search.OrderAsc:
		opts.SortOrder = search.OrderAsc
	default:
		return opts, fmt.Errorf("unknown sort order %q", a.Order)
	}

	if a.Limit < 0 {
		return opts, fmt.Errorf("--limit cannot be negative")
	}
	return opts, nil
}

// SimilarArgs flags of the similar command
type SimilarArgs struct {
	Threshold float64
	Limit     int
}

// BindSimilarFlags registers similar flags on fs
func BindSimilarFlags(fs *pflag.FlagSet, cfg config.SearchConfig) *SimilarArgs {
	a := &SimilarArgs{}
	fs.Float64Var(&a.Threshold, "threshold", cfg.SimilarityThreshold, "minimum similarity 0-1")
	fs.IntVarP(&a.Limit, "limit", "n", cfg.SimilarLimit, "maximum results (0 for all)")
	return a
}

// RecentArgs flags of the recent command
type RecentArgs struct {
	Limit  int
	Offset int
}

// BindRecentFlags registers recent flags on fs
func BindRecentFlags(fs *pflag.FlagSet, cfg config.SearchConfig) *RecentArgs {
	a := &RecentArgs{}
	fs.IntVarP(&a.Limit, "limit", "n", cfg.DefaultLimit, "entries per page (0 for all)")
	fs.IntVar(&a.Offset, "offset", 0, "entries to skip")
	return a
}
