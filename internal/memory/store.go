// Package memory is the single entry point for recording and querying task
// executions. It keeps the persisted entries and the search index consistent
// and bounds the number of stored entries.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hession/taskmem/internal/entry"
	"github.com/hession/taskmem/internal/kv"
	"github.com/hession/taskmem/internal/logger"
	"github.com/hession/taskmem/internal/persistence"
	"github.com/hession/taskmem/internal/search"
)

// DefaultMaxEntries working-set capacity before eviction kicks in
const DefaultMaxEntries = 1000

var (
	// ErrNotOpen is returned by writes issued before Open
	ErrNotOpen = errors.New("memory store is not open")
	// ErrClosed is returned by Open after Close
	ErrClosed = errors.New("memory store is closed")
)

// Options memory store configuration
type Options struct {
	MaxEntries  int
	Persistence persistence.Options
	Location    *time.Location // hour-of-day patterns; defaults to time.Local
}

// DefaultOptions returns default memory store options
func DefaultOptions() Options {
	return Options{
		MaxEntries:  DefaultMaxEntries,
		Persistence: persistence.DefaultOptions(),
	}
}

// Option customizes a Store beyond Options
type Option func(*Store)

// WithClock replaces the wall clock used for timestamps and durations
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store coordinates persistence and search over one key/value medium
type Store struct {
	mu sync.Mutex

	medium  kv.Medium
	persist *persistence.Store
	engine  *search.Engine

	entries    []*entry.Entry // insertion order
	maxEntries int
	now        func() time.Time

	open   bool
	closed bool
}

// New creates a store on medium. Call Open before recording.
func New(medium kv.Medium, opts Options, options ...Option) (*Store, error) {
	if medium == nil {
		return nil, errors.New("medium is nil")
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}

	persist, err := persistence.NewStore(medium, opts.Persistence)
	if err != nil {
		return nil, fmt.Errorf("failed to create persistence store: %w", err)
	}

	s := &Store{
		medium:     medium,
		persist:    persist,
		engine:     search.NewEngine(search.WithLocation(opts.Location)),
		maxEntries: opts.MaxEntries,
		now:        time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Open loads persisted entries into the working set. Opening twice is a no-op.
func (s *Store) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.open {
		return nil
	}

	entries, err := s.persist.RetrieveEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load entries: %w", err)
	}

	s.entries = entries
	s.engine.UpdateEntries(s.entries)
	s.open = true

	logger.Info("Memory store opened with %d entries (capacity %d)", len(entries), s.maxEntries)
	return nil
}

// IsOpen reports whether Open has completed
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Close releases the cache and the medium. The store cannot be reopened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.open = false
	s.entries = nil
	s.engine.UpdateEntries(nil)
	s.persist.Close()

	if err := s.medium.Close(); err != nil {
		return fmt.Errorf("failed to close medium: %w", err)
	}
	return nil
}

// RecordOptions overrides recorded metadata. Nil fields take defaults.
type RecordOptions struct {
	Success  *bool
	Duration *float64 // milliseconds; measured across the call when nil
	Errors   []string // defaults to the messages of an error result
	Tags     []string
	Priority int // 0 means entry.DefaultPriority
}

// RecordTask stores one task execution and returns its id. When the working
// set is full the oldest entry is evicted first.
func (s *Store) RecordTask(ctx context.Context, task string, result any, opts RecordOptions) (string, error) {
	start := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return "", ErrNotOpen
	}

	res := entry.NewResult(result)
	e := &entry.Entry{
		ID:        entry.GenerateID(),
		Timestamp: start.UnixMilli(),
		Task:      entry.SanitizeTask(task),
		Result:    res,
		Metadata: entry.Metadata{
			Success:  true,
			Errors:   []string{},
			Tags:     []string{},
			Priority: entry.DefaultPriority,
		},
	}
	if opts.Success != nil {
		e.Metadata.Success = *opts.Success
	}
	if opts.Errors != nil {
		e.Metadata.Errors = append([]string{}, opts.Errors...)
	} else if msgs := res.ErrorStrings(); msgs != nil {
		e.Metadata.Errors = msgs
	}
	if opts.Tags != nil {
		e.Metadata.Tags = append([]string{}, opts.Tags...)
	}
	if opts.Priority != 0 {
		e.Metadata.Priority = opts.Priority
	}
	if opts.Duration != nil {
		e.Metadata.Duration = *opts.Duration
	}

	if err := entry.Validate(e); err != nil {
		return "", fmt.Errorf("failed to record task: %w", err)
	}

	for len(s.entries) >= s.maxEntries {
		if err := s.evictOldest(ctx); err != nil {
			return "", fmt.Errorf("failed to record task: %w", err)
		}
	}

	if opts.Duration == nil {
		elapsed := s.now().Sub(start)
		if elapsed < 0 {
			elapsed = 0
		}
		e.Metadata.Duration = float64(elapsed) / float64(time.Millisecond)
	}

	if err := s.persist.SaveEntry(ctx, e); err != nil {
		return "", fmt.Errorf("failed to record task: %w", err)
	}

	s.entries = append(s.entries, e)
	s.engine.UpdateEntries(s.entries)

	logger.Debug("Recorded task %s (success=%v, %.1fms)", e.ID, e.Metadata.Success, e.Metadata.Duration)
	return e.ID, nil
}

// evictOldest removes the entry with the smallest timestamp, the earliest
// inserted on ties. Caller holds s.mu.
func (s *Store) evictOldest(ctx context.Context) error {
	if len(s.entries) == 0 {
		return nil
	}

	oldest := 0
	for i, e := range s.entries {
		if e.Timestamp < s.entries[oldest].Timestamp {
			oldest = i
		}
	}
	victim := s.entries[oldest]

	if _, err := s.persist.DeleteEntry(ctx, victim.ID); err != nil {
		return fmt.Errorf("failed to evict %s: %w", victim.ID, err)
	}
	s.entries = append(s.entries[:oldest:oldest], s.entries[oldest+1:]...)

	logger.Info("Evicted oldest entry %s to stay within %d entries", victim.ID, s.maxEntries)
	return nil
}

// DeleteEntry removes one entry from both layers. It reports whether the
// entry existed.
func (s *Store) DeleteEntry(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return false, ErrNotOpen
	}

	removed, err := s.persist.DeleteEntry(ctx, id)
	if err != nil {
		return false, err
	}

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			s.engine.UpdateEntries(s.entries)
			return true, nil
		}
	}
	return removed, nil
}

// ClearAll removes every entry from both layers
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return ErrNotOpen
	}

	err := s.persist.ClearAllEntries(ctx)
	// The working set always follows the durable copy, even after a partial clear
	if reloaded, rerr := s.persist.RetrieveEntries(ctx); rerr == nil {
		s.entries = reloaded
	} else if err == nil {
		s.entries = nil
	}
	s.engine.UpdateEntries(s.entries)
	return err
}

// ExportData serializes all persisted entries and the index
func (s *Store) ExportData(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return "", ErrNotOpen
	}
	return s.persist.ExportData(ctx)
}

// ImportData saves every valid entry of a snapshot and reloads the working
// set. It returns the number of entries imported.
func (s *Store) ImportData(ctx context.Context, snapshot string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return 0, ErrNotOpen
	}

	n, err := s.persist.ImportData(ctx, snapshot)
	if n > 0 {
		if rerr := s.reload(ctx); rerr != nil && err == nil {
			err = rerr
		}
	}
	return n, err
}

// reload replaces the working set from persistence and applies the
// capacity bound. Caller holds s.mu.
func (s *Store) reload(ctx context.Context) error {
	entries, err := s.persist.RetrieveEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload entries: %w", err)
	}
	s.entries = entries

	for len(s.entries) > s.maxEntries {
		if err := s.evictOldest(ctx); err != nil {
			s.engine.UpdateEntries(s.entries)
			return err
		}
	}
	s.engine.UpdateEntries(s.entries)
	return nil
}

// CheckConsistency reports disagreements between the index and the medium
func (s *Store) CheckConsistency(ctx context.Context) (*persistence.ConsistencyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, ErrNotOpen
	}
	return s.persist.CheckConsistency(ctx)
}

// Repair fixes the problems CheckConsistency reports and reloads the
// working set
func (s *Store) Repair(ctx context.Context) (*persistence.RepairResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, ErrNotOpen
	}

	result, err := s.persist.Repair(ctx)
	if err != nil {
		return result, err
	}
	return result, s.reload(ctx)
}
