// Package search implements filtering, similarity matching and pattern
// extraction over an in-memory snapshot of task-memory entries.
package search

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hession/taskmem/internal/entry"
)

// minTokenLength tokens must be longer than this to be indexed or matched
const minTokenLength = 2

// Engine holds the working set and its derived indexes. The working set is
// replaced wholesale by UpdateEntries; indexes are rebuilt each time.
type Engine struct {
	mu sync.RWMutex

	entries   []*entry.Entry
	wordIndex map[string][]string // token -> entry ids
	tagIndex  map[string][]string // tag -> entry ids
	tagOrder  []string            // tags in first-seen order
	positions map[string][]int    // entry id -> working-set positions

	loc *time.Location
}

// Option configures an Engine
type Option func(*Engine)

// WithLocation sets the time zone used for hour-of-day patterns
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine creates an empty search engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		wordIndex: make(map[string][]string),
		tagIndex:  make(map[string][]string),
		positions: make(map[string][]int),
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// UpdateEntries replaces the working set and rebuilds both indexes
func (e *Engine) UpdateEntries(entries []*entry.Entry) {
	snapshot := make([]*entry.Entry, 0, len(entries))
	words := make(map[string][]string)
	tags := make(map[string][]string)
	positions := make(map[string][]int)
	var tagOrder []string

	for _, en := range entries {
		if en == nil {
			continue
		}
		positions[en.ID] = append(positions[en.ID], len(snapshot))
		snapshot = append(snapshot, en)

		seen := make(map[string]bool)
		for _, tok := range tokenize(en.Task) {
			if !seen[tok] {
				seen[tok] = true
				words[tok] = append(words[tok], en.ID)
			}
		}
		for _, tag := range en.Metadata.Tags {
			if _, ok := tags[tag]; !ok {
				tagOrder = append(tagOrder, tag)
			}
			tags[tag] = append(tags[tag], en.ID)
		}
	}

	e.mu.Lock()
	e.entries = snapshot
	e.wordIndex = words
	e.tagIndex = tags
	e.tagOrder = tagOrder
	e.positions = positions
	e.mu.Unlock()
}

// Len returns the working-set size
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}

// Entries returns a copy of the working set in insertion order
func (e *Engine) Entries() []*entry.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*entry.Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

// LookupWord returns ids of entries whose task contains the token
func (e *Engine) LookupWord(token string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.wordIndex[strings.ToLower(token)]...)
}

// EntriesWithTag returns ids of entries carrying the tag
func (e *Engine) EntriesWithTag(tag string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.tagIndex[tag]...)
}

// tokenize lowercases text and returns whitespace tokens longer than
// minTokenLength runes
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > minTokenLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// SearchError describes an unexpected failure inside a search. It is logged
// and never returned to callers.
type SearchError struct {
	Op  string
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search error [%s]: %v", e.Op, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}
