package search

import (
	"sort"
	"strings"
	"unicode"
)

// maxSuggestions caps GetSuggestions output
const maxSuggestions = 10

// GetSuggestions returns up to 10 distinct task texts and tags containing
// query, case-insensitively. Tasks come first, then tags, each in
// insertion order.
func (e *Engine) GetSuggestions(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	suggestions := []string{}
	seen := make(map[string]bool)
	add := func(s string) bool {
		if s == "" || seen[s] || !strings.Contains(strings.ToLower(s), query) {
			return false
		}
		seen[s] = true
		suggestions = append(suggestions, s)
		return len(suggestions) >= maxSuggestions
	}

	for _, pos := range e.taskCandidates(query) {
		if add(e.entries[pos].Task) {
			return suggestions
		}
	}
	for _, tag := range e.tagOrder {
		if add(tag) {
			return suggestions
		}
	}
	return suggestions
}

// taskCandidates returns working-set positions, ascending, of entries whose
// task may contain query. A query without whitespace and longer than
// minTokenLength lies inside one indexed token, so only the word index is
// consulted; shorter or multi-word queries fall back to every entry.
// Caller holds e.mu.
func (e *Engine) taskCandidates(query string) []int {
	if len([]rune(query)) <= minTokenLength || strings.IndexFunc(query, unicode.IsSpace) >= 0 {
		all := make([]int, len(e.entries))
		for i := range all {
			all[i] = i
		}
		return all
	}

	picked := make(map[int]bool)
	for token, ids := range e.wordIndex {
		if !strings.Contains(token, query) {
			continue
		}
		for _, id := range ids {
			for _, pos := range e.positions[id] {
				picked[pos] = true
			}
		}
	}

	out := make([]int, 0, len(picked))
	for pos := range picked {
		out = append(out, pos)
	}
	sort.Ints(out)
	return out
}
