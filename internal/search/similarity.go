package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/hession/taskmem/internal/entry"
)

// SimilarTask one similarity match
type SimilarTask struct {
	Entry        *entry.Entry `json:"entry"`
	Similarity   float64      `json:"similarity"`
	MatchedTerms []string     `json:"matchedTerms"`
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)), compared
// case-insensitively over runes. Two empty strings are identical.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// matchedTerms returns query tokens that also appear among the task tokens.
// It is independent of the edit-distance score.
func matchedTerms(queryTokens []string, task string) []string {
	taskTokens := make(map[string]bool)
	for _, tok := range tokenize(task) {
		taskTokens[tok] = true
	}

	terms := []string{}
	seen := make(map[string]bool)
	for _, tok := range queryTokens {
		if taskTokens[tok] && !seen[tok] {
			seen[tok] = true
			terms = append(terms, tok)
		}
	}
	return terms
}

// FindSimilarTasks ranks entries by task similarity to the given text.
// Entries scoring below threshold are dropped; limit <= 0 keeps all.
func (e *Engine) FindSimilarTasks(task string, threshold float64, limit int) []SimilarTask {
	queryTokens := tokenize(task)

	var results []SimilarTask
	for _, en := range e.Entries() {
		score := Similarity(task, en.Task)
		if score < threshold {
			continue
		}
		results = append(results, SimilarTask{
			Entry:        en,
			Similarity:   score,
			MatchedTerms: matchedTerms(queryTokens, en.Task),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
