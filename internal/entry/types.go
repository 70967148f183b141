// Package entry defines the task-memory record and its validation rules.
package entry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DefaultPriority is applied when the recorder does not supply one.
const DefaultPriority = 5

// Entry one recorded task execution
type Entry struct {
	ID        string   `json:"id"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds
	Task      string   `json:"task"`
	Result    Result   `json:"result"`
	Metadata  Metadata `json:"metadata"`
}

// Metadata outcome information attached to an entry
type Metadata struct {
	Success  bool     `json:"success"`
	Duration float64  `json:"duration"` // milliseconds
	Errors   []string `json:"errors"`
	Tags     []string `json:"tags"`
	Priority int      `json:"priority"`
}

// Time returns the entry timestamp as a time.Time
func (e *Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// HasTag reports whether the entry carries the given tag
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Metadata.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ResultKind discriminates the Result union
type ResultKind string

const (
	ResultNone       ResultKind = "none"
	ResultStructured ResultKind = "structured"
	ResultText       ResultKind = "text"
	ResultErrorInfo  ResultKind = "error"
)

// Result is the payload produced by a task. Exactly one of the fields
// matching Kind is meaningful.
type Result struct {
	Kind       ResultKind     `json:"kind"`
	Structured map[string]any `json:"structured,omitempty"`
	Text       string         `json:"text,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// StructuredResult wraps a map payload in its JSON form, so numbers read
// as float64 both before and after a save. A map that cannot be encoded is
// kept as given and fails at save time.
func StructuredResult(m map[string]any) Result {
	if normalized, err := NormalizeStructured(m); err == nil {
		m = normalized
	}
	return Result{Kind: ResultStructured, Structured: m}
}

// NormalizeStructured returns the map as it reads back from JSON
func NormalizeStructured(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode structured result: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode structured result: %w", err)
	}
	return out, nil
}

// TextResult wraps a plain text payload
func TextResult(s string) Result {
	return Result{Kind: ResultText, Text: s}
}

// ErrorResult wraps a list of error messages
func ErrorResult(msgs ...string) Result {
	return Result{Kind: ResultErrorInfo, Errors: msgs}
}

// NewResult classifies an arbitrary payload into a Result.
func NewResult(v any) Result {
	switch val := v.(type) {
	case nil:
		return Result{Kind: ResultNone}
	case Result:
		return val
	case string:
		return TextResult(val)
	case error:
		return ErrorResult(val.Error())
	case []error:
		msgs := make([]string, 0, len(val))
		for _, err := range val {
			if err != nil {
				msgs = append(msgs, err.Error())
			}
		}
		return ErrorResult(msgs...)
	case map[string]any:
		return StructuredResult(val)
	}

	// Normalize everything else through JSON so the stored form is stable
	data, err := json.Marshal(v)
	if err != nil {
		return TextResult(fmt.Sprint(v))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err == nil {
		return Result{Kind: ResultStructured, Structured: m}
	}
	return TextResult(strings.Trim(string(data), `"`))
}

// ErrorStrings returns the error messages carried by an error-info result
func (r Result) ErrorStrings() []string {
	if r.Kind != ResultErrorInfo {
		return nil
	}
	out := make([]string, len(r.Errors))
	copy(out, r.Errors)
	return out
}

// Payload returns the value carried for the result's kind
func (r Result) Payload() any {
	switch r.Kind {
	case ResultStructured:
		return r.Structured
	case ResultText:
		return r.Text
	case ResultErrorInfo:
		return r.Errors
	default:
		return nil
	}
}

// IsZero reports whether the result carries no payload
func (r Result) IsZero() bool {
	return r.Kind == "" || r.Kind == ResultNone
}

// SanitizeTask trims a task description and strips control characters.
// The result may be empty but is never an invalid string.
func SanitizeTask(task string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, task)
	return strings.TrimSpace(cleaned)
}

var errNilEntry = errors.New("entry is nil")
