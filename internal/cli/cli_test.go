package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/hession/taskmem/internal/config"
	"github.com/hession/taskmem/internal/kv"
	"github.com/hession/taskmem/internal/memory"
	"github.com/hession/taskmem/internal/search"
)

func setupCommands(t *testing.T) *Commands {
	t.Helper()
	store, err := memory.New(kv.NewMemoryMedium(0), memory.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewCommands(store, config.DefaultConfig())
}

func run(t *testing.T, c *Commands, cmd string) string {
	t.Helper()
	handled, out := c.HandleCommand(context.Background(), cmd)
	if !handled {
		t.Fatalf("command %q was not handled", cmd)
	}
	return out
}

func TestVersion(t *testing.T) {
	if Version != "1.0.0" {
		t.Errorf("Expected Version to be '1.0.0', got '%s'", Version)
	}
}

func TestTruncateForDisplay(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxLen   int
		expected string
	}{
		{name: "short text", text: "Hello", maxLen: 10, expected: "Hello"},
		{name: "exact length", text: "Hello", maxLen: 5, expected: "Hello"},
		{name: "truncate", text: "Hello World", maxLen: 5, expected: "Hello..."},
		{name: "with newlines", text: "Hello\nWorld", maxLen: 20, expected: "Hello World"},
		{name: "with carriage return", text: "Hello\r\nWorld", maxLen: 20, expected: "Hello World"},
		{name: "with leading/trailing spaces", text: "  Hello  ", maxLen: 20, expected: "Hello"},
		{name: "empty string", text: "", maxLen: 10, expected: ""},
		{name: "wide characters", text: "任务记录", maxLen: 4, expected: "任务..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateForDisplay(tt.text, tt.maxLen)
			if got != tt.expected {
				t.Errorf("truncateForDisplay(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.expected)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "seconds", duration: 30 * time.Second, expected: "30.0s"},
		{name: "fractional seconds", duration: 1500 * time.Millisecond, expected: "1.5s"},
		{name: "minutes", duration: 5 * time.Minute, expected: "5m"},
		{name: "hours", duration: 3 * time.Hour, expected: "3h"},
		{name: "days", duration: 48 * time.Hour, expected: "2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatDuration(tt.duration)
			if got != tt.expected {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatMillis(t *testing.T) {
	if got := formatMillis(120); got != "120ms" {
		t.Errorf("formatMillis(120) = %q", got)
	}
	if got := formatMillis(2500); got != "2.5s" {
		t.Errorf("formatMillis(2500) = %q", got)
	}
}

func TestGetCommandSuggestions(t *testing.T) {
	suggestions := GetCommandSuggestions()

	expectedCommands := []string{"/record", "/search", "/similar", "/recent", "/stats", "/patterns", "/export", "/import", "/doctor", "/exit"}
	foundCommands := make(map[string]bool)
	for _, s := range suggestions {
		foundCommands[s.Text] = true
	}

	for _, cmd := range expectedCommands {
		if !foundCommands[cmd] {
			t.Errorf("Expected command '%s' in suggestions", cmd)
		}
	}

	for _, s := range suggestions {
		if s.Description == "" {
			t.Errorf("Suggestion '%s' has empty description", s.Text)
		}
	}
}

func TestHandleCommand_Unknown(t *testing.T) {
	c := setupCommands(t)

	if handled, _ := c.HandleCommand(context.Background(), "/nope"); handled {
		t.Error("Unknown command should not be handled")
	}
	if handled, _ := c.HandleCommand(context.Background(), "   "); handled {
		t.Error("Blank input should not be handled")
	}
}

func TestHandleCommand_RecordAndSearch(t *testing.T) {
	c := setupCommands(t)

	out := run(t, c, "/record Create file test.txt --duration 120 -t file")
	if !strings.Contains(out, "Task recorded") {
		t.Fatalf("Unexpected record output: %s", out)
	}
	out = run(t, c, "/record Deploy build --fail --error timeout")
	if !strings.Contains(out, "Task recorded") {
		t.Fatalf("Unexpected record output: %s", out)
	}

	out = run(t, c, "/search create")
	if !strings.Contains(out, "Create file test.txt") || strings.Contains(out, "Deploy build") {
		t.Errorf("Query search returned wrong tasks:\n%s", out)
	}

	out = run(t, c, "/search --failed")
	if !strings.Contains(out, "Deploy build") || strings.Contains(out, "Create file") {
		t.Errorf("Failed-only search returned wrong tasks:\n%s", out)
	}
	if !strings.Contains(out, "Error: timeout") {
		t.Errorf("Expected the error message in output:\n%s", out)
	}

	out = run(t, c, "/search --success")
	if !strings.Contains(out, "Create file test.txt") || strings.Contains(out, "Deploy build") {
		t.Errorf("Success-only search returned wrong tasks:\n%s", out)
	}

	out = run(t, c, "/search -t file -t missing")
	if !strings.Contains(out, "No matching tasks") {
		t.Errorf("Tags should be ANDed:\n%s", out)
	}

	out = run(t, c, "/search --success --failed")
	if !strings.Contains(out, "mutually exclusive") {
		t.Errorf("Expected a usage error:\n%s", out)
	}

	out = run(t, c, "/search --sort size")
	if !strings.Contains(out, "unknown sort field") {
		t.Errorf("Expected a usage error:\n%s", out)
	}

	out = run(t, c, "/search --bogus")
	if !strings.Contains(out, "❌") {
		t.Errorf("Unknown flag should be reported:\n%s", out)
	}
}

func TestHandleCommand_RecordRequiresTask(t *testing.T) {
	c := setupCommands(t)

	out := run(t, c, "/record --fail")
	if !strings.Contains(out, "Please describe the task") {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestHandleCommand_SimilarRecentStatsPatterns(t *testing.T) {
	c := setupCommands(t)
	run(t, c, "/record deploy the build --duration 100 -t ci")
	run(t, c, "/record deploy the builds --duration 300 -t ci")
	run(t, c, "/record water the plants --duration 5")

	out := run(t, c, "/similar deploy the build --threshold 0.8")
	if !strings.Contains(out, "2 similar tasks") || !strings.Contains(out, "[100%]") {
		t.Errorf("Unexpected similar output:\n%s", out)
	}
	if strings.Contains(out, "water the plants") {
		t.Errorf("Dissimilar task should be excluded:\n%s", out)
	}

	out = run(t, c, "/recent -n 2")
	if !strings.Contains(out, "Tasks 1-2 of 3") {
		t.Errorf("Unexpected recent output:\n%s", out)
	}
	out = run(t, c, "/recent --offset 5")
	if !strings.Contains(out, "No tasks past offset 5") {
		t.Errorf("Unexpected recent output:\n%s", out)
	}

	out = run(t, c, "/stats")
	for _, want := range []string{"Tasks: 3 / 1000", "Succeeded: 3", "Failed: 0", "ci (2)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Stats output missing %q:\n%s", want, out)
		}
	}

	out = run(t, c, "/patterns")
	for _, want := range []string{"Common tasks", "By hour", "ci  2x (avg 200ms)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Patterns output missing %q:\n%s", want, out)
		}
	}
}

func TestHandleCommand_DeleteAndClear(t *testing.T) {
	c := setupCommands(t)
	run(t, c, "/record first task")

	entries := c.store.GetRecentTasks(1)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	id := entries[0].ID

	if out := run(t, c, "/delete"); !strings.Contains(out, "Please specify") {
		t.Errorf("Unexpected output: %s", out)
	}
	if out := run(t, c, "/delete "+id); !strings.Contains(out, "Deleted") {
		t.Errorf("Unexpected output: %s", out)
	}
	if out := run(t, c, "/delete "+id); !strings.Contains(out, "No task with ID") {
		t.Errorf("Unexpected output: %s", out)
	}

	run(t, c, "/record second task")
	if out := run(t, c, "/clear"); !strings.Contains(out, "All tasks cleared") {
		t.Errorf("Unexpected output: %s", out)
	}
	if out := run(t, c, "/recent"); !strings.Contains(out, "No tasks recorded yet") {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestHandleCommand_ExportImport(t *testing.T) {
	src := setupCommands(t)
	run(t, src, "/record alpha task -t x")
	run(t, src, "/record beta task -t y")

	path := filepath.Join(t.TempDir(), "snapshot.json")
	if out := run(t, src, "/export "+path); !strings.Contains(out, "Exported to") {
		t.Fatalf("Unexpected output: %s", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Snapshot not written: %v", err)
	}

	printed := run(t, src, "/export")
	if !strings.Contains(printed, `"version": "1.0"`) {
		t.Errorf("Printed snapshot missing version:\n%s", printed)
	}

	dst := setupCommands(t)
	if out := run(t, dst, "/import "+path); !strings.Contains(out, "Imported 2 tasks") {
		t.Errorf("Unexpected output: %s", out)
	}
	if got := len(dst.store.Search(search.Options{}).Entries); got != 2 {
		t.Errorf("Expected 2 imported entries, got %d", got)
	}

	if out := run(t, dst, "/import "+filepath.Join(t.TempDir(), "missing.json")); !strings.Contains(out, "Failed to read") {
		t.Errorf("Unexpected output: %s", out)
	}
}

func TestHandleCommand_Doctor(t *testing.T) {
	ctx := context.Background()
	medium := kv.NewMemoryMedium(0)
	store, err := memory.New(medium, memory.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Open(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	c := NewCommands(store, nil)

	run(t, c, "/record healthy task")
	if out := run(t, c, "/doctor"); !strings.Contains(out, "Index and records agree") {
		t.Errorf("Unexpected output: %s", out)
	}

	if err := medium.Set(ctx, "taskmem_entry_mem_stray", "{}"); err != nil {
		t.Fatal(err)
	}
	out := run(t, c, "/doctor")
	if !strings.Contains(out, "mem_stray") || !strings.Contains(out, "--repair") {
		t.Errorf("Unexpected output: %s", out)
	}

	out = run(t, c, "/doctor --repair")
	if !strings.Contains(out, "removed 1 orphaned records") {
		t.Errorf("Unexpected output: %s", out)
	}
	if out := run(t, c, "/doctor"); !strings.Contains(out, "Index and records agree") {
		t.Errorf("Unexpected output after repair: %s", out)
	}
	if got := len(store.GetRecentTasks(0)); got != 1 {
		t.Errorf("Expected 1 task after repair, got %d", got)
	}
}

func TestComplete(t *testing.T) {
	c := setupCommands(t)
	run(t, c, "/record deploy service -t deployment")

	doc := func(text string) prompt.Document {
		b := prompt.NewBuffer()
		b.InsertText(text, false, true)
		return *b.Document()
	}

	got := c.Complete(doc("/se"))
	if len(got) != 1 || got[0].Text != "/search" {
		t.Errorf("Expected /search completion, got %v", got)
	}

	got = c.Complete(doc("/search depl"))
	texts := make([]string, len(got))
	for i, s := range got {
		texts[i] = s.Text
	}
	if strings.Join(texts, "|") != "deploy service|deployment" {
		t.Errorf("Unexpected completions %v", texts)
	}

	if got := c.Complete(doc("/search --fa")); got != nil {
		t.Errorf("Flags should not be completed from history, got %v", got)
	}
	if got := c.Complete(doc("d")); got != nil {
		t.Errorf("Single characters should not be completed, got %v", got)
	}
}

func TestSearchArgs_Options(t *testing.T) {
	fs := newFlagSet("search")
	a := BindSearchFlags(fs, config.DefaultConfig().Search)
	if err := fs.Parse([]string{"--since", "100", "--max-duration", "50", "--sort", "Duration", "--order", "asc", "-n", "3"}); err != nil {
		t.Fatal(err)
	}

	opts, err := a.Options("q")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Timeframe == nil || opts.Timeframe.Start != 100 || opts.Timeframe.End != 0 {
		t.Errorf("Unexpected timeframe %+v", opts.Timeframe)
	}
	if opts.MinDuration != nil {
		t.Error("MinDuration should be unset")
	}
	if opts.MaxDuration == nil || *opts.MaxDuration != 50 {
		t.Errorf("Unexpected MaxDuration %v", opts.MaxDuration)
	}
	if opts.SortBy != search.SortDuration || opts.SortOrder != search.OrderAsc || opts.Limit != 3 {
		t.Errorf("Unexpected sort/limit %+v", opts)
	}
}

func TestRecordArgs_RecordOptions(t *testing.T) {
	fs := newFlagSet("record")
	a := BindRecordFlags(fs)
	if err := fs.Parse([]string{"--error", "boom", "-t", "a,b", "--priority", "8"}); err != nil {
		t.Fatal(err)
	}

	opts := a.RecordOptions()
	if opts.Success == nil || *opts.Success {
		t.Error("Errors should mark the task as failed")
	}
	if opts.Duration != nil {
		t.Error("Duration should be measured when not supplied")
	}
	if strings.Join(opts.Tags, ",") != "a,b" {
		t.Errorf("Unexpected tags %v", opts.Tags)
	}
	if opts.Priority != 8 {
		t.Errorf("Unexpected priority %d", opts.Priority)
	}
	if a.Payload() != nil {
		t.Errorf("Expected no payload, got %v", a.Payload())
	}
}

func TestOpenStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Memory.DBPath = filepath.Join(t.TempDir(), "nested", "memory.db")

	store, err := OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer store.Close()

	if !store.IsOpen() {
		t.Error("Store should be open")
	}
	if caps := store.GetCapabilities(); caps.MaxEntries != cfg.Memory.MaxEntries {
		t.Errorf("Expected capacity %d, got %d", cfg.Memory.MaxEntries, caps.MaxEntries)
	}
}
