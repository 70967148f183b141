package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/dustin/go-humanize"
	"github.com/hession/taskmem/internal/config"
	"github.com/hession/taskmem/internal/entry"
	"github.com/hession/taskmem/internal/memory"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/pflag"
)

// Commands renders task-memory operations as text for the REPL and the
// command line
type Commands struct {
	store *memory.Store
	cfg   *config.Config
}

// NewCommands creates a command handler
func NewCommands(store *memory.Store, cfg *config.Config) *Commands {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Commands{store: store, cfg: cfg}
}

// HandleCommand handles slash commands that operate on the store
// Returns: (whether the command was handled, output)
func (c *Commands) HandleCommand(ctx context.Context, cmd string) (bool, string) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, ""
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/record":
		fs := newFlagSet(command)
		ra := BindRecordFlags(fs)
		if err := fs.Parse(args); err != nil {
			return true, usageError(err)
		}
		return true, c.Record(ctx, strings.Join(fs.Args(), " "), ra)

	case "/search":
		fs := newFlagSet(command)
		sa := BindSearchFlags(fs, c.cfg.Search)
		if err := fs.Parse(args); err != nil {
			return true, usageError(err)
		}
		return true, c.Search(strings.Join(fs.Args(), " "), sa)

	case "/similar":
		fs := newFlagSet(command)
		sa := BindSimilarFlags(fs, c.cfg.Search)
		if err := fs.Parse(args); err != nil {
			return true, usageError(err)
		}
		return true, c.Similar(strings.Join(fs.Args(), " "), sa)

	case "/recent", "/history":
		fs := newFlagSet(command)
		ra := BindRecentFlags(fs, c.cfg.Search)
		if err := fs.Parse(args); err != nil {
			return true, usageError(err)
		}
		return true, c.Recent(ra)

	case "/stats":
		return true, c.Stats(ctx)

	case "/patterns":
		return true, c.Patterns()

	case "/delete":
		if len(args) != 1 {
			return true, "❌ Please specify an entry ID: /delete <id>"
		}
		return true, c.Delete(ctx, args[0])

	case "/clear":
		return true, c.Clear(ctx)

	case "/export":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		return true, c.Export(ctx, path)

	case "/import":
		if len(args) != 1 {
			return true, "❌ Please specify a snapshot file: /import <file>"
		}
		return true, c.Import(ctx, args[0])

	case "/doctor":
		repair := len(args) > 0 && args[0] == "--repair"
		return true, c.Doctor(ctx, repair)

	default:
		return false, ""
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(strings.TrimPrefix(name, "/"), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func usageError(err error) string {
	return fmt.Sprintf("❌ %v\nType /help for usage", err)
}

// ========== Operations ==========

// Record stores a task and reports its id
func (c *Commands) Record(ctx context.Context, task string, a *RecordArgs) string {
	if a == nil {
		a = &RecordArgs{Duration: -1}
	}
	if strings.TrimSpace(task) == "" {
		return "❌ Please describe the task: /record <task> [--fail] [--tag t]"
	}

	id, err := c.store.RecordTask(ctx, task, a.Payload(), a.RecordOptions())
	if err != nil {
		return fmt.Sprintf("❌ Failed to record task: %v", err)
	}
	return fmt.Sprintf("✅ Task recorded\n   ID: %s", id)
}

// Search runs a filtered search; a nil a uses the configured defaults
func (c *Commands) Search(query string, a *SearchArgs) string {
	if a == nil {
		a = BindSearchFlags(newFlagSet("search"), c.cfg.Search)
	}
	opts, err := a.Options(query)
	if err != nil {
		return usageError(err)
	}

	res := c.store.Search(opts)
	if len(res.Entries) == 0 {
		out := "🔍 No matching tasks"
		if len(res.Suggestions) > 0 {
			out += "\n\nDid you mean: " + strings.Join(res.Suggestions, ", ")
		}
		return out
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🔍 %d of %d matching tasks (%s)\n\n",
		len(res.Entries), res.TotalCount, res.SearchTime.Round(time.Microsecond)))
	for i, e := range res.Entries {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, formatEntry(e)))
	}
	return strings.TrimRight(builder.String(), "\n")
}

// Similar lists stored tasks resembling task
func (c *Commands) Similar(task string, a *SimilarArgs) string {
	if a == nil {
		a = BindSimilarFlags(newFlagSet("similar"), c.cfg.Search)
	}
	if strings.TrimSpace(task) == "" {
		return "❌ Please describe the task: /similar <task>"
	}

	results := c.store.FindSimilarTasks(task, a.Threshold, a.Limit)
	if len(results) == 0 {
		return fmt.Sprintf("🔍 No tasks with similarity >= %.2f", a.Threshold)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🔍 %d similar tasks\n\n", len(results)))
	for i, r := range results {
		builder.WriteString(fmt.Sprintf("%d. [%.0f%%] %s\n", i+1, r.Similarity*100, formatEntry(r.Entry)))
		if len(r.MatchedTerms) > 0 {
			builder.WriteString(fmt.Sprintf("   Matched: %s\n", strings.Join(r.MatchedTerms, ", ")))
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}

// Recent pages through the newest tasks
func (c *Commands) Recent(a *RecentArgs) string {
	if a == nil {
		a = BindRecentFlags(newFlagSet("recent"), c.cfg.Search)
	}

	page, total := c.store.ListTasks(a.Offset, a.Limit)
	if total == 0 {
		return "📋 No tasks recorded yet"
	}
	if len(page) == 0 {
		return fmt.Sprintf("📋 No tasks past offset %d (total %d)", a.Offset, total)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 Tasks %d-%d of %d\n\n", a.Offset+1, a.Offset+len(page), total))
	for i, e := range page {
		builder.WriteString(fmt.Sprintf("%d. %s\n", a.Offset+i+1, formatEntry(e)))
	}
	return strings.TrimRight(builder.String(), "\n")
}

// Stats summarizes the store
func (c *Commands) Stats(ctx context.Context) string {
	stats := c.store.GetStats(ctx)
	caps := c.store.GetCapabilities()

	var builder strings.Builder
	builder.WriteString("📊 Task memory statistics\n\n")
	builder.WriteString(fmt.Sprintf("Tasks: %d / %d\n", stats.TotalTasks, caps.MaxEntries))
	builder.WriteString(fmt.Sprintf("Succeeded: %d\n", stats.SuccessfulTasks))
	builder.WriteString(fmt.Sprintf("Failed: %d\n", stats.FailedTasks))
	builder.WriteString(fmt.Sprintf("Success rate: %.1f%%\n", stats.SuccessRate*100))
	builder.WriteString(fmt.Sprintf("Average duration: %s\n", formatMillis(stats.AverageDuration)))
	builder.WriteString(fmt.Sprintf("Storage: %s of %s (%.1f%%)\n",
		humanize.Bytes(uint64(stats.Storage.StorageSize)),
		humanize.Bytes(uint64(caps.MaxStorageBytes)),
		stats.StorageUsage))

	if len(stats.TopTags) > 0 {
		builder.WriteString("\nTop tags:\n")
		for _, tc := range stats.TopTags {
			builder.WriteString(fmt.Sprintf("  %s (%d)\n", tc.Tag, tc.Count))
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}

// Patterns prints task, hour and tag frequencies
func (c *Commands) Patterns() string {
	p := c.store.FindPatterns()
	if len(p.CommonTasks) == 0 {
		return "📈 No patterns yet"
	}

	var builder strings.Builder
	builder.WriteString("📈 Common tasks\n")
	for _, tp := range p.CommonTasks {
		builder.WriteString(fmt.Sprintf("  %dx  %s (avg %s)\n",
			tp.Count, truncateForDisplay(tp.Task, 50), formatMillis(tp.AverageDuration)))
	}

	builder.WriteString("\n🕐 By hour\n")
	for _, hp := range p.TimePatterns {
		builder.WriteString(fmt.Sprintf("  %02d:00  %d tasks, %.0f%% succeeded\n",
			hp.Hour, hp.Count, hp.SuccessRate*100))
	}

	if len(p.TagPatterns) > 0 {
		builder.WriteString("\n🏷  Tags\n")
		for _, tp := range p.TagPatterns {
			builder.WriteString(fmt.Sprintf("  %s  %dx (avg %s)\n", tp.Tag, tp.Count, formatMillis(tp.AverageDuration)))
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}

// Delete removes one entry
func (c *Commands) Delete(ctx context.Context, id string) string {
	removed, err := c.store.DeleteEntry(ctx, id)
	if err != nil {
		return fmt.Sprintf("❌ Failed to delete %s: %v", id, err)
	}
	if !removed {
		return fmt.Sprintf("❓ No task with ID %s", id)
	}
	return fmt.Sprintf("✅ Deleted %s", id)
}

// Clear removes every entry
func (c *Commands) Clear(ctx context.Context) string {
	if err := c.store.ClearAll(ctx); err != nil {
		return fmt.Sprintf("❌ Failed to clear tasks: %v", err)
	}
	return "✅ All tasks cleared"
}

// Export writes a snapshot to path, or returns it when path is empty
func (c *Commands) Export(ctx context.Context, path string) string {
	data, err := c.store.ExportData(ctx)
	if err != nil {
		return fmt.Sprintf("❌ Failed to export: %v", err)
	}
	if path == "" {
		return data
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Sprintf("❌ Failed to write %s: %v", path, err)
	}
	return fmt.Sprintf("✅ Exported to %s (%s)", path, humanize.Bytes(uint64(len(data))))
}

// Import loads a snapshot file
func (c *Commands) Import(ctx context.Context, path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("❌ Failed to read %s: %v", path, err)
	}
	n, err := c.store.ImportData(ctx, string(data))
	if err != nil {
		return fmt.Sprintf("❌ Import stopped after %d tasks: %v", n, err)
	}
	return fmt.Sprintf("✅ Imported %d tasks", n)
}

// Doctor checks that the index and the stored records agree and optionally
// repairs them
func (c *Commands) Doctor(ctx context.Context, repair bool) string {
	report, err := c.store.CheckConsistency(ctx)
	if err != nil {
		return fmt.Sprintf("❌ Consistency check failed: %v", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🩺 Stored records: %d, indexed: %d\n", report.StoredEntries, report.IndexedEntries)
	if report.IsConsistent {
		sb.WriteString("✅ Index and records agree")
		return sb.String()
	}

	writeIDs := func(label string, ids []string) {
		if len(ids) > 0 {
			fmt.Fprintf(&sb, "   %s (%d): %s\n", label, len(ids), strings.Join(ids, ", "))
		}
	}
	writeIDs("Orphaned records", report.OrphanedEntries)
	writeIDs("Missing records", report.DanglingIDs)
	writeIDs("Invalid records", report.InvalidEntries)

	if !repair {
		sb.WriteString("⚠️  Run with --repair to fix")
		return sb.String()
	}

	result, err := c.store.Repair(ctx)
	if err != nil {
		return fmt.Sprintf("❌ Repair failed: %v", err)
	}
	fmt.Fprintf(&sb, "✅ Repaired: removed %d orphaned records, dropped %d index ids",
		result.RemovedOrphans, result.DroppedIDs)
	return sb.String()
}

// ========== Completion ==========

// Complete suggests slash commands, then stored task texts and tags for the
// word under the cursor
func (c *Commands) Complete(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	if strings.HasPrefix(text, "/") && !strings.Contains(text, " ") {
		var suggests []prompt.Suggest
		for _, cs := range GetCommandSuggestions() {
			suggests = append(suggests, prompt.Suggest{Text: cs.Text, Description: cs.Description})
		}
		return prompt.FilterHasPrefix(suggests, text, true)
	}

	word := d.GetWordBeforeCursor()
	if strings.HasPrefix(word, "-") || len([]rune(word)) < 2 {
		return nil
	}

	var suggests []prompt.Suggest
	for _, s := range c.store.GetSuggestions(word) {
		suggests = append(suggests, prompt.Suggest{Text: s})
	}
	return suggests
}

// CommandSuggestion a completable command
type CommandSuggestion struct {
	Text        string
	Description string
}

// GetCommandSuggestions returns the REPL commands for completion
func GetCommandSuggestions() []CommandSuggestion {
	return []CommandSuggestion{
		{Text: "/record", Description: "Record a task"},
		{Text: "/search", Description: "Search tasks"},
		{Text: "/similar", Description: "Find similar tasks"},
		{Text: "/recent", Description: "Show recent tasks"},
		{Text: "/stats", Description: "Show statistics"},
		{Text: "/patterns", Description: "Show task patterns"},
		{Text: "/delete", Description: "Delete a task"},
		{Text: "/clear", Description: "Delete all tasks"},
		{Text: "/export", Description: "Export a snapshot"},
		{Text: "/import", Description: "Import a snapshot"},
		{Text: "/doctor", Description: "Check index consistency"},
		{Text: "/config", Description: "Show configuration"},
		{Text: "/help", Description: "Show help"},
		{Text: "/exit", Description: "Exit"},
	}
}

// ========== Formatting ==========

func formatEntry(e *entry.Entry) string {
	status := "✅"
	if !e.Metadata.Success {
		status = "❌"
	}

	line := fmt.Sprintf("%s %s  %s  %s  %s",
		status, e.ID, humanize.Time(e.Time()), formatMillis(e.Metadata.Duration), truncateForDisplay(e.Task, 60))
	if len(e.Metadata.Tags) > 0 {
		line += "  [" + strings.Join(e.Metadata.Tags, ", ") + "]"
	}
	if errs := e.Metadata.Errors; len(errs) > 0 {
		line += "\n   Error: " + truncateForDisplay(errs[0], 80)
	}
	return line
}

// formatMillis formats a duration given in milliseconds
func formatMillis(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.0fms", ms)
	}
	return FormatDuration(time.Duration(ms * float64(time.Millisecond)))
}

// truncateForDisplay flattens text to one line and cuts it to maxLen
// display columns
func truncateForDisplay(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSpace(text)

	if runewidth.StringWidth(text) <= maxLen {
		return text
	}
	return runewidth.Truncate(text, maxLen, "") + "..."
}

// FormatDuration formats a time span
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
