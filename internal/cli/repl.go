package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/c-bata/go-prompt"
	"github.com/hession/taskmem/internal/config"
	"github.com/hession/taskmem/internal/kv"
	"github.com/hession/taskmem/internal/logger"
	"github.com/hession/taskmem/internal/memory"
)

const (
	Version = "1.0.0"

	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// OpenStore opens the SQLite-backed task memory described by cfg. The
// medium quota is the configured storage capacity.
func OpenStore(ctx context.Context, cfg *config.Config) (*memory.Store, error) {
	medium, err := kv.NewSQLiteMedium(cfg.Memory.DBPath, cfg.Memory.MaxStorageBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	store, err := memory.New(medium, cfg.MemoryOptions())
	if err != nil {
		medium.Close()
		return nil, fmt.Errorf("failed to initialize memory store: %w", err)
	}

	if err := store.Open(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load memory store: %w", err)
	}
	return store, nil
}

// Run starts the CLI interactive interface
func Run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	printWelcome(store)
	return runREPL(ctx, NewCommands(store, cfg))
}

// printWelcome prints welcome message
func printWelcome(store *memory.Store) {
	fmt.Printf("\n%s🧠 taskmem v%s%s - task memory shell\n", colorCyan, Version, colorReset)
	fmt.Printf("%s%d tasks loaded. Type /help for help, /exit to quit%s\n", colorGray, store.GetStats(context.Background()).TotalTasks, colorReset)
	fmt.Printf("%sPlain input searches your tasks; Tab completes commands, tasks and tags%s\n\n", colorGray, colorReset)
}

// runREPL runs the interactive REPL with go-prompt completion
func runREPL(ctx context.Context, cmds *Commands) error {
	// go-prompt keeps the terminal in raw mode, so only SIGTERM arrives here
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Printf("\n\n%sGoodbye! 👋%s\n", colorCyan, colorReset)
		cmds.store.Close()
		logger.Close()
		os.Exit(0)
	}()

	var history []string
	for {
		line := prompt.Input("taskmem> ", cmds.Complete,
			prompt.OptionTitle("taskmem"),
			prompt.OptionHistory(history),
			prompt.OptionPrefixTextColor(prompt.Green),
			prompt.OptionMaxSuggestion(10),
		)

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		history = append(history, input)

		if strings.HasPrefix(input, "/") {
			if handleCommand(ctx, cmds, input) {
				continue
			}
			return nil // /exit command
		}

		// Plain input is a search query
		fmt.Println(cmds.Search(input, nil))
		fmt.Println()
	}
}

// handleCommand handles built-in commands, returns true to continue loop, false to exit
func handleCommand(ctx context.Context, cmds *Commands, cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true
	}

	command := strings.ToLower(parts[0])

	switch command {
	case "/help":
		printHelp()
		return true

	case "/exit", "/quit", "/q":
		fmt.Printf("%sGoodbye! 👋%s\n", colorCyan, colorReset)
		return false

	case "/config":
		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("%s❌ Failed to load config: %v%s\n", colorRed, err, colorReset)
		} else {
			fmt.Println(cfg.String())
		}
		return true
	}

	if handled, output := cmds.HandleCommand(ctx, cmd); handled {
		fmt.Println(output)
		fmt.Println()
		return true
	}

	fmt.Printf("%s❓ Unknown command: %s%s\n", colorYellow, cmd, colorReset)
	fmt.Println("Type /help for available commands")
	return true
}

// printHelp prints help information
func printHelp() {
	fmt.Printf(`
%s📚 taskmem Help%s

%sCommands:%s
  /record <task> [--fail] [--duration ms] [-t tag] [--priority n] [--result text] [--error msg]
                  - Record a task execution
  /search [query] [-t tag] [--success|--failed] [--since ms] [--until ms]
          [--min-duration ms] [--max-duration ms] [--sort field] [--order asc|desc] [-n limit]
                  - Search recorded tasks (tags are ANDed)
  /similar <task> [--threshold 0.6] [-n limit]
                  - Find tasks with similar descriptions
  /recent [-n limit] [--offset n]
                  - Show the newest tasks
  /stats          - Show statistics
  /patterns       - Show common tasks, busy hours and tags
  /delete <id>    - Delete a task
  /clear          - Delete all tasks
  /export [file]  - Export a snapshot (prints it without a file)
  /import <file>  - Import a snapshot
  /doctor [--repair]
                  - Check that the index matches the stored records
  /config         - Show current configuration
  /exit           - Exit program

%sInput Tips:%s
  • Anything not starting with / is a search query
  • Press Tab to complete commands, task descriptions and tags
  • Use Up/Down arrow keys to browse command history

%sExamples:%s
  /record Create file test.txt --duration 120 -t file
  /record Deploy build --fail --error timeout
  /search create --success
  /similar create file test

`, colorCyan, colorReset, colorYellow, colorReset, colorYellow, colorReset, colorYellow, colorReset)
}
