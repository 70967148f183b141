package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hession/taskmem/internal/cli"
	"github.com/hession/taskmem/internal/config"
	"github.com/hession/taskmem/internal/logger"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"
)

// errReported marks failures whose message was already printed
var errReported = errors.New("command failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configDir string
		cfg       *config.Config
	)

	rootCmd := &cobra.Command{
		Use:   "taskmem",
		Short: "taskmem - a searchable log of executed tasks",
		Long: `taskmem records task executions and their outcomes in a bounded local store.

It can:
  • Record tasks with duration, tags, priority and errors
  • Search with filters on text, time, outcome, tags and duration
  • Find tasks with similar descriptions
  • Summarize common tasks, busy hours and tags
  • Export and import snapshots`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configDir != "" {
				config.SetConfigDir(configDir)
			}

			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg = loaded

			if err := logger.Init(cfg.LoggerConfig()); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logConfigInfo(cfg)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Run(cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	// withStore opens the store around one operation and prints its output
	withStore := func(op func(ctx context.Context, c *cli.Commands, args []string) string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := cli.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := op(ctx, cli.NewCommands(store, cfg), args)
			if strings.HasPrefix(out, "❌") {
				fmt.Fprintln(cmd.ErrOrStderr(), out)
				return errReported
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}
	}

	// record subcommand
	recordCmd := &cobra.Command{
		Use:   "record <task>",
		Short: "Record a task execution",
		Args:  cobra.MinimumNArgs(1),
	}
	recordArgs := cli.BindRecordFlags(recordCmd.Flags())
	recordCmd.RunE = withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
		return c.Record(ctx, strings.Join(args, " "), recordArgs)
	})

	// search subcommand
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search recorded tasks",
	}
	searchArgs := cli.BindSearchFlags(searchCmd.Flags(), config.DefaultConfig().Search)
	searchCmd.RunE = withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
		if !searchCmd.Flags().Changed("limit") {
			searchArgs.Limit = cfg.Search.DefaultLimit
		}
		return c.Search(strings.Join(args, " "), searchArgs)
	})

	// similar subcommand
	similarCmd := &cobra.Command{
		Use:   "similar <task>",
		Short: "Find tasks with similar descriptions",
		Args:  cobra.MinimumNArgs(1),
	}
	similarArgs := cli.BindSimilarFlags(similarCmd.Flags(), config.DefaultConfig().Search)
	similarCmd.RunE = withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
		if !similarCmd.Flags().Changed("threshold") {
			similarArgs.Threshold = cfg.Search.SimilarityThreshold
		}
		if !similarCmd.Flags().Changed("limit") {
			similarArgs.Limit = cfg.Search.SimilarLimit
		}
		return c.Similar(strings.Join(args, " "), similarArgs)
	})

	// recent subcommand
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the newest tasks",
		Args:  cobra.NoArgs,
	}
	recentArgs := cli.BindRecentFlags(recentCmd.Flags(), config.DefaultConfig().Search)
	recentCmd.RunE = withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
		if !recentCmd.Flags().Changed("limit") {
			recentArgs.Limit = cfg.Search.DefaultLimit
		}
		return c.Recent(recentArgs)
	})

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
			return c.Stats(ctx)
		}),
	}

	patternsCmd := &cobra.Command{
		Use:   "patterns",
		Short: "Show common tasks, busy hours and tags",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
			return c.Patterns()
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
			return c.Delete(ctx, args[0])
		}),
	}

	// clear subcommand
	var confirmClear bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all tasks",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
			if !confirmClear {
				return "❌ Refusing to delete all tasks without --yes"
			}
			return c.Clear(ctx)
		}),
	}
	clearCmd.Flags().BoolVarP(&confirmClear, "yes", "y", false, "confirm deleting every task")

	exportCmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export a snapshot (printed when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return c.Export(ctx, path)
		}),
	}

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
			return c.Import(ctx, args[0])
		}),
	}

	// doctor subcommand
	var repair bool
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the index matches the stored records",
		Args:  cobra.NoArgs,
		RunE: withStore(func(ctx context.Context, c *cli.Commands, args []string) string {
			return c.Doctor(ctx, repair)
		}),
	}
	doctorCmd.Flags().BoolVar(&repair, "repair", false, "remove orphaned records and drop missing ids")

	// config subcommand
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())

			path, _ := config.ConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfig file path: %s\n", path)
			return nil
		},
	}

	// version subcommand
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		// No config or logger needed
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskmem v%s\n", version)
		},
	}

	rootCmd.AddCommand(
		recordCmd,
		searchCmd,
		similarCmd,
		recentCmd,
		statsCmd,
		patternsCmd,
		deleteCmd,
		clearCmd,
		exportCmd,
		importCmd,
		doctorCmd,
		configCmd,
		versionCmd,
	)
	return rootCmd
}

// logConfigInfo logs the effective configuration
func logConfigInfo(cfg *config.Config) {
	logger.Info("Config loaded: db=%s max_entries=%d max_storage_bytes=%d",
		cfg.Memory.DBPath, cfg.Memory.MaxEntries, cfg.Memory.MaxStorageBytes)
	logger.Debug("Search defaults: limit=%d threshold=%.2f similar_limit=%d",
		cfg.Search.DefaultLimit, cfg.Search.SimilarityThreshold, cfg.Search.SimilarLimit)
}
