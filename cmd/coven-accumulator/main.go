// ABOUTME: Entry point for coven-accumulator
// ABOUTME: Reads key/value contributions, reports quorum resolutions, and queries the resolution journal

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/coven-accumulator/internal/config"
	"github.com/2389/coven-accumulator/internal/dedupe"
	"github.com/2389/coven-accumulator/internal/ingest"
	"github.com/2389/coven-accumulator/internal/journal"
	"github.com/2389/coven-accumulator/sharded"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  ___ _____   _____ _ __         __ _  ___ ___
 / __/ _ \ \ / / _ \ '_ \ _____ / _' |/ __/ __|
| (_| (_) \ V /  __/ | | |_____| (_| | (_| (__
 \___\___/ \_/ \___|_| |_|      \__,_|\___\___|
`

// getConfigPath returns the path to the accumulator config file.
// Priority: COVEN_ACCUMULATOR_CONFIG env var > XDG_CONFIG_HOME/coven/accumulator.yaml > ~/.config/coven/accumulator.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_ACCUMULATOR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "accumulator.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "accumulator.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-accumulator <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run [file]      Accumulate contributions from file (or stdin)")
		fmt.Println("  init            Write a default config file")
		fmt.Println("  journal [key]   List recorded resolutions")
		fmt.Println("  version         Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runIngest(ctx, os.Args[2:])
	case "init":
		err = runInit()
	case "journal":
		err = runJournal(ctx, os.Args[2:])
	case "version":
		fmt.Printf("coven-accumulator %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runIngest(ctx context.Context, args []string) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	cyan.Fprint(os.Stderr, banner)
	gray.Fprintf(os.Stderr, "    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	runID := uuid.New().String()

	acc, err := sharded.New[string, string](cfg.ToAccumulator(logger), cfg.ShardCount())
	if err != nil {
		return fmt.Errorf("creating accumulator: %w", err)
	}
	acc.OnEvict(func(key string, values []string) {
		logger.Debug("entry evicted", "key", key, "values", len(values))
	})

	filter, err := dedupe.New(cfg.Ingest.DedupeWindow, cfg.Ingest.DedupeCapacity)
	if err != nil {
		return err
	}

	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
	}

	in := io.Reader(os.Stdin)
	source := "stdin"
	if len(args) > 0 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
		source = args[0]
	}

	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Config:  %s\n", configPath)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Input:   %s\n", source)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Quorum:  %d of %s (%s, report %s)\n",
		cfg.Accumulator.Quorum, cfg.Accumulator.Bound(), cfg.Accumulator.Policy, cfg.Accumulator.Report)
	if j != nil {
		green.Fprint(os.Stderr, "    ▶ ")
		fmt.Fprintf(os.Stderr, "Journal: %s\n", cfg.Journal.Path)
	}
	fmt.Fprintln(os.Stderr)

	logger.Info("starting ingest", "run_id", runID, "input", source, "shards", acc.Shards())

	sink := func(ctx context.Context, r ingest.Resolution) error {
		green.Print("✔ ")
		cyan.Print(r.Key)
		fmt.Printf(" %s ", strings.Join(r.Values, " "))
		gray.Printf("(%d/%d, line %d)\n", len(r.Values), r.Quorum, r.Line)

		if j == nil {
			return nil
		}
		return j.Record(ctx, &journal.Resolution{
			RunID:  runID,
			Key:    r.Key,
			Values: r.Values,
			Quorum: r.Quorum,
		})
	}

	runner := ingest.NewRunner(acc, filter, sink,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithLogger(logger),
	)
	stats, err := runner.Run(ctx, in)

	fmt.Fprintln(os.Stderr)
	gray.Fprintf(os.Stderr, "%d lines, %d contributions, %d replays, %d malformed, %d resolutions, %d keys held\n",
		stats.Lines, stats.Contributions, stats.Replays, stats.Malformed, stats.Resolutions, acc.CacheSize())

	if err != nil && ctx.Err() != nil {
		logger.Info("ingest interrupted", "run_id", runID)
		return nil
	}
	return err
}

func runInit() error {
	configPath := getConfigPath()
	if err := config.WriteDefault(configPath); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✔ ")
	fmt.Printf("Wrote %s\n", configPath)
	return nil
}

func runJournal(ctx context.Context, args []string) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is not configured")
	}
	slog.SetDefault(setupLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format}))

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()

	var filter journal.Filter
	if len(args) > 0 {
		filter.Key = &args[0]
	}

	resolutions, err := j.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("listing resolutions: %w", err)
	}
	if len(resolutions) == 0 {
		fmt.Println("No resolutions recorded.")
		return nil
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, r := range resolutions {
		gray.Printf("%s  ", r.ResolvedAt.Local().Format("2006-01-02 15:04:05"))
		cyan.Print(r.Key)
		fmt.Printf(" %s ", strings.Join(r.Values, " "))
		gray.Printf("(%d/%d, run %.8s)\n", len(r.Values), r.Quorum, r.RunID)
	}
	return nil
}
