package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"relaydedup/internal/config"
	"relaydedup/internal/engine"
	"relaydedup/internal/relayconfig"
	"relaydedup/internal/tree"
	"relaydedup/internal/watch"
)

var (
	flagOutput           string
	flagDryRun           bool
	flagVerbose          bool
	flagMinOccurrences   int
	flagOrderInsensitive string
	flagMaxPasses        int
	flagShowGzip         bool
	flagShowTiming       bool
	flagSkipConfigCheck  bool
	flagWatch            bool
	flagConfigFile       string

	logger *zap.Logger
)

// usageError and configError pick exit code 1; parse and IO failures exit 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

var rootCmd = &cobra.Command{
	Use:   "relay-dedup [GENERATED_DIR]",
	Short: "Deduplicate generated artifact files into a shared module",
	Long: `relay-dedup post-processes a directory of compiler-generated artifact files,
extracting every repeated sub-structure into a single shared module and
replacing each occurrence with a short named reference. Output is
semantically identical at runtime and typically 60-70% smaller on disk.

The directory argument is optional when the host configuration
(relay.config.json, or package.json with a "relay" key) names an
artifactDirectory.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if flagVerbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "__shared.ts", "shared module filename")
	rootCmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "show what would change without writing files")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "print detailed progress and statistics")
	rootCmd.Flags().IntVar(&flagMinOccurrences, "min-occurrences", 2, "minimum occurrences to extract a structure")
	rootCmd.Flags().StringVar(&flagOrderInsensitive, "order-insensitive", "selections,args,argumentDefinitions",
		"comma-separated object keys whose array values are order-insensitive")
	rootCmd.Flags().IntVar(&flagMaxPasses, "max-passes", 50, "maximum number of passes to run")
	rootCmd.Flags().BoolVar(&flagShowGzip, "show-gzip", false, "report gzipped size deltas")
	rootCmd.Flags().BoolVar(&flagShowTiming, "show-timing", false, "report per-phase timings")
	rootCmd.Flags().BoolVar(&flagSkipConfigCheck, "skip-config-check", false, "bypass host configuration validation")
	rootCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "keep running and re-deduplicate when artifacts change")
	rootCmd.Flags().StringVar(&flagConfigFile, "config", "", "path to a tool options file (default: discovered "+config.FileName+")")
}

func run(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	hostCfg := relayconfig.Find(cwd)

	root := ""
	if len(args) == 1 {
		root = args[0]
	} else if hostCfg != nil && hostCfg.ArtifactDirectory != "" {
		root = hostCfg.ArtifactDirectory
	} else if hostCfg != nil {
		return &usageError{fmt.Sprintf(
			"no GENERATED_DIR given and host config (%s) has no artifactDirectory", hostCfg.ConfigPath)}
	} else {
		return &usageError{"no GENERATED_DIR given and no host config found\nusage: relay-dedup <GENERATED_DIR>"}
	}

	if !flagSkipConfigCheck {
		if hostCfg != nil {
			if err := relayconfig.Validate(hostCfg.ConfigPath); err != nil {
				return &configError{err}
			}
		} else {
			fmt.Fprintln(os.Stderr,
				`warning: no host config found (relay.config.json or package.json with "relay" key);
make sure the compiler's built-in deduplication is disabled`)
		}
	}

	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return &usageError{fmt.Sprintf("generated directory does not exist: %s", root)}
	}

	// Options file fills in defaults for flags the user did not set.
	optsPath := flagConfigFile
	if optsPath == "" {
		optsPath = config.Discover(root)
	}
	if optsPath != "" {
		opts, err := config.Load(optsPath)
		if err != nil {
			return &configError{err}
		}
		applyOptions(cmd, opts)
	}

	if flagMinOccurrences < 2 {
		return &usageError{"--min-occurrences must be at least 2"}
	}

	orderInsensitive := make(map[string]struct{})
	for _, k := range strings.Split(flagOrderInsensitive, ",") {
		if k = strings.TrimSpace(k); k != "" {
			orderInsensitive[k] = struct{}{}
		}
	}

	ecfg := engine.Config{
		Root:             root,
		SharedName:       flagOutput,
		MinOccurrences:   flagMinOccurrences,
		OrderInsensitive: orderInsensitive,
		DryRun:           flagDryRun,
		Verbose:          flagVerbose,
		MaxPasses:        flagMaxPasses,
		ComputeGzip:      flagVerbose || flagShowGzip,
		Logger:           logger,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runOnce(ctx, ecfg); err != nil {
		return err
	}

	if flagWatch {
		logger.Info("watching for artifact changes", zap.String("root", root))
		err := watch.Run(ctx, root, engine.ArtifactSuffix, flagOutput, logger, func() error {
			return runOnce(ctx, ecfg)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// runOnce executes a single full deduplication and prints the summary.
func runOnce(ctx context.Context, ecfg engine.Config) error {
	start := time.Now()
	eng := engine.New(ecfg)
	stats, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if stats.ExhaustedPasses {
		fmt.Fprintf(os.Stderr, "warning: fixed point not reached within %d passes; partial extractions emitted\n",
			ecfg.MaxPasses)
	}

	timeStr := fmt.Sprintf("%.2fs", elapsed.Seconds())
	if flagShowGzip || flagVerbose {
		fmt.Printf("Extracted %d structures, saved %s raw (%.1f%%), %s gzipped (%.1f%%) in %s\n",
			stats.TotalExtracted,
			formatBytesSigned(stats.RawSavings()), stats.RawSavingsPercent(),
			formatBytesSigned(stats.GzippedSavings()), stats.GzippedSavingsPercent(),
			timeStr)
	} else {
		fmt.Printf("Extracted %d structures, saved %s raw (%.1f%%) in %s\n",
			stats.TotalExtracted,
			formatBytesSigned(stats.RawSavings()), stats.RawSavingsPercent(),
			timeStr)
	}

	if flagShowTiming {
		printTiming(&eng.Timing, ecfg.ComputeGzip)
	}
	return nil
}

func applyOptions(cmd *cobra.Command, opts config.Options) {
	if opts.Output != "" && !cmd.Flags().Changed("output") {
		flagOutput = opts.Output
	}
	if opts.MinOccurrences != 0 && !cmd.Flags().Changed("min-occurrences") {
		flagMinOccurrences = opts.MinOccurrences
	}
	if len(opts.OrderInsensitive) != 0 && !cmd.Flags().Changed("order-insensitive") {
		flagOrderInsensitive = strings.Join(opts.OrderInsensitive, ",")
	}
	if opts.MaxPasses != 0 && !cmd.Flags().Changed("max-passes") {
		flagMaxPasses = opts.MaxPasses
	}
}

func printTiming(t *engine.Timings, gzip bool) {
	ms := func(n int64) float64 { return float64(n) / 1e6 }
	fmt.Fprintln(os.Stderr, "\n=== Timing breakdown ===")
	fmt.Fprintln(os.Stderr, "I/O:")
	fmt.Fprintf(os.Stderr, "  file_read:  %8.1fms\n", ms(t.FileRead.Load()))
	fmt.Fprintf(os.Stderr, "  file_write: %8.1fms\n", ms(t.FileWrite.Load()))
	fmt.Fprintln(os.Stderr, "CPU:")
	fmt.Fprintf(os.Stderr, "  parse:      %8.1fms\n", ms(t.Parse.Load()))
	fmt.Fprintf(os.Stderr, "  enumerate:  %8.1fms\n", ms(t.Enumerate.Load()))
	fmt.Fprintf(os.Stderr, "  rewrite:    %8.1fms\n", ms(t.Rewrite.Load()))
	fmt.Fprintf(os.Stderr, "  serialize:  %8.1fms\n", ms(t.Serialize.Load()))
	if gzip {
		fmt.Fprintf(os.Stderr, "  gzip:       %8.1fms\n", ms(t.Gzip.Load()))
	}
}

func formatBytes(n uint64) string {
	if n >= 1024*1024 {
		return fmt.Sprintf("%.2f MB", float64(n)/1024/1024)
	}
	return fmt.Sprintf("%.0f KB", float64(n)/1024)
}

func formatBytesSigned(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}
	s := formatBytes(uint64(abs))
	if n < 0 {
		return "-" + s
	}
	return s
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(report(err))
	}
}

// report prints the one-line diagnostic and picks the exit code: 1 for usage
// and configuration problems, 2 for parse and IO failures.
func report(err error) int {
	var (
		ue *usageError
		ce *configError
		pe *tree.ParseError
		fe *fs.PathError
	)
	switch {
	case errors.As(err, &ue):
		fmt.Fprintf(os.Stderr, "usage: %v\n", err)
		return 1
	case errors.As(err, &ce):
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	case errors.As(err, &pe):
		fmt.Fprintf(os.Stderr, "parse: %v\n", err)
		return 2
	case errors.As(err, &fe):
		fmt.Fprintf(os.Stderr, "io: %v\n", err)
		return 2
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
}
