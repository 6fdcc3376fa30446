// Command qpcr-analyse classifies the amplification curves of a qPCR run
// file and writes the per-well results as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/analysis"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/classify"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/config"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/fsutil"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/ingest"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/monitoring"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/security"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/version"
)

// Config holds the command-line configuration.
type Config struct {
	InputFile   string
	ConfigFile  string
	OutputJSON  string
	Workers     int
	Verbose     bool
	Quiet       bool
	ShowVersion bool
}

func main() {
	cfg := parseFlags(os.Args[1:])

	if cfg.ShowVersion {
		fmt.Println("qpcr-analyse " + version.String())
		return
	}
	if cfg.InputFile == "" {
		log.Fatal("input run file is required (-input)")
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	monitoring.UseZap(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fsutil.OSFileSystem{}, os.Stdout); err != nil {
		logger.Fatal("analysis failed", zap.Error(err))
	}
}

func parseFlags(args []string) Config {
	cfg := Config{}

	fs := flag.NewFlagSet("qpcr-analyse", flag.ExitOnError)
	fs.StringVar(&cfg.InputFile, "input", "", "Path to run file (.csv or .json)")
	fs.StringVar(&cfg.ConfigFile, "config", "", "Path to analysis config (.json, .yaml or .yml); defaults apply when empty")
	fs.StringVar(&cfg.OutputJSON, "json", "", "Write results to this file instead of stdout")
	fs.IntVar(&cfg.Workers, "workers", 0, "Concurrent wells (overrides config; 0 keeps config value)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable debug logging")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "Do not print the run summary")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	_ = fs.Parse(args)

	return cfg
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func loadConfig(path string) (*config.AnalysisConfig, error) {
	if path == "" {
		return config.DefaultAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(path)
}

// run analyses cfg.InputFile and writes the run as JSON to cfg.OutputJSON,
// or to stdout when no output file is set. The summary goes to stderr.
func run(ctx context.Context, cfg Config, fsys fsutil.FileSystem, stdout io.Writer) error {
	if cfg.OutputJSON != "" {
		if err := security.ValidateExportPath(cfg.OutputJSON); err != nil {
			return err
		}
	}

	ac, err := loadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	opts := analysis.OptionsFromConfig(ac)
	if cfg.Workers > 0 {
		opts.Workers = cfg.Workers
	}

	curves, err := ingest.ReadFileFS(fsys, cfg.InputFile)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cfg.InputFile, err)
	}
	if len(curves) == 0 {
		return errors.New("run file contains no curves")
	}
	monitoring.Logf("analysing %d curves from %s with %d workers", len(curves), cfg.InputFile, opts.Workers)

	result, err := analysis.Batch(ctx, curves, opts)
	if err != nil {
		return err
	}

	if !cfg.Quiet {
		printSummary(os.Stderr, result)
	}

	if cfg.OutputJSON == "" {
		return encodeJSON(stdout, result)
	}
	if err := exportJSON(fsys, result, cfg.OutputJSON); err != nil {
		return fmt.Errorf("failed to export JSON: %w", err)
	}
	monitoring.Logf("results exported to %s", cfg.OutputJSON)
	return nil
}

func printSummary(w io.Writer, result *analysis.Run) {
	s := result.Summary
	fmt.Fprintln(w, "\n=== qPCR Run Summary ===")
	fmt.Fprintf(w, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(w, "Wells: %d (%d invalid)\n", s.Wells, s.Invalid)
	fmt.Fprintf(w, "Reported Cq: %d\n", s.Reported)
	fmt.Fprintf(w, "Edge cases: %d (%d reviewed)\n", s.EdgeCases, s.Reviewed)

	fmt.Fprintln(w, "\n--- Classes ---")
	for _, class := range classify.Classes {
		if n := s.ClassCounts[class]; n > 0 {
			fmt.Fprintf(w, "  %-16s %4d  (avg confidence %.2f)\n", class, n, s.ClassConfidenceAvg[class])
		}
	}

	fmt.Fprintln(w, "\n--- Strict ---")
	for _, strict := range []classify.Strict{classify.StrictPOS, classify.StrictNEG, classify.StrictREDO} {
		fmt.Fprintf(w, "  %-4s %4d\n", strict, s.StrictCounts[strict])
	}
}

func encodeJSON(w io.Writer, result *analysis.Run) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func exportJSON(fsys fsutil.FileSystem, result *analysis.Run, path string) error {
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if err := encodeJSON(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
