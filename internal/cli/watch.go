package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ape/internal/extract"
	"github.com/joseph-ayodele/ape/internal/ingest"
)

var (
	watchInitialScan bool
	watchDebounce    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Extract files as they appear under one or more directories",
	Long: `Watch directories recursively and extract each supported file when it is
created or rewritten. Runs until interrupted.

Examples:
  ape watch ./inbox
  ape watch ./inbox ./scans --initial-scan --debounce 2s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchInitialScan, "initial-scan", false, "also extract files already present")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "coalesce write bursts per file")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	paths, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       args,
		InitialScan: watchInitialScan,
		Debounce:    watchDebounce,
	}, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Watching %d director%s, press Ctrl+C to stop\n", len(args), plural(len(args), "y", "ies"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case path, ok := <-paths:
			if !ok {
				return nil
			}
			jobID := a.Tracker.Create(filepath.Base(path), fileSize(path))
			printResult(path, a.Dispatcher.Extract(ctx, path, jobID))
		}
	}
}

func printResult(path string, res extract.Result) {
	name := filepath.Base(path)
	if res.Failed() {
		fmt.Printf("x %s: %s\n", name, res.Error)
		return
	}
	switch res.Kind {
	case extract.KindTable:
		fmt.Printf("+ %s: %d table(s), %d row(s) via %s\n", name, len(res.Tables), res.RowCount(), res.Metadata.Method)
	case extract.KindForm:
		fmt.Printf("+ %s: %d form field(s) via %s\n", name, len(res.Forms), res.Metadata.Method)
	case extract.KindUnavailable:
		fmt.Printf("- %s: %s\n", name, res.Note)
	default:
		fmt.Printf("+ %s: %d characters via %s\n", name, res.Metadata.Characters, res.Metadata.Method)
	}
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
