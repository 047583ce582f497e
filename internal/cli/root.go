// Package cli provides the ape command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ape/internal/app"
	"github.com/joseph-ayodele/ape/internal/common"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	verbose bool
	persist bool

	cfg    *common.Config
	logger *slog.Logger
	closer func() error
)

var rootCmd = &cobra.Command{
	Use:   "ape",
	Short: "Document extraction and LLM assistant",
	Long: `ape extracts text, tables and form fields from local documents and
talks to the configured LLM providers.

By default the CLI keeps batch state in an in-memory database; pass
--persist to use DB_URL instead.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = common.LoadConfig()
		if verbose {
			cfg.Log.Level = "DEBUG"
		} else if os.Getenv("LOG_LEVEL") == "" {
			cfg.Log.Level = "WARN"
		}
		if !persist {
			cfg.Database.InMemory = true
		}
		logger, closer = common.NewLogger(cfg.Log)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closer != nil {
			if err := closer(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// build wires the components a command needs. Commands that talk to a model
// pass needLLM.
func build(ctx context.Context, needLLM bool) (*app.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, logger, app.Options{RequireLLM: needLLM, SkipLLM: !needLLM})
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&persist, "persist", false, "store batches in DB_URL instead of memory")

	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(dbhealthCmd)
}
