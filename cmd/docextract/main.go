package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kirillkom/docextract/internal/config"
	"github.com/kirillkom/docextract/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "docextract",
		Short:         "Deterministic field extraction from invoices, receipts and purchase orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "docextract", logLevel))
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")

	root.AddCommand(newExtractCmd(cfg), newConfigsCmd(cfg))
	return root
}
