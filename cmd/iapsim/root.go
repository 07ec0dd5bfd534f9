package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "iapsim",
	Short: "Run the in-app purchase engine against a simulated marketplace",
	Long: `iapsim wires the purchase orchestrator to an in-process marketplace
simulator. Scenarios script what the marketplace answers for each product,
so purchase, refund and restore flows can be replayed without a device.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log engine internals at debug level")
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
