package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/iap/plugin"
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("events", true, "Print published events as JSON lines")
}

var runCmd = &cobra.Command{
	Use:   "run SCENARIO.toml",
	Short: "Replay a purchase scenario",
	Long: `Replay a scenario: initialize the orchestrator, reconcile the scripted
inventory, run every purchase in order and print the resulting balances.`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

func runScenario(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sc, err := loadScenario(args[0])
	if err != nil {
		return err
	}

	var plugins []plugin.Plugin
	if show, _ := cmd.Flags().GetBool("events"); show {
		plugins = append(plugins, newPrinter(cmd.OutOrStdout()))
	}

	s, err := newSession(ctx, sc, newLogger(cmd), plugins...)
	if err != nil {
		return err
	}
	defer s.o.Stop() //nolint:errcheck // memory store

	for _, p := range sc.Purchases {
		started, err := s.o.Buy(ctx, p.ProductID, p.Payload)
		if err != nil {
			return fmt.Errorf("buy %s: %w", p.ProductID, err)
		}
		if !started {
			fmt.Fprintf(os.Stderr, "purchase of %s was not started\n", p.ProductID)
		}
		s.backend.Wait()
	}

	balances, err := s.balances(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tBALANCE")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%d\n", id, balances[id])
	}
	return w.Flush()
}
