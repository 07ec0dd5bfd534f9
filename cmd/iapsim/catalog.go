package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/iap/catalog"
)

func init() {
	rootCmd.AddCommand(catalogCmd)
}

var catalogCmd = &cobra.Command{
	Use:   "catalog ASSETS.yaml",
	Short: "Validate a catalog file and list its items",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	assets, err := catalog.LoadFile(args[0])
	if err != nil {
		return err
	}
	// Load runs the cross-item checks.
	c := catalog.New()
	if err := c.Load(assets); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "version %d\n", c.Version())
	fmt.Fprintln(w, "ID\tKIND\tPRODUCT\tPRICE")
	for _, it := range c.Items() {
		price := "-"
		if l, ok := it.Listing(); ok {
			price = l.Price.String()
		} else if cp := it.Purchase.Currency; cp != nil {
			price = fmt.Sprintf("%d %s", cp.Amount, cp.CurrencyItemID)
		}
		product := it.ProductID()
		if product == "" {
			product = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.ID, it.Kind, product, price)
	}
	return w.Flush()
}
