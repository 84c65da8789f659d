package cmd

import (
	"errors"
	"fmt"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"stocks-trader/models"
	"stocks-trader/quotes"
)

var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Inspect and maintain cached quotes",
}

var quotesListCmd = &cobra.Command{
	Use:   "list [keyword]",
	Short: "Print cached quotes, optionally filtered by code or name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var found []*models.Instrument
		if len(args) == 1 {
			found = a.quotes.Search(cmd.Context(), args[0])
		} else {
			all, err := a.quotes.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, inst := range all {
				found = append(found, inst)
			}
			sort.Slice(found, func(i, j int) bool { return found[i].Code < found[j].Code })
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Code", "Name", "Price", "Change %"})
		for _, inst := range found {
			table.Append([]string{inst.Code, inst.Name, inst.Price.StringFixed(2), inst.Change.StringFixed(2)})
		}
		table.Render()
		return nil
	},
}

var quotesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile every cached quote against Alpha Vantage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		feed := a.feed()
		if feed == nil {
			return errors.New("ALPHA_VANTAGE_API_KEY must be set")
		}
		return a.reconciler.Sync(cmd.Context(), feed)
	},
}

var quotesSetCmd = &cobra.Command{
	Use:     "set <code>",
	Short:   "Create or override one quote",
	Example: "stocks-trader quotes set sh.600000 --price 11.80 --change 0.77",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fields quotes.Fields
		flags := cmd.Flags()
		if flags.Changed("name") {
			name, _ := flags.GetString("name")
			fields.Name = &name
		}
		for flag, dst := range map[string]**decimal.Decimal{"price": &fields.Price, "change": &fields.Change} {
			if !flags.Changed(flag) {
				continue
			}
			raw, _ := flags.GetString(flag)
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("--%s %q: %w", flag, raw, err)
			}
			*dst = &v
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		inst, err := a.quotes.Patch(cmd.Context(), args[0], fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (%s%%)\n", inst.Code, inst.Name, inst.Price.StringFixed(2), inst.Change.StringFixed(2))
		return nil
	},
}

func init() {
	quotesSetCmd.Flags().String("name", "", "display name")
	quotesSetCmd.Flags().String("price", "", "last price")
	quotesSetCmd.Flags().String("change", "", "percent change")
	quotesCmd.AddCommand(quotesListCmd, quotesSyncCmd, quotesSetCmd)
}
