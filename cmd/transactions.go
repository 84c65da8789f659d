package cmd

import (
	"fmt"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var transactionsCmd = &cobra.Command{
	Use:   "transactions <username>",
	Short: "Print a user's trade history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.ledger.Transactions(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
			return gocsv.Marshal(records, cmd.OutOrStdout())
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Time", "Side", "Code", "Name", "Price", "Quantity", "Amount"})
		for _, r := range records {
			table.Append([]string{
				r.Timestamp.String(),
				string(r.Type),
				r.StockCode,
				r.StockName,
				r.Price.StringFixed(2),
				fmt.Sprint(r.Quantity),
				r.Amount.StringFixed(2),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	transactionsCmd.Flags().Bool("csv", false, "write CSV instead of a table")
}
