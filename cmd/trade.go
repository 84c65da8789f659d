package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"stocks-trader/models"
)

var tradeCmd = &cobra.Command{
	Use:     "trade <username> <buy|sell> <code> <quantity>",
	Short:   "Execute a trade at the cached price",
	Example: "stocks-trader trade user buy sh.600000 100",
	Args:    cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		side, err := models.ParseSide(args[1])
		if err != nil {
			return err
		}
		quantity, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return fmt.Errorf("quantity %q: %w", args[3], models.ErrInvalidQuantity)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.ledger.ExecuteTrade(cmd.Context(), args[0], side, args[2], quantity)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d %s (%s) @ %s = %s\n",
			rec.Username, rec.Type, rec.Quantity, rec.StockCode, rec.StockName,
			rec.Price.StringFixed(2), rec.Amount.StringFixed(2))
		return nil
	},
}
