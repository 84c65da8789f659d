package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stocks-trader/database"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the starter accounts and quotes into empty collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := database.Seed(cmd.Context(), a.store, time.Now()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "seed complete")
		return nil
	},
}
