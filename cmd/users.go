package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"stocks-trader/ledger"
	"stocks-trader/models"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every account with its assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.ledger.Statistics(cmd.Context(), cfg.Currency)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Username", "Role", "Balance", "Holdings", "Trades", "Total Assets"})
		for _, u := range st.Users {
			table.Append([]string{
				u.Username,
				string(u.Role),
				u.Balance.StringFixed(2),
				fmt.Sprint(u.Holdings),
				fmt.Sprint(u.Transactions),
				u.TotalDisplay,
			})
		}
		table.SetFooter([]string{"", "", "", "", fmt.Sprint(st.TradeCount), st.TradeVolume})
		table.Render()
		return nil
	},
}

var usersAddCmd = &cobra.Command{
	Use:   "add <username> <password>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawRole, _ := cmd.Flags().GetString("role")
		role, err := models.ParseRole(rawRole)
		if err != nil {
			return err
		}
		balance := ledger.DefaultInitialBalance
		if cmd.Flags().Changed("balance") {
			raw, _ := cmd.Flags().GetString("balance")
			if balance, err = decimal.NewFromString(raw); err != nil {
				return fmt.Errorf("--balance %q: %w", raw, models.ErrInvalidAmount)
			}
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		user, err := a.ledger.AddUser(cmd.Context(), args[0], args[1], role, balance)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) with balance %s\n", user.Username, user.Type, user.Balance.StringFixed(2))
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete an account, keeping its transaction log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ledger.DeleteUser(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	usersAddCmd.Flags().String("role", string(models.RoleUser), "user or admin")
	usersAddCmd.Flags().String("balance", "", "initial balance (default 100000)")
	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersDeleteCmd)
}
