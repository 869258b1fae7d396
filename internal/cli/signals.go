package cli

import (
	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	signalsLimit  int
	signalsOrders bool
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List recent persisted signal events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Signals(cmd.Context(), app.SignalsOptions{
			Limit:  signalsLimit,
			Orders: signalsOrders,
		})
	},
}

func init() {
	signalsCmd.Flags().IntVar(&signalsLimit, "limit", 20, "Maximum rows to list")
	signalsCmd.Flags().BoolVar(&signalsOrders, "orders", false, "Also list the sized orders")
}
