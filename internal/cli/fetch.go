package cli

import (
	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var fetchBars int

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download candle history for all configured pairs into the CSV cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Fetch(cmd.Context(), app.FetchOptions{
			Bars: fetchBars,
		})
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchBars, "bars", 0, "Bars per symbol (defaults to config windows plus margin)")
}
