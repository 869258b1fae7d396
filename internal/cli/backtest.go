package cli

import (
	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	backtestPair string
	backtestBars int
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate the strategy over cached or fetched history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Backtest(cmd.Context(), app.BacktestOptions{
			Pair: backtestPair,
			Bars: backtestBars,
		})
	},
}

func init() {
	backtestCmd.Flags().StringVar(&backtestPair, "pair", "", "Pair to backtest (defaults to the only configured pair)")
	backtestCmd.Flags().IntVar(&backtestBars, "bars", 0, "History length in bars (defaults to config windows plus margin)")
}
