package cli

import (
	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	walkForwardPair  string
	walkForwardBars  int
	walkForwardFolds int
)

var walkForwardCmd = &cobra.Command{
	Use:   "walkforward",
	Short: "Evaluate the strategy over sequential out-of-sample folds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WalkForward(cmd.Context(), app.WalkForwardOptions{
			Pair:  walkForwardPair,
			Bars:  walkForwardBars,
			Folds: walkForwardFolds,
		})
	},
}

func init() {
	walkForwardCmd.Flags().StringVar(&walkForwardPair, "pair", "", "Pair to evaluate (defaults to the only configured pair)")
	walkForwardCmd.Flags().IntVar(&walkForwardBars, "bars", 0, "History length in bars (defaults to config windows plus margin)")
	walkForwardCmd.Flags().IntVar(&walkForwardFolds, "folds", 4, "Number of out-of-sample folds")
}
