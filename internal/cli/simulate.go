package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	simulatePair   string
	simulateAction string
	simulateZ      float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Dispatch a synthetic signal through the sizing and alert path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateAction == "" {
			return errors.New("--action is required (ENTER_LONG, ENTER_SHORT, EXIT, STOP_LOSS)")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Pair:   simulatePair,
			Action: simulateAction,
			Z:      simulateZ,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePair, "pair", "", "Pair to simulate on (defaults to the only configured pair)")
	simulateCmd.Flags().StringVar(&simulateAction, "action", "", "Signal action to simulate")
	simulateCmd.Flags().Float64Var(&simulateZ, "z", 0, "Synthetic z-score (defaults to just beyond the action's threshold)")
}
