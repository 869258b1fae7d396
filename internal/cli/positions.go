package cli

import (
	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	positionsView  string
	positionsLimit int
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Inspect the paper-trade journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Positions(cmd.Context(), app.PositionsOptions{
			View:  positionsView,
			Limit: positionsLimit,
		})
	},
}

func init() {
	positionsCmd.Flags().StringVar(&positionsView, "view", "open", "View: open, history, or summary")
	positionsCmd.Flags().IntVar(&positionsLimit, "limit", 20, "Maximum rows for the history view")
}
