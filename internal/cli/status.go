package cli

import (
	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	statusActive   bool
	statusDiagnose bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the pair board without stepping any state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Status(cmd.Context(), app.StatusOptions{
			Active:   statusActive,
			Diagnose: statusDiagnose,
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusActive, "active", false, "Only pairs stretched beyond the entry threshold")
	statusCmd.Flags().BoolVar(&statusDiagnose, "diagnose", false, "Annotate each pair with cointegration diagnostics")
}
