package cli

import (
	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	scanPair     string
	scanAll      bool
	scanDiagnose bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one sweep over the pair universe and print the board",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ScanOnce(cmd.Context(), app.ScanOptions{
			Pair:     scanPair,
			All:      scanAll,
			Diagnose: scanDiagnose,
		})
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanPair, "pair", "", "Scan a single pair by name")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Scan every configured pair")
	scanCmd.Flags().BoolVar(&scanDiagnose, "diagnose", false, "Add cointegration diagnostics to the board")
}
