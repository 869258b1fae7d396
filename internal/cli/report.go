package cli

import (
	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	reportPair   string
	reportBars   int
	reportOutDir string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run a backtest and write the full report bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), app.ReportOptions{
			Pair:   reportPair,
			Bars:   reportBars,
			OutDir: reportOutDir,
		})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportPair, "pair", "", "Pair to report on (defaults to the only configured pair)")
	reportCmd.Flags().IntVar(&reportBars, "bars", 0, "History length in bars (defaults to config windows plus margin)")
	reportCmd.Flags().StringVar(&reportOutDir, "out", "reports", "Directory to write the report bundle into")
}
