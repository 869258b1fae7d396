package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stat-arb-signals/internal/app"
)

var (
	exportPair    string
	exportBars    int
	exportFrom    string
	exportTo      string
	exportCSVPath string
	exportPNGPath string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the computed signal series as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			Pair:    exportPair,
			Bars:    exportBars,
			CSVPath: exportCSVPath,
			PNGPath: exportPNGPath,
		}

		if exportFrom != "" {
			from, err := time.Parse(time.RFC3339, exportFrom)
			if err != nil {
				return fmt.Errorf("invalid --from value: %w", err)
			}
			opts.From = &from
		}

		if exportTo != "" {
			to, err := time.Parse(time.RFC3339, exportTo)
			if err != nil {
				return fmt.Errorf("invalid --to value: %w", err)
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPair, "pair", "", "Pair to export (defaults to the only configured pair)")
	exportCmd.Flags().IntVar(&exportBars, "bars", 0, "History length in bars (defaults to config windows plus margin)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End timestamp (RFC3339, exclusive)")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write z-score PNG chart")
}
