package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/iaeternum/datagate/internal/core/pricing"
)

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Print the price catalog and volume tier tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now().UTC()

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetTitle("Price catalog")
		t.AppendHeader(table.Row{"Key", "Label", "Price", "Min Qty", "Launch Eligible"})
		for _, ct := range pricing.Catalog {
			t.AppendRow(table.Row{
				ct.Key,
				ct.Label,
				catalogPrice(ct),
				ct.MinQuantity,
				ct.LaunchEligible,
			})
		}
		fmt.Println(t.Render())

		v := table.NewWriter()
		v.SetStyle(table.StyleRounded)
		v.SetTitle("Volume tiers (30-day rolling window)")
		v.AppendHeader(table.Row{"Tier", "Min Records", "Per Record", "Discount"})
		for _, vt := range pricing.VolumeTiers {
			v.AppendRow(table.Row{
				vt.Label,
				vt.MinRecords,
				fmt.Sprintf("$%.4g", vt.PerRecord),
				vt.Discount,
			})
		}
		if pricing.GenesisActive(now) {
			v.AppendFooter(table.Row{
				"", "", "",
				fmt.Sprintf("Genesis Epoch: extra 20%% off, %d days left", pricing.GenesisDaysRemaining(now)),
			})
		}
		fmt.Println(v.Render())

		return nil
	},
}

func catalogPrice(ct pricing.CatalogTier) string {
	if ct.FlatPrice > 0 {
		return fmt.Sprintf("$%.2f flat", ct.FlatPrice)
	}
	return fmt.Sprintf("$%.4g/record", ct.PerRecord)
}

func init() {
	rootCmd.AddCommand(tiersCmd)
}
