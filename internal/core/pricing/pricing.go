// Package pricing holds the static price tables for the data gate: the
// per-record volume tiers applied over the 30-day rolling window, the
// enterprise outreach threshold, and the Genesis Epoch launch discount.
package pricing

import (
	"fmt"
	"math"
	"time"
)

// Genesis Epoch launch window. Eligible prices get 20% off until it expires.
var (
	GenesisEpochStart = time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)
)

const (
	GenesisEpochDays = 90
	GenesisDiscount  = 0.80
)

// VolumeTier maps a rolling-window record count floor to a per-record price.
type VolumeTier struct {
	MinRecords int     `json:"min_records"`
	PerRecord  float64 `json:"per_record"`
	Discount   string  `json:"discount"`
	Label      string  `json:"label"`
}

// VolumeTiers is ordered by descending floor; selection takes the first tier
// whose floor the aggregate meets or exceeds.
var VolumeTiers = []VolumeTier{
	{MinRecords: 2000, PerRecord: 0.10, Discount: "50%", Label: "Loyalty floor"},
	{MinRecords: 500, PerRecord: 0.125, Discount: "37%", Label: "Volume"},
	{MinRecords: 100, PerRecord: 0.15, Discount: "25%", Label: "Batch"},
	{MinRecords: 0, PerRecord: 0.20, Discount: "0%", Label: "Standard"},
}

// OutreachThresholdUSD is the 30-day spend at which sales escalation fires.
const OutreachThresholdUSD = 200.00

// OutreachContact receives enterprise escalations.
const OutreachContact = "enterprise@iaeternum.ai"

// TierInfo describes the discount tier applicable to a wallet.
type TierInfo struct {
	PerRecord            float64 `json:"per_record"`
	Discount             string  `json:"discount"`
	Label                string  `json:"label"`
	CumulativeRecords    int     `json:"cumulative_records"`
	SpendInWindow        float64 `json:"spend_30d"`
	EnterpriseOutreach   bool    `json:"enterprise_outreach"`
	EnterpriseMessage    string  `json:"enterprise_message,omitempty"`
	GenesisEpoch         bool    `json:"genesis_epoch"`
	GenesisDaysRemaining int     `json:"genesis_days_remaining,omitempty"`
	FullPrice            float64 `json:"full_price,omitempty"`
}

// GenesisActive reports whether the launch discount still applies at now.
func GenesisActive(now time.Time) bool {
	return now.Sub(GenesisEpochStart) < GenesisEpochDays*24*time.Hour
}

// GenesisDaysRemaining returns whole days left in the launch window, 0 once
// it has expired.
func GenesisDaysRemaining(now time.Time) int {
	elapsed := int(now.Sub(GenesisEpochStart).Hours() / 24)
	remaining := GenesisEpochDays - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// VolumePrice selects the discount tier for a rolling-window record count.
func VolumePrice(cumulativeRecords int, now time.Time) TierInfo {
	for _, tier := range VolumeTiers {
		if cumulativeRecords < tier.MinRecords {
			continue
		}
		info := TierInfo{
			PerRecord:         tier.PerRecord,
			Discount:          tier.Discount,
			Label:             tier.Label,
			CumulativeRecords: cumulativeRecords,
		}
		if GenesisActive(now) {
			info.PerRecord = Round4(tier.PerRecord * GenesisDiscount)
			info.GenesisEpoch = true
			info.GenesisDaysRemaining = GenesisDaysRemaining(now)
			info.FullPrice = tier.PerRecord
		}
		return info
	}

	// VolumeTiers always ends at floor 0, so this is unreachable with a
	// non-negative count.
	return TierInfo{PerRecord: 0.20, Discount: "0%", Label: "Standard"}
}

// OutreachMessage renders the escalation prompt for a 30-day spend figure.
func OutreachMessage(spendUSD float64) string {
	return fmt.Sprintf(
		"You've spent $%.2f in the last 30 days. Enterprise licenses start at $8,000 with full compliance manifests and unlimited API access. Contact %s",
		spendUSD, OutreachContact)
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds to the precision used for per-record prices.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
