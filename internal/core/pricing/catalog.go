package pricing

import (
	"fmt"
	"sort"
	"time"
)

// CatalogTier is a purchasable product tier. Either PerRecord or FlatPrice is
// set, never both.
type CatalogTier struct {
	Key            string  `json:"key"`
	PerRecord      float64 `json:"per_record,omitempty"`
	FlatPrice      float64 `json:"flat_price,omitempty"`
	MinQuantity    int     `json:"min_quantity"`
	Label          string  `json:"label"`
	Currency       string  `json:"currency"`
	LaunchEligible bool    `json:"launch_eligible"`
}

// Catalog is the agent-facing product table. Enterprise and compliance SKUs
// are invoiced out of band and not listed here.
var Catalog = []CatalogTier{
	{Key: "standard_agent", PerRecord: 0.05, MinQuantity: 1, Label: "Standard record — agent x402 (metadata + image)", Currency: "USDC", LaunchEligible: true},
	{Key: "standard_agent_batch", PerRecord: 0.04, MinQuantity: 100, Label: "Standard record — agent batch x402", Currency: "USDC", LaunchEligible: true},
	{Key: "premium_agent", PerRecord: 0.20, MinQuantity: 1, Label: "Premium record — agent x402 (full enrichment)", Currency: "USDC", LaunchEligible: true},
	{Key: "premium_agent_batch", PerRecord: 0.15, MinQuantity: 100, Label: "Premium record — agent batch x402 (25% off)", Currency: "USDC", LaunchEligible: true},
	{Key: "premium_agent_volume", PerRecord: 0.125, MinQuantity: 500, Label: "Premium record — agent volume x402 (37% off)", Currency: "USDC", LaunchEligible: true},
	{Key: "premium_agent_loyalty", PerRecord: 0.10, MinQuantity: 2000, Label: "Premium record — agent loyalty x402 (50% off)", Currency: "USDC", LaunchEligible: true},
	{Key: "bot_standard_1k", FlatPrice: 40.00, MinQuantity: 1, Label: "Bot Pack — 1K standard records", Currency: "USDC", LaunchEligible: true},
	{Key: "bot_premium_1k", FlatPrice: 175.00, MinQuantity: 1, Label: "Bot Pack — 1K premium records", Currency: "USDC", LaunchEligible: true},
	{Key: "bot_premium_10k", FlatPrice: 1250.00, MinQuantity: 1, Label: "Bot Pack — 10K premium records", Currency: "USDC", LaunchEligible: true},
}

// Quote is a computed price for a tier and quantity.
type Quote struct {
	Tier                 string  `json:"tier"`
	Quantity             int     `json:"quantity"`
	PerRecord            float64 `json:"per_record,omitempty"`
	FlatPrice            float64 `json:"flat_price,omitempty"`
	Total                float64 `json:"total"`
	Currency             string  `json:"currency"`
	Label                string  `json:"label"`
	GenesisEpoch         bool    `json:"genesis_epoch"`
	GenesisDaysRemaining int     `json:"genesis_days_remaining,omitempty"`
	FullPriceTotal       float64 `json:"full_price_total,omitempty"`
}

// FindTier looks up a catalog tier by key.
func FindTier(key string) (CatalogTier, bool) {
	for _, tier := range Catalog {
		if tier.Key == key {
			return tier, true
		}
	}
	return CatalogTier{}, false
}

// Calculate prices a tier for a quantity, applying the launch discount where
// the tier is eligible.
func Calculate(tierKey string, quantity int, now time.Time) (Quote, error) {
	tier, ok := FindTier(tierKey)
	if !ok {
		keys := make([]string, 0, len(Catalog))
		for _, t := range Catalog {
			keys = append(keys, t.Key)
		}
		sort.Strings(keys)
		return Quote{}, fmt.Errorf("unknown pricing tier %q (valid: %v)", tierKey, keys)
	}
	if quantity < tier.MinQuantity {
		return Quote{}, fmt.Errorf("tier %q requires minimum quantity %d, requested %d", tierKey, tier.MinQuantity, quantity)
	}

	launch := tier.LaunchEligible && GenesisActive(now)

	quote := Quote{
		Tier:     tier.Key,
		Quantity: quantity,
		Currency: tier.Currency,
		Label:    tier.Label,
	}

	if tier.FlatPrice > 0 {
		quote.FlatPrice = tier.FlatPrice
		quote.Total = tier.FlatPrice
		quote.FullPriceTotal = tier.FlatPrice
		if launch {
			quote.Total = Round2(tier.FlatPrice * GenesisDiscount)
		}
	} else {
		perRecord := tier.PerRecord
		quote.FullPriceTotal = Round2(tier.PerRecord * float64(quantity))
		if launch {
			perRecord = Round4(perRecord * GenesisDiscount)
		}
		quote.PerRecord = perRecord
		quote.Total = Round2(perRecord * float64(quantity))
	}

	if launch {
		quote.GenesisEpoch = true
		quote.GenesisDaysRemaining = GenesisDaysRemaining(now)
	} else {
		quote.FullPriceTotal = 0
	}

	return quote, nil
}
