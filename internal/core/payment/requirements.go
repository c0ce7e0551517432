package payment

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
)

const (
	schemeExact              = "exact"
	settlementTimeoutSeconds = 300
	assetDecimals            = 1_000_000 // settlement asset uses 6 decimal places
)

// Requirements is the exact scheme/network/asset/amount/recipient tuple the
// facilitator must match against the submitted proof. It must reproduce
// byte-for-byte the terms quoted to the caller, never a caller-supplied
// substitute.
type Requirements struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	Asset             string            `json:"asset"`
	Amount            string            `json:"amount"`
	PayTo             string            `json:"payTo"`
	MaxTimeoutSeconds int               `json:"maxTimeoutSeconds"`
	Extra             map[string]string `json:"extra"`
}

// AmountToAtomic converts a USD amount to the settlement asset's smallest
// integer unit.
func AmountToAtomic(amountUSD float64) string {
	return strconv.FormatInt(int64(math.Round(amountUSD*assetDecimals)), 10)
}

// BuildRequirements assembles the settlement requirements for a quoted
// amount on a network, paying to the configured recipient.
func BuildRequirements(network, payTo string, amountUSD float64) Requirements {
	params := ParamsForNetwork(network)
	return Requirements{
		Scheme:            schemeExact,
		Network:           network,
		Asset:             params.Asset,
		Amount:            AmountToAtomic(amountUSD),
		PayTo:             payTo,
		MaxTimeoutSeconds: settlementTimeoutSeconds,
		Extra: map[string]string{
			"name":    params.DomainName,
			"version": params.DomainVersion,
		},
	}
}

// Challenge is the structured body of the 402 payment-required header.
type Challenge struct {
	X402Version int            `json:"x402Version"`
	Accepts     []Requirements `json:"accepts"`
	Resource    *ResourceInfo  `json:"resource,omitempty"`
}

// ResourceInfo optionally names the resource the challenge covers.
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// EncodeChallenge renders the base64 PAYMENT-REQUIRED header value for an
// amount, optionally binding it to a resource URL.
func EncodeChallenge(network, payTo string, amountUSD float64, resourceURL, description string) string {
	challenge := Challenge{
		X402Version: 2,
		Accepts:     []Requirements{BuildRequirements(network, payTo, amountUSD)},
	}
	if resourceURL != "" {
		challenge.Resource = &ResourceInfo{URL: resourceURL, Description: description}
	}

	encoded, err := json.Marshal(challenge)
	if err != nil {
		// Requirements marshals from plain strings and maps; this cannot
		// fail at runtime.
		return ""
	}
	return base64.StdEncoding.EncodeToString(encoded)
}
