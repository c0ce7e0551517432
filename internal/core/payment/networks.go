package payment

// Supported settlement networks (CAIP-2 identifiers).
const (
	NetworkBaseMainnet = "eip155:8453"
	NetworkBaseSepolia = "eip155:84532"
)

// NetworkParams carries the per-network settlement asset and its EIP-712
// signing-domain metadata, which the facilitator needs to verify the payment
// signature.
type NetworkParams struct {
	Asset         string
	DomainName    string
	DomainVersion string
}

var networkParams = map[string]NetworkParams{
	NetworkBaseMainnet: {
		Asset:         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		DomainName:    "USD Coin",
		DomainVersion: "2",
	},
	NetworkBaseSepolia: {
		Asset:         "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		DomainName:    "USDC",
		DomainVersion: "2",
	},
}

// ParamsForNetwork resolves settlement parameters for a network identifier,
// defaulting to Base mainnet when the identifier is unrecognized.
func ParamsForNetwork(network string) NetworkParams {
	if params, ok := networkParams[network]; ok {
		return params
	}
	return networkParams[NetworkBaseMainnet]
}
