package payment

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// Proof header names accepted from callers. The v2 header takes precedence
// when both are present.
const (
	ProofHeaderV2 = "PAYMENT-SIGNATURE"
	ProofHeaderV1 = "X-PAYMENT"
)

// Proof is the decoded caller-submitted payment payload. Ephemeral: it lives
// only for the duration of one verification call.
type Proof struct {
	Version int
	Payload map[string]any
}

// ErrUndecodable means the header matched neither wire format.
var ErrUndecodable = errors.New("cannot decode payment header")

// DecodeProof parses a payment proof header: base64-wrapped JSON first (the
// v2 shape), then raw JSON (v1). The payload's own x402Version field wins,
// defaulting to 1 when absent.
func DecodeProof(header string) (*Proof, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrUndecodable
	}

	var payload map[string]any
	if decoded, err := base64.StdEncoding.DecodeString(header); err == nil {
		if json.Unmarshal(decoded, &payload) == nil && payload != nil {
			return &Proof{Version: payloadVersion(payload), Payload: payload}, nil
		}
		payload = nil
	}

	if json.Unmarshal([]byte(header), &payload) == nil && payload != nil {
		return &Proof{Version: payloadVersion(payload), Payload: payload}, nil
	}

	return nil, ErrUndecodable
}

func payloadVersion(payload map[string]any) int {
	if raw, ok := payload["x402Version"]; ok {
		if v, ok := raw.(float64); ok && v > 0 {
			return int(v)
		}
	}
	return 1
}

// ProofFromHeaders picks the proof header off a request header getter,
// preferring the v2 form.
func ProofFromHeaders(get func(string) string) string {
	if v2 := strings.TrimSpace(get(ProofHeaderV2)); v2 != "" {
		return v2
	}
	return strings.TrimSpace(get(ProofHeaderV1))
}
