// Package payment verifies caller-submitted payment proofs by settling them
// against the external x402 facilitator. The engine never raises past its
// own boundary: every failure mode becomes a VerificationResult with a
// descriptive error, and a failed verification is never treated as success.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iaeternum/datagate/internal/core"
	"github.com/iaeternum/datagate/internal/metrics"
)

const (
	settleTimeout = 30 * time.Second

	// firstPartyHost marks the trusted first-party facilitator; only calls
	// to it carry the signed auth assertion.
	firstPartyHost = "cdp.coinbase.com"

	errorBodyLimit = 200
)

// Config carries the engine's settlement parameters.
type Config struct {
	FacilitatorURL string
	Network        string
	PayTo          string

	// TestMode accepts any non-empty proof without a facilitator call.
	// The config loader force-clears it in production environments.
	TestMode bool

	APIKeyID     string
	APIKeySecret string
}

// Engine verifies payment proofs against the facilitator.
type Engine struct {
	cfg    Config
	client *http.Client
	signer *FacilitatorSigner
	logger *zap.Logger
}

// NewEngine constructs the verification engine. Missing signing credentials
// are not fatal: settlement is attempted without auth and the facilitator's
// own rejection surfaces naturally.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		cfg:    cfg,
		client: &http.Client{Timeout: settleTimeout},
		logger: logger,
	}

	if strings.Contains(cfg.FacilitatorURL, firstPartyHost) && cfg.APIKeyID != "" && cfg.APIKeySecret != "" {
		signer, err := NewFacilitatorSigner(cfg.APIKeyID, cfg.APIKeySecret)
		if err != nil {
			logger.Warn("facilitator credentials unusable, settling without auth", zap.Error(err))
		} else {
			engine.signer = signer
		}
	}

	return engine
}

// Network returns the configured settlement network identifier.
func (e *Engine) Network() string { return e.cfg.Network }

// PayTo returns the configured recipient address.
func (e *Engine) PayTo() string { return e.cfg.PayTo }

// Challenge renders the base64 payment-required header for an amount.
func (e *Engine) Challenge(amountUSD float64, resourceURL, description string) string {
	return EncodeChallenge(e.cfg.Network, e.cfg.PayTo, amountUSD, resourceURL, description)
}

type settleRequest struct {
	X402Version         int            `json:"x402Version"`
	PaymentPayload      map[string]any `json:"paymentPayload"`
	PaymentRequirements Requirements   `json:"paymentRequirements"`
}

// Verify checks a payment proof against the required amount. The
// requirements sent to the facilitator are rebuilt server-side from the
// quoted amount so the facilitator settles exactly the advertised
// transaction.
func (e *Engine) Verify(ctx context.Context, proofHeader string, requiredUSD float64) core.VerificationResult {
	if strings.TrimSpace(proofHeader) == "" {
		return failure("missing payment proof")
	}

	if e.cfg.TestMode {
		e.logger.Warn("payment test mode: accepting proof without settlement")
		return core.VerificationResult{
			Valid:            true,
			SettledAmountUSD: requiredUSD,
			TransactionRef:   "test-mode-no-tx",
		}
	}

	proof, err := DecodeProof(proofHeader)
	if err != nil {
		metrics.RecordSettlement("rejected")
		return failure("cannot decode payment header")
	}

	result := e.settle(ctx, proof, requiredUSD)
	switch {
	case result.Valid:
		metrics.RecordSettlement("settled")
	case strings.Contains(result.Error, "request failed"):
		metrics.RecordSettlement("error")
	default:
		metrics.RecordSettlement("rejected")
	}
	return result
}

func (e *Engine) settle(ctx context.Context, proof *Proof, requiredUSD float64) core.VerificationResult {
	body, err := json.Marshal(settleRequest{
		X402Version:         proof.Version,
		PaymentPayload:      proof.Payload,
		PaymentRequirements: BuildRequirements(e.cfg.Network, e.cfg.PayTo, requiredUSD),
	})
	if err != nil {
		return failure(fmt.Sprintf("encode settle request: %v", err))
	}

	settleURL := strings.TrimSuffix(e.cfg.FacilitatorURL, "/") + "/settle"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settleURL, bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Sprintf("build settle request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	if e.signer != nil {
		if parsed, err := url.Parse(settleURL); err == nil {
			token, err := e.signer.Bearer(http.MethodPost, parsed.Host, parsed.Path)
			if err != nil {
				e.logger.Warn("facilitator auth signing failed, settling without auth", zap.Error(err))
			} else {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("facilitator settle request failed", zap.Error(err))
		return failure(fmt.Sprintf("facilitator request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure(fmt.Sprintf("facilitator request failed: read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("facilitator settle rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(raw), 500)))
		return failure(fmt.Sprintf("facilitator settle failed (%d): %s", resp.StatusCode, truncate(string(raw), errorBodyLimit)))
	}

	return e.interpret(raw, requiredUSD)
}

type settleResponse struct {
	Success     bool            `json:"success"`
	Transaction json.RawMessage `json:"transaction"`
	TxHash      string          `json:"txHash"`
	Error       string          `json:"error"`
}

// interpret handles both facilitator response shapes: a bare JSON string is
// a successful settlement whose value is the transaction reference; an
// object carries an explicit success flag.
func (e *Engine) interpret(raw []byte, requiredUSD float64) core.VerificationResult {
	var txRef string
	if err := json.Unmarshal(raw, &txRef); err == nil {
		return settled(requiredUSD, txRef)
	}

	var parsed settleResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return failure(fmt.Sprintf("unexpected facilitator response: %s", truncate(string(raw), errorBodyLimit)))
	}

	if !parsed.Success {
		reason := parsed.Error
		if reason == "" {
			reason = "Settlement failed"
		}
		return failure(reason)
	}

	return settled(requiredUSD, transactionRef(parsed))
}

// transactionRef extracts the reference from either a string transaction
// field, a nested {txHash} object, or the legacy top-level txHash.
func transactionRef(resp settleResponse) string {
	if len(resp.Transaction) > 0 {
		var asString string
		if json.Unmarshal(resp.Transaction, &asString) == nil {
			return asString
		}
		var nested struct {
			TxHash string `json:"txHash"`
		}
		if json.Unmarshal(resp.Transaction, &nested) == nil && nested.TxHash != "" {
			return nested.TxHash
		}
	}
	return resp.TxHash
}

func settled(amountUSD float64, txRef string) core.VerificationResult {
	return core.VerificationResult{
		Valid:            true,
		SettledAmountUSD: amountUSD,
		TransactionRef:   txRef,
	}
}

func failure(reason string) core.VerificationResult {
	return core.VerificationResult{Valid: false, Error: reason}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
