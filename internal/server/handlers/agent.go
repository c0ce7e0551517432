// Package handlers implements the HTTP surface of the gate. The agent
// handlers are thin: they wire the fingerprint resolver, the limiter, the
// payment engine, and the volume ledger together per request.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/iaeternum/datagate/internal/core"
	"github.com/iaeternum/datagate/internal/core/fingerprint"
	"github.com/iaeternum/datagate/internal/core/ledger"
	"github.com/iaeternum/datagate/internal/core/limiter"
	"github.com/iaeternum/datagate/internal/core/payment"
	"github.com/iaeternum/datagate/internal/core/pricing"
	servermw "github.com/iaeternum/datagate/internal/server/middleware"
)

// RecordSource resolves catalog records. The catalog pipeline itself is an
// external collaborator; only existence and payload matter to the gate.
type RecordSource interface {
	Record(ctx context.Context, id string) (*core.DataRecord, error)
}

// SettlementLog receives settled payments. Best effort: a write failure is
// logged and never affects the caller's result.
type SettlementLog interface {
	RecordSettlement(ctx context.Context, txRef, wallet string, amountUSD float64, endpoint string, now time.Time) error
}

// Agent bundles the gate components behind the agent-facing routes.
type Agent struct {
	Limiter     *limiter.Limiter
	Payments    *payment.Engine
	Ledger      *ledger.Tracker
	Records     RecordSource
	Settlements SettlementLog

	FreeRequests int
	Window       time.Duration

	Logger *zap.Logger
}

const recordsEndpoint = "records"

// Free endpoints share one generous quota per fingerprint.
const freeEndpointMultiplier = 20

func (a *Agent) allowFree(w http.ResponseWriter, r *http.Request) bool {
	key := "free:" + fingerprint.FromRequest(r)
	if a.Limiter.Allow(r.Context(), key, a.FreeRequests*freeEndpointMultiplier, a.Window) {
		return true
	}
	a.RateLimited(w, r)
	return false
}

// Pricing serves the current price catalog and volume tier table.
func (a *Agent) Pricing(w http.ResponseWriter, r *http.Request) {
	if !a.allowFree(w, r) {
		return
	}
	now := time.Now().UTC()

	writeJSON(w, http.StatusOK, map[string]any{
		"payment_protocol": "x402 USDC on Base L2",
		"network":          a.Payments.Network(),
		"recipient":        a.Payments.PayTo(),
		"free_tier": map[string]any{
			"requests_per_window": a.FreeRequests,
			"window_seconds":      int(a.Window / time.Second),
		},
		"catalog":                pricing.Catalog,
		"volume_tiers":           pricing.VolumeTiers,
		"genesis_epoch":          pricing.GenesisActive(now),
		"genesis_days_remaining": pricing.GenesisDaysRemaining(now),
	})
}

// Tier serves the read-only volume tier lookup for a wallet.
func (a *Agent) Tier(w http.ResponseWriter, r *http.Request) {
	if !a.allowFree(w, r) {
		return
	}
	wallet := chi.URLParam(r, "wallet")
	if wallet == "" {
		servermw.WriteError(w, r, http.StatusBadRequest, "INVALID_INPUT", "wallet is required")
		return
	}

	writeJSON(w, http.StatusOK, a.Ledger.GetTier(r.Context(), wallet))
}

// Record serves one metered catalog record: free while quota lasts, paid via
// x402 after. The existence check runs before any payment verification so a
// caller is never charged for a request that would have failed anyway.
func (a *Agent) Record(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	record, err := a.Records.Record(ctx, id)
	if err != nil {
		a.Logger.Error("record lookup failed", zap.String("id", id), zap.Error(err))
		servermw.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "record lookup failed")
		return
	}
	if record == nil {
		servermw.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "record not found")
		return
	}

	key := recordsEndpoint + ":" + fingerprint.FromRequest(r)
	wallet := fingerprint.Wallet(r)

	if a.Limiter.Allow(ctx, key, a.FreeRequests, a.Window) {
		remaining := a.Limiter.Remaining(ctx, key, a.FreeRequests, a.Window)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		writeJSON(w, http.StatusOK, map[string]any{
			"record": record,
			"tier":   "free",
		})
		return
	}

	// Quota exhausted: this request must be paid for at the wallet's
	// current volume price.
	price := a.Ledger.GetTier(ctx, wallet).PerRecord

	proof := payment.ProofFromHeaders(r.Header.Get)
	if proof == "" {
		a.paymentRequired(w, r, price, "free quota exhausted; payment required")
		return
	}

	result := a.Payments.Verify(ctx, proof, price)
	if !result.Valid {
		a.paymentRequired(w, r, price, result.Error)
		return
	}

	now := time.Now().UTC()
	if a.Settlements != nil {
		if err := a.Settlements.RecordSettlement(ctx, result.TransactionRef, wallet, result.SettledAmountUSD, recordsEndpoint, now); err != nil {
			a.Logger.Warn("settlement log write failed",
				zap.String("tx", result.TransactionRef), zap.Error(err))
		}
	}

	tier := a.Ledger.RecordPurchase(ctx, wallet, 1, result.SettledAmountUSD, recordsEndpoint)

	writeJSON(w, http.StatusOK, map[string]any{
		"record": record,
		"payment": map[string]any{
			"transaction_ref": result.TransactionRef,
			"amount_usd":      result.SettledAmountUSD,
		},
		"volume_tier": tier,
	})
}

// RateLimited writes the 429 response with the Retry-After signal and the
// upgrade options body.
func (a *Agent) RateLimited(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(int(a.Window/time.Second)))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"status":  "free_tier_exhausted",
		"message": "Free quota exceeded. Pay per record via x402 to continue.",
		"upgrade_options": map[string]any{
			"per_record":       fmt.Sprintf("$%.2f USDC per premium record", pricing.VolumeTiers[len(pricing.VolumeTiers)-1].PerRecord),
			"volume_discounts": pricing.VolumeTiers,
		},
		"payment_protocol":   "x402 USDC on Base L2",
		"escalation_contact": pricing.OutreachContact,
	})
}

func (a *Agent) paymentRequired(w http.ResponseWriter, r *http.Request, amountUSD float64, reason string) {
	resourceURL := r.URL.String()

	w.Header().Set("PAYMENT-REQUIRED", a.Payments.Challenge(amountUSD, resourceURL, "metered record access"))
	w.Header().Set("X-PAYMENT-REQUIRED", strconv.FormatFloat(amountUSD, 'f', -1, 64))
	w.Header().Set("X-PAYMENT-CURRENCY", "USDC")
	w.Header().Set("X-PAYMENT-CHAIN", "base")
	w.Header().Set("X-PAYMENT-RECIPIENT", a.Payments.PayTo())

	writeJSON(w, http.StatusPaymentRequired, map[string]any{
		"error":   "Payment required",
		"message": reason,
		"x402": map[string]any{
			"amount":    strconv.FormatFloat(amountUSD, 'f', -1, 64),
			"currency":  "USDC",
			"network":   a.Payments.Network(),
			"recipient": a.Payments.PayTo(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
