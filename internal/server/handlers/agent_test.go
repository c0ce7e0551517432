package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iaeternum/datagate/internal/core"
	"github.com/iaeternum/datagate/internal/core/fingerprint"
	"github.com/iaeternum/datagate/internal/core/ledger"
	"github.com/iaeternum/datagate/internal/core/limiter"
	"github.com/iaeternum/datagate/internal/core/payment"
)

type fakeRecords struct {
	records map[string]*core.DataRecord
	err     error
}

func (f *fakeRecords) Record(_ context.Context, id string) (*core.DataRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[id], nil
}

type fakeLedgerStore struct {
	ledgers map[string]*core.WalletLedger
}

func (f *fakeLedgerStore) WalletLedger(_ context.Context, wallet string) (*core.WalletLedger, error) {
	return f.ledgers[wallet], nil
}

func (f *fakeLedgerStore) SaveWalletLedger(_ context.Context, led *core.WalletLedger, _ time.Time) (bool, error) {
	cp := *led
	f.ledgers[led.Wallet] = &cp
	return true, nil
}

type fakeSettlements struct {
	entries []string
}

func (f *fakeSettlements) RecordSettlement(_ context.Context, txRef, _ string, _ float64, _ string, _ time.Time) error {
	f.entries = append(f.entries, txRef)
	return nil
}

// afterLaunch keeps launch-window discounts out of price assertions.
var afterLaunch = time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

func newTestAgent(t *testing.T, freeRequests int) (*Agent, *fakeSettlements) {
	t.Helper()

	settlements := &fakeSettlements{}
	agent := &Agent{
		Limiter: limiter.New(nil, zap.NewNop(), limiter.WithClock(func() time.Time { return afterLaunch })),
		Payments: payment.NewEngine(payment.Config{
			FacilitatorURL: "http://facilitator.invalid",
			Network:        payment.NetworkBaseMainnet,
			PayTo:          "0xRecipient",
			TestMode:       true,
		}, zap.NewNop()),
		Ledger: ledger.New(&fakeLedgerStore{ledgers: map[string]*core.WalletLedger{}}, zap.NewNop(),
			ledger.WithClock(func() time.Time { return afterLaunch })),
		Records: &fakeRecords{records: map[string]*core.DataRecord{
			"rec_001": {ID: "rec_001", Title: "Sample", Payload: map[string]any{"k": "v"}},
		}},
		Settlements:  settlements,
		FreeRequests: freeRequests,
		Window:       24 * time.Hour,
		Logger:       zap.NewNop(),
	}
	return agent, settlements
}

func newRouter(agent *Agent) http.Handler {
	r := chi.NewRouter()
	r.Get("/agent/pricing", agent.Pricing)
	r.Get("/agent/tier/{wallet}", agent.Tier)
	r.Get("/agent/records/{id}", agent.Record)
	return r
}

func getRecord(t *testing.T, router http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("GET", "/agent/records/rec_001", nil)
	req.RemoteAddr = "203.0.113.7:55000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRecordFreeQuota(t *testing.T) {
	agent, _ := newTestAgent(t, 2)
	router := newRouter(agent)

	rec := getRecord(t, router, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "free", body["tier"])

	rec = getRecord(t, router, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRecordPaymentRequired(t *testing.T) {
	agent, _ := newTestAgent(t, 0)
	router := newRouter(agent)

	rec := getRecord(t, router, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	require.Equal(t, "USDC", rec.Header().Get("X-PAYMENT-CURRENCY"))
	require.Equal(t, "base", rec.Header().Get("X-PAYMENT-CHAIN"))
	require.Equal(t, "0xRecipient", rec.Header().Get("X-PAYMENT-RECIPIENT"))
	require.Equal(t, "0.2", rec.Header().Get("X-PAYMENT-REQUIRED"))

	decoded, err := base64.StdEncoding.DecodeString(rec.Header().Get("PAYMENT-REQUIRED"))
	require.NoError(t, err)

	var challenge payment.Challenge
	require.NoError(t, json.Unmarshal(decoded, &challenge))
	require.Equal(t, 2, challenge.X402Version)
	require.Len(t, challenge.Accepts, 1)
	require.Equal(t, "200000", challenge.Accepts[0].Amount)
	require.Equal(t, "/agent/records/rec_001", challenge.Resource.URL)
}

func TestRecordPaidFlow(t *testing.T) {
	agent, settlements := newTestAgent(t, 0)
	router := newRouter(agent)

	proof := base64.StdEncoding.EncodeToString([]byte(`{"x402Version":2,"payload":{}}`))
	rec := getRecord(t, router, map[string]string{
		payment.ProofHeaderV2:    proof,
		fingerprint.WalletHeader: "0xBuyer",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Payment struct {
			TransactionRef string  `json:"transaction_ref"`
			AmountUSD      float64 `json:"amount_usd"`
		} `json:"payment"`
		VolumeTier struct {
			Label             string `json:"label"`
			CumulativeRecords int    `json:"cumulative_records"`
		} `json:"volume_tier"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "test-mode-no-tx", body.Payment.TransactionRef)
	require.Equal(t, 0.20, body.Payment.AmountUSD)
	require.Equal(t, "Standard", body.VolumeTier.Label)
	require.Equal(t, 1, body.VolumeTier.CumulativeRecords)

	require.Equal(t, []string{"test-mode-no-tx"}, settlements.entries)
}

func TestRecordNotFound(t *testing.T) {
	agent, _ := newTestAgent(t, 5)
	router := newRouter(agent)

	req := httptest.NewRequest("GET", "/agent/records/rec_404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPricing(t *testing.T) {
	agent, _ := newTestAgent(t, 5)
	router := newRouter(agent)

	req := httptest.NewRequest("GET", "/agent/pricing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, payment.NetworkBaseMainnet, body["network"])
	require.Equal(t, "0xRecipient", body["recipient"])
	require.NotEmpty(t, body["catalog"])
	require.NotEmpty(t, body["volume_tiers"])
}

func TestTier(t *testing.T) {
	agent, _ := newTestAgent(t, 5)
	router := newRouter(agent)

	req := httptest.NewRequest("GET", "/agent/tier/0xNobody", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Standard", body["label"])
}

func TestFreeEndpointsRateLimited(t *testing.T) {
	agent, _ := newTestAgent(t, 1)
	router := newRouter(agent)

	var last *httptest.ResponseRecorder
	for i := 0; i < freeEndpointMultiplier+1; i++ {
		req := httptest.NewRequest("GET", "/agent/pricing", nil)
		req.RemoteAddr = "203.0.113.7:55000"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.Equal(t, "86400", last.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(last.Body.Bytes(), &body))
	require.Equal(t, "free_tier_exhausted", body["status"])
	require.Contains(t, body, "upgrade_options")
}
