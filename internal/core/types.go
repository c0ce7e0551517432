package core

import "time"

// RateLimitWindow is one (key, bucket) counter document in the durable store.
// Count only ever moves up; the admission decision enforces the ceiling, the
// stored value is never corrected after the fact.
type RateLimitWindow struct {
	Key          string    `json:"key"`
	WindowBucket string    `json:"window_bucket"`
	Count        int       `json:"count"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// VerificationResult reports the outcome of one payment verification attempt.
// It is never persisted; a successful result is what authorizes the
// settlement-log write and the ledger update that follow it.
type VerificationResult struct {
	Valid            bool    `json:"valid"`
	SettledAmountUSD float64 `json:"settled_amount_usd"`
	TransactionRef   string  `json:"transaction_ref,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// LedgerEntry is a single purchase event inside a wallet's rolling window.
type LedgerEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Records   int       `json:"records"`
	AmountUSD float64   `json:"amount_usd"`
	Endpoint  string    `json:"endpoint"`
}

// WalletLedger aggregates a wallet's purchases over the rolling window.
// Events never contain an entry older than the window at the moment of any
// write; RecordsInWindow and SpendInWindow are recomputed on every write.
type WalletLedger struct {
	Wallet          string        `json:"wallet"`
	Events          []LedgerEntry `json:"events"`
	RecordsInWindow int           `json:"records_in_window"`
	SpendInWindow   float64       `json:"spend_in_window"`
	FirstSeenAt     time.Time     `json:"first_seen_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// DataRecord is one unit of the metered catalog a caller pays for. The
// catalog pipeline itself lives behind the gate; only identity and payload
// matter here.
type DataRecord struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Payload map[string]any `json:"payload,omitempty"`
}
