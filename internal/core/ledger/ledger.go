// Package ledger tracks per-wallet purchase volume over a 30-day rolling
// window and maps the aggregate onto a discount tier. Pricing here is
// advisory to the surrounding billing logic: any storage failure degrades to
// the standard tier and never blocks the caller's request.
package ledger

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iaeternum/datagate/internal/core"
	"github.com/iaeternum/datagate/internal/core/pricing"
)

const (
	windowDays = 30

	// maxSaveAttempts bounds the optimistic-concurrency retry loop for the
	// per-wallet append-and-recompute write.
	maxSaveAttempts = 3
)

// Store persists wallet ledgers.
type Store interface {
	// WalletLedger returns the ledger document, nil when the wallet is
	// unknown.
	WalletLedger(ctx context.Context, wallet string) (*core.WalletLedger, error)

	// SaveWalletLedger writes the document if prevUpdatedAt still matches
	// the stored version (zero time means "must not exist"). Returns false
	// on a concurrent-writer conflict.
	SaveWalletLedger(ctx context.Context, ledger *core.WalletLedger, prevUpdatedAt time.Time) (bool, error)
}

// Tracker is the volume ledger component. Construct once at service start
// and inject into every handler.
type Tracker struct {
	store  Store
	logger *zap.Logger
	clock  func() time.Time
}

// Option adjusts tracker construction.
type Option func(*Tracker)

// WithClock overrides the time source; used by tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// New creates a tracker. A nil store makes every lookup return the standard
// tier.
func New(store Store, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		store:  store,
		logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordPurchase appends a purchase event to the wallet's ledger, prunes
// events outside the rolling window, recomputes the aggregates, and returns
// the tier now applicable to the wallet. Prune, append, and aggregate land
// in one store write guarded by an optimistic precondition.
func (t *Tracker) RecordPurchase(ctx context.Context, wallet string, records int, amountUSD float64, endpoint string) pricing.TierInfo {
	now := t.clock()
	wallet = strings.TrimSpace(wallet)

	if t.store == nil || wallet == "" {
		return pricing.VolumePrice(0, now)
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		led, err := t.store.WalletLedger(ctx, wallet)
		if err != nil {
			t.logger.Warn("volume ledger load failed",
				zap.String("wallet", shortWallet(wallet)), zap.Error(err))
			return pricing.VolumePrice(0, now)
		}

		var prevUpdatedAt time.Time
		if led == nil {
			led = &core.WalletLedger{Wallet: wallet, FirstSeenAt: now}
		} else {
			prevUpdatedAt = led.UpdatedAt
		}

		cutoff := now.AddDate(0, 0, -windowDays)
		kept := led.Events[:0]
		for _, event := range led.Events {
			if event.Timestamp.After(cutoff) {
				kept = append(kept, event)
			}
		}
		led.Events = append(kept, core.LedgerEntry{
			Timestamp: now,
			Records:   records,
			AmountUSD: amountUSD,
			Endpoint:  endpoint,
		})

		led.RecordsInWindow = 0
		led.SpendInWindow = 0
		for _, event := range led.Events {
			led.RecordsInWindow += event.Records
			led.SpendInWindow += event.AmountUSD
		}
		led.SpendInWindow = pricing.Round2(led.SpendInWindow)
		// nanosecond clock resolution keeps versions distinct across writers
		led.UpdatedAt = t.clock()

		saved, err := t.store.SaveWalletLedger(ctx, led, prevUpdatedAt)
		if err != nil {
			t.logger.Warn("volume ledger write failed",
				zap.String("wallet", shortWallet(wallet)), zap.Error(err))
			return pricing.VolumePrice(0, now)
		}
		if saved {
			return t.tierInfo(led, now)
		}
		// another writer won the race; reload and retry
	}

	t.logger.Warn("volume ledger contention exhausted retries",
		zap.String("wallet", shortWallet(wallet)))
	return pricing.VolumePrice(0, now)
}

// GetTier returns the wallet's current tier without recording a purchase.
// Unknown wallets and store failures map to the standard tier.
func (t *Tracker) GetTier(ctx context.Context, wallet string) pricing.TierInfo {
	now := t.clock()
	wallet = strings.TrimSpace(wallet)

	if t.store == nil || wallet == "" {
		return pricing.VolumePrice(0, now)
	}

	led, err := t.store.WalletLedger(ctx, wallet)
	if err != nil {
		t.logger.Warn("volume tier lookup failed",
			zap.String("wallet", shortWallet(wallet)), zap.Error(err))
		return pricing.VolumePrice(0, now)
	}
	if led == nil {
		return pricing.VolumePrice(0, now)
	}

	return t.tierInfo(led, now)
}

func (t *Tracker) tierInfo(led *core.WalletLedger, now time.Time) pricing.TierInfo {
	info := pricing.VolumePrice(led.RecordsInWindow, now)
	info.SpendInWindow = led.SpendInWindow
	if led.SpendInWindow >= pricing.OutreachThresholdUSD {
		info.EnterpriseOutreach = true
		info.EnterpriseMessage = pricing.OutreachMessage(led.SpendInWindow)
	}
	return info
}

func shortWallet(wallet string) string {
	if len(wallet) > 10 {
		return wallet[:10]
	}
	return wallet
}
