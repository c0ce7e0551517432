package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iaeternum/datagate/internal/core"
)

// WalletLedger loads a wallet's ledger document, nil when the wallet is
// unknown.
func (s *Store) WalletLedger(ctx context.Context, wallet string) (*core.WalletLedger, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, errors.New("wallet is required")
	}

	var (
		eventsJSON      string
		recordsInWindow int
		spendInWindow   float64
		firstSeenAt     int64
		updatedAt       int64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT events, records_in_window, spend_in_window, first_seen_at, updated_at
		FROM wallet_ledgers
		WHERE wallet = ?
	`, wallet)

	if err := row.Scan(&eventsJSON, &recordsInWindow, &spendInWindow, &firstSeenAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch wallet ledger: %w", err)
	}

	var events []core.LedgerEntry
	if err := json.Unmarshal([]byte(eventsJSON), &events); err != nil {
		return nil, fmt.Errorf("decode wallet ledger events: %w", err)
	}

	return &core.WalletLedger{
		Wallet:          wallet,
		Events:          events,
		RecordsInWindow: recordsInWindow,
		SpendInWindow:   spendInWindow,
		FirstSeenAt:     time.Unix(0, firstSeenAt).UTC(),
		UpdatedAt:       time.Unix(0, updatedAt).UTC(),
	}, nil
}

// SaveWalletLedger persists the pruned-and-appended event list together with
// the recomputed aggregates. prevUpdatedAt is the optimistic precondition: a
// zero time expects the wallet to be absent. Returns false without writing
// when another writer got there first.
func (s *Store) SaveWalletLedger(ctx context.Context, ledger *core.WalletLedger, prevUpdatedAt time.Time) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ledger == nil || strings.TrimSpace(ledger.Wallet) == "" {
		return false, errors.New("wallet ledger is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(ledger.Events)
	if err != nil {
		return false, fmt.Errorf("marshal wallet ledger events: %w", err)
	}

	var res sql.Result
	if prevUpdatedAt.IsZero() {
		res, err = s.DB.ExecContext(ctx, `
			INSERT INTO wallet_ledgers (wallet, events, records_in_window, spend_in_window, first_seen_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(wallet) DO NOTHING
		`, ledger.Wallet, string(payload), ledger.RecordsInWindow, ledger.SpendInWindow,
			ledger.FirstSeenAt.UTC().UnixNano(), ledger.UpdatedAt.UTC().UnixNano())
	} else {
		res, err = s.DB.ExecContext(ctx, `
			UPDATE wallet_ledgers SET
				events = ?,
				records_in_window = ?,
				spend_in_window = ?,
				updated_at = ?
			WHERE wallet = ? AND updated_at = ?
		`, string(payload), ledger.RecordsInWindow, ledger.SpendInWindow,
			ledger.UpdatedAt.UTC().UnixNano(), ledger.Wallet, prevUpdatedAt.UTC().UnixNano())
	}
	if err != nil {
		return false, fmt.Errorf("store wallet ledger: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store wallet ledger: %w", err)
	}

	return affected > 0, nil
}

// RecordSettlement appends a settled payment to the transaction log. Written
// only after a successful verification.
func (s *Store) RecordSettlement(ctx context.Context, txRef, wallet string, amountUSD float64, endpoint string, now time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO settlements (transaction_ref, wallet, amount_usd, endpoint, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, txRef, strings.TrimSpace(wallet), amountUSD, endpoint, now.UTC().Unix())
	if err != nil {
		return fmt.Errorf("record settlement: %w", err)
	}

	return nil
}
