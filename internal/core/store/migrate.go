package store

import (
	"context"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS rate_limit_windows (
		key TEXT NOT NULL,
		window_bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (key, window_bucket)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_windows_expires ON rate_limit_windows(expires_at);`,
	`CREATE TABLE IF NOT EXISTS wallet_ledgers (
		wallet TEXT PRIMARY KEY,
		events TEXT NOT NULL,
		records_in_window INTEGER NOT NULL DEFAULT 0,
		spend_in_window REAL NOT NULL DEFAULT 0,
		first_seen_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS settlements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_ref TEXT NOT NULL,
		wallet TEXT,
		amount_usd REAL NOT NULL,
		endpoint TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_settlements_wallet ON settlements(wallet);`,
	`CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		payload TEXT
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
