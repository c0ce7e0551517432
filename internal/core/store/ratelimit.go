package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iaeternum/datagate/internal/core"
)

// IncrementWindow atomically admits one request for a (key, bucket) counter
// unless the ceiling has been reached. A missing row is created with count 1;
// an existing row below the ceiling is incremented; a row at the ceiling is
// left untouched and the request is denied. The single upsert statement makes
// the decision linearizable per (key, bucket) without a client-side
// transaction.
func (s *Store) IncrementWindow(ctx context.Context, key, bucket string, maxRequests int, now, expiresAt time.Time) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return false, errors.New("rate limit key is required")
	}
	if maxRequests <= 0 {
		return false, nil
	}

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limit_windows (key, window_bucket, count, created_at, expires_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key, window_bucket) DO UPDATE SET
			count = count + 1
		WHERE rate_limit_windows.count < ?
	`, key, bucket, now.UTC().Unix(), expiresAt.UTC().Unix(), maxRequests)
	if err != nil {
		return false, fmt.Errorf("increment rate limit window: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment rate limit window: %w", err)
	}

	return affected > 0, nil
}

// WindowCount returns the stored count for a (key, bucket) counter, 0 when
// the window has not been created yet.
func (s *Store) WindowCount(ctx context.Context, key, bucket string) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count FROM rate_limit_windows
		WHERE key = ? AND window_bucket = ?
	`, strings.TrimSpace(key), bucket).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("fetch rate limit window: %w", err)
	}

	return count, nil
}

// ListWindows returns stored counter windows, optionally filtered by key
// prefix, newest first. Used by the limits CLI command.
func (s *Store) ListWindows(ctx context.Context, prefix string) ([]core.RateLimitWindow, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	query := `
		SELECT key, window_bucket, count, created_at, expires_at
		FROM rate_limit_windows
	`
	args := []any{}
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		query += ` WHERE key LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}
	query += ` ORDER BY created_at DESC, key ASC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limit windows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var windows []core.RateLimitWindow
	for rows.Next() {
		var (
			w         core.RateLimitWindow
			createdAt int64
			expiresAt int64
		)
		if err := rows.Scan(&w.Key, &w.WindowBucket, &w.Count, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("list rate limit windows: %w", err)
		}
		w.CreatedAt = time.Unix(createdAt, 0).UTC()
		w.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limit windows: %w", err)
	}

	return windows, nil
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// PurgeExpiredWindows deletes counter rows past their expiry. libsql has no
// server-side TTL, so the serve loop sweeps periodically; the limiter itself
// never deletes.
func (s *Store) PurgeExpiredWindows(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM rate_limit_windows WHERE expires_at <= ?
	`, now.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge rate limit windows: %w", err)
	}

	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rate limit windows: %w", err)
	}

	return purged, nil
}
