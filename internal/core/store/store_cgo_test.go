//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iaeternum/datagate/internal/config"
	"github.com/iaeternum/datagate/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestOpenMemoryStore(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Equal(t, "libsql", s.Driver())
	require.NoError(t, s.CheckHealth(ctx))
	require.NoError(t, s.Close())
}

func TestIncrementWindow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expires := now.Add(25 * time.Hour)

	t.Run("CeilingEnforced", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := s.IncrementWindow(ctx, "records:1.2.3.4", "2026-03-10", 3, now, expires)
			require.NoError(t, err)
			require.True(t, allowed, "request %d", i)
		}

		allowed, err := s.IncrementWindow(ctx, "records:1.2.3.4", "2026-03-10", 3, now, expires)
		require.NoError(t, err)
		require.False(t, allowed)

		// denial does not mutate the counter
		count, err := s.WindowCount(ctx, "records:1.2.3.4", "2026-03-10")
		require.NoError(t, err)
		require.Equal(t, 3, count)
	})

	t.Run("BucketsAreIndependent", func(t *testing.T) {
		allowed, err := s.IncrementWindow(ctx, "records:1.2.3.4", "2026-03-11", 3, now, expires)
		require.NoError(t, err)
		require.True(t, allowed)
	})

	t.Run("AbsentWindowCountsZero", func(t *testing.T) {
		count, err := s.WindowCount(ctx, "records:nobody", "2026-03-10")
		require.NoError(t, err)
		require.Zero(t, count)
	})
}

func TestListWindows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expires := now.Add(25 * time.Hour)

	_, err := s.IncrementWindow(ctx, "records:1.2.3.4", "2026-03-10", 5, now, expires)
	require.NoError(t, err)
	_, err = s.IncrementWindow(ctx, "records:1.2.3.4", "2026-03-10", 5, now, expires)
	require.NoError(t, err)
	_, err = s.IncrementWindow(ctx, "free:1.2.3.4", "2026-03-10", 5, now, expires)
	require.NoError(t, err)

	all, err := s.ListWindows(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	filtered, err := s.ListWindows(ctx, "records:")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, "records:1.2.3.4", filtered[0].Key)
	require.Equal(t, 2, filtered[0].Count)
	require.True(t, filtered[0].ExpiresAt.Equal(expires))
}

func TestPurgeExpiredWindows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := s.IncrementWindow(ctx, "records:old", "2026-03-08", 5, now.Add(-48*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = s.IncrementWindow(ctx, "records:live", "2026-03-10", 5, now, now.Add(25*time.Hour))
	require.NoError(t, err)

	purged, err := s.PurgeExpiredWindows(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	count, err := s.WindowCount(ctx, "records:live", "2026-03-10")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestWalletLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	led, err := s.WalletLedger(ctx, "0xW")
	require.NoError(t, err)
	require.Nil(t, led)

	fresh := &core.WalletLedger{
		Wallet: "0xW",
		Events: []core.LedgerEntry{
			{Timestamp: now, Records: 40, AmountUSD: 8.00, Endpoint: "records"},
		},
		RecordsInWindow: 40,
		SpendInWindow:   8.00,
		FirstSeenAt:     now,
		UpdatedAt:       now,
	}

	saved, err := s.SaveWalletLedger(ctx, fresh, time.Time{})
	require.NoError(t, err)
	require.True(t, saved)

	loaded, err := s.WalletLedger(ctx, "0xW")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, 40, loaded.RecordsInWindow)
	require.Equal(t, 8.00, loaded.SpendInWindow)
	require.Len(t, loaded.Events, 1)
	require.True(t, loaded.Events[0].Timestamp.Equal(now))
	require.True(t, loaded.UpdatedAt.Equal(now))
}

func TestSaveWalletLedgerPrecondition(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	led := &core.WalletLedger{Wallet: "0xW", Events: []core.LedgerEntry{}, FirstSeenAt: now, UpdatedAt: now}
	saved, err := s.SaveWalletLedger(ctx, led, time.Time{})
	require.NoError(t, err)
	require.True(t, saved)

	t.Run("InsertConflictsWithExistingRow", func(t *testing.T) {
		saved, err := s.SaveWalletLedger(ctx, led, time.Time{})
		require.NoError(t, err)
		require.False(t, saved)
	})

	t.Run("UpdateWithMatchingVersion", func(t *testing.T) {
		next := *led
		next.RecordsInWindow = 10
		next.UpdatedAt = now.Add(time.Second)

		saved, err := s.SaveWalletLedger(ctx, &next, now)
		require.NoError(t, err)
		require.True(t, saved)
	})

	t.Run("UpdateWithStaleVersion", func(t *testing.T) {
		next := *led
		next.UpdatedAt = now.Add(2 * time.Second)

		saved, err := s.SaveWalletLedger(ctx, &next, now)
		require.NoError(t, err)
		require.False(t, saved)
	})
}

func TestRecordSettlement(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordSettlement(ctx, "0xFACE", "0xW", 0.20, "records", now))

	var n int
	require.NoError(t, s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM settlements WHERE wallet = ?`, "0xW").Scan(&n))
	require.Equal(t, 1, n)
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec, err := s.Record(ctx, "rec_404")
	require.NoError(t, err)
	require.Nil(t, rec)

	seed := []core.DataRecord{
		{ID: "rec_001", Title: "First", Payload: map[string]any{"k": "v"}},
		{ID: "rec_002", Title: "Second", Payload: map[string]any{"n": 1.5}},
	}
	require.NoError(t, s.SeedRecords(ctx, seed))

	// reseed does not overwrite
	require.NoError(t, s.SeedRecords(ctx, []core.DataRecord{{ID: "rec_001", Title: "Changed"}}))

	rec, err = s.Record(ctx, "rec_001")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "First", rec.Title)
	require.Equal(t, map[string]any{"k": "v"}, rec.Payload)
}
