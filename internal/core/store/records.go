package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iaeternum/datagate/internal/core"
)

// Record fetches a catalog record by id, nil when it does not exist. The
// handlers check existence through this before any payment verification so a
// caller is never charged for a request that would have 404ed.
func (s *Store) Record(ctx context.Context, id string) (*core.DataRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("record id is required")
	}

	var (
		title       string
		payloadJSON sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `SELECT title, payload FROM records WHERE id = ?`, id).Scan(&title, &payloadJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch record: %w", err)
	}

	record := &core.DataRecord{ID: id, Title: title}
	if payloadJSON.Valid && payloadJSON.String != "" {
		if err := json.Unmarshal([]byte(payloadJSON.String), &record.Payload); err != nil {
			return nil, fmt.Errorf("decode record payload: %w", err)
		}
	}

	return record, nil
}

// SeedRecords inserts catalog records, skipping ids that already exist.
func (s *Store) SeedRecords(ctx context.Context, records []core.DataRecord) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, record := range records {
		var payload any
		if record.Payload != nil {
			encoded, err := json.Marshal(record.Payload)
			if err != nil {
				return fmt.Errorf("marshal record payload: %w", err)
			}
			payload = string(encoded)
		}

		_, err := s.DB.ExecContext(ctx, `
			INSERT INTO records (id, title, payload)
			VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, record.ID, record.Title, payload)
		if err != nil {
			return fmt.Errorf("seed record %s: %w", record.ID, err)
		}
	}

	return nil
}
