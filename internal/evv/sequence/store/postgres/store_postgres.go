package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// Store implements sequence.Store on PostgreSQL. The increment happens in a
// single upsert statement so concurrent callers serialize on the row lock
// and each sees a distinct RETURNING value.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed sequence store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Next(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (org_id, record_type, current_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (org_id, record_type)
		DO UPDATE SET current_value = sequence_counters.current_value + 1,
		              updated_at = now()
		RETURNING current_value
	`, orgID.String(), recordType.String()).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s/%s: %w", orgID, recordType, err)
	}
	return value, nil
}

func (s *Store) Current(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		SELECT current_value FROM sequence_counters
		WHERE org_id = $1 AND record_type = $2
	`, orgID.String(), recordType.String()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current sequence for %s/%s: %w", orgID, recordType, err)
	}
	return value, nil
}

func (s *Store) Reset(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType, value int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sequence_counters (org_id, record_type, current_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, record_type)
		DO UPDATE SET current_value = EXCLUDED.current_value,
		              updated_at = now()
	`, orgID.String(), recordType.String(), value)
	if err != nil {
		return fmt.Errorf("reset sequence for %s/%s: %w", orgID, recordType, err)
	}
	return nil
}

func (s *Store) RecordSequence(ctx context.Context, recordType domain.RecordType, recordID string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		SELECT sequence_value FROM record_sequences
		WHERE record_type = $1 AND record_id = $2
	`, recordType.String(), recordID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("record sequence for %s/%s: %w", recordType, recordID, err)
	}
	return value, nil
}

func (s *Store) SetRecordSequence(ctx context.Context, recordType domain.RecordType, recordID string, value int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO record_sequences (record_type, record_id, sequence_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_type, record_id)
		DO UPDATE SET sequence_value = EXCLUDED.sequence_value,
		              updated_at = now()
	`, recordType.String(), recordID, value)
	if err != nil {
		return fmt.Errorf("set record sequence for %s/%s: %w", recordType, recordID, err)
	}
	return nil
}
