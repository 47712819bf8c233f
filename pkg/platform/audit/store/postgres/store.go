package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	audit "github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the
// relay worker; Kafka is the downstream source of truth for the trail.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event so the consumer can deserialize directly.
type outboxPayload struct {
	ID            string            `json:"ID"`
	Action        string            `json:"Action"`
	Timestamp     string            `json:"Timestamp"`
	OrgID         string            `json:"OrgID,omitempty"`
	RecordType    string            `json:"RecordType,omitempty"`
	RecordID      string            `json:"RecordID,omitempty"`
	TransactionID string            `json:"TransactionID,omitempty"`
	Actor         string            `json:"Actor,omitempty"`
	Detail        map[string]string `json:"Detail,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	payload := outboxPayload{
		ID:            eventID.String(),
		Action:        string(event.Action),
		Timestamp:     event.Timestamp.Format(time.RFC3339Nano),
		OrgID:         event.OrgID,
		RecordType:    event.RecordType,
		RecordID:      event.RecordID,
		TransactionID: event.TransactionID,
		Actor:         event.Actor,
		Detail:        event.Detail,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.RecordID != "" {
		aggregateType = event.RecordType
		aggregateID = event.RecordID
	}

	query := `
		INSERT INTO audit_outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		string(event.Action),
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert audit outbox entry: %w", err)
	}
	return nil
}

// ListPending returns up to limit unpublished outbox rows, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]audit.PendingEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.PendingEntry
	for rows.Next() {
		var e audit.PendingEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkPublished stamps an outbox row as relayed. Idempotent.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit_outbox SET published_at = $1 WHERE id = $2 AND published_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark outbox entry published: %w", err)
	}
	return nil
}
