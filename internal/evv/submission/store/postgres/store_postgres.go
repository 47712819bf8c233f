package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/submission"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// Ledger implements submission.Ledger on PostgreSQL.
type Ledger struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed transaction ledger.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

const transactionColumns = `
	id, org_id, record_type, record_id, sequence_id,
	status, priority, attempts, max_attempts,
	next_retry_at, last_error, external_id, http_status,
	request, response, created_at, updated_at
`

func (l *Ledger) Create(ctx context.Context, tx *submission.Transaction) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO submission_transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		tx.ID, tx.OrgID.String(), tx.RecordType.String(), tx.RecordID, tx.SequenceID,
		string(tx.Status), string(tx.Priority), tx.Attempts, tx.MaxAttempts,
		nullTime(tx.NextRetryAt), nullString(tx.LastError), nullString(tx.ExternalID), tx.HTTPStatus,
		[]byte(tx.Request), nullBytes(tx.Response), tx.CreatedAt, tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (l *Ledger) Update(ctx context.Context, tx *submission.Transaction) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE submission_transactions
		SET status = $2, attempts = $3, next_retry_at = $4, last_error = $5,
		    external_id = $6, http_status = $7, response = $8, updated_at = $9
		WHERE id = $1
	`,
		tx.ID, string(tx.Status), tx.Attempts, nullTime(tx.NextRetryAt), nullString(tx.LastError),
		nullString(tx.ExternalID), tx.HTTPStatus, nullBytes(tx.Response), tx.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	if affected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "transaction %s not found", tx.ID)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, id string) (*submission.Transaction, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM submission_transactions
		WHERE id = $1
	`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (l *Ledger) ListByRecord(ctx context.Context, recordType domain.RecordType, recordID string) ([]*submission.Transaction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM submission_transactions
		WHERE record_type = $1 AND record_id = $2
		ORDER BY created_at DESC
	`, recordType.String(), recordID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s/%s: %w", recordType, recordID, err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (l *Ledger) ListDue(ctx context.Context, now time.Time, limit int) ([]*submission.Transaction, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM submission_transactions
		WHERE status = $1 AND next_retry_at <= $2
		ORDER BY CASE priority
		           WHEN 'urgent' THEN 0
		           WHEN 'high' THEN 1
		           ELSE 2
		         END,
		         next_retry_at
		LIMIT $3
	`, string(submission.StatusRetrying), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (l *Ledger) CountByStatus(ctx context.Context, status submission.Status) (map[domain.RecordType]int, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT record_type, count(*)
		FROM submission_transactions
		WHERE status = $1
		GROUP BY record_type
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("count transactions by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RecordType]int)
	for rows.Next() {
		var (
			recordType string
			count      int
		)
		if err := rows.Scan(&recordType, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.RecordType(recordType)] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*submission.Transaction, error) {
	var (
		tx          submission.Transaction
		orgID       string
		recordType  string
		status      string
		priority    string
		nextRetryAt sql.NullTime
		lastError   sql.NullString
		externalID  sql.NullString
		request     []byte
		response    []byte
	)
	err := row.Scan(
		&tx.ID, &orgID, &recordType, &tx.RecordID, &tx.SequenceID,
		&status, &priority, &tx.Attempts, &tx.MaxAttempts,
		&nextRetryAt, &lastError, &externalID, &tx.HTTPStatus,
		&request, &response, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.OrgID = domain.OrgID(orgID)
	tx.RecordType = domain.RecordType(recordType)
	tx.Status = submission.Status(status)
	tx.Priority = submission.Priority(priority)
	tx.NextRetryAt = nextRetryAt.Time
	tx.LastError = lastError.String
	tx.ExternalID = externalID.String
	tx.Request = request
	tx.Response = response
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]*submission.Transaction, error) {
	var out []*submission.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
