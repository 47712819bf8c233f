package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/KaripeHS/serenity-sub009/internal/evv/codeset"
)

// Loader reads the code-set catalog from the code_set_entries table. This
// is the primary tier; the seed loader backs it up through the fallback
// loader in the codeset package.
type Loader struct {
	db *sql.DB
}

func New(db *sql.DB) *Loader {
	return &Loader{db: db}
}

func (l *Loader) LoadAll(ctx context.Context) ([]codeset.Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT payer, program, procedure_code, valid_modifiers,
		       effective_start, effective_end, requires_authorization
		FROM code_set_entries
	`)
	if err != nil {
		return nil, fmt.Errorf("query code-set entries: %w", err)
	}
	defer rows.Close()

	var entries []codeset.Entry
	for rows.Next() {
		var (
			e         codeset.Entry
			modifiers sql.NullString
			end       sql.NullTime
		)
		if err := rows.Scan(&e.Payer, &e.Program, &e.ProcedureCode, &modifiers, &e.EffectiveStart, &end, &e.RequiresAuthorization); err != nil {
			return nil, fmt.Errorf("scan code-set entry: %w", err)
		}
		if modifiers.Valid && modifiers.String != "" {
			e.ValidModifiers = strings.Split(modifiers.String, ",")
		}
		if end.Valid {
			e.EffectiveEnd = end.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate code-set entries: %w", err)
	}
	return entries, nil
}
