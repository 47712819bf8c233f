package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher emits audit events with fail-open semantics: a failed append is
// logged and dropped rather than failing the business operation. Submission
// outcomes are already durable in the transaction ledger; the audit trail is
// observability, not the system of record.
type Publisher struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for append failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithClock overrides the timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a fail-open publisher over the given store.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps and appends the event. Never returns an error; see type doc.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil || p.store == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if err := p.store.Append(ctx, event); err != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "audit append failed",
			"action", event.Action,
			"record_type", event.RecordType,
			"record_id", event.RecordID,
			"error", err,
		)
	}
}
