// Package sequence owns the monotonic counters behind external sequence
// numbers. The receiving system treats a repeated number as "update this
// version" and a higher number as "new version", so values handed out here
// must be strictly increasing per (org, record type) tuple.
package sequence

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
)

// Allocator hands out sequence numbers and tracks which value each domain
// record last carried.
type Allocator struct {
	store  Store
	logger *slog.Logger
	audit  *audit.Publisher
}

// Option configures the Allocator.
type Option func(*Allocator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Allocator) { a.logger = logger }
}

func WithAuditPublisher(publisher *audit.Publisher) Option {
	return func(a *Allocator) { a.audit = publisher }
}

// New creates an Allocator over the given store.
func New(store Store, opts ...Option) (*Allocator, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sequence store is required")
	}
	a := &Allocator{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// NextSequence returns a value strictly greater than every value previously
// returned for the tuple, even under concurrent callers.
func (a *Allocator) NextSequence(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType) (int64, error) {
	if err := validateTuple(orgID, recordType); err != nil {
		return 0, err
	}
	next, err := a.store.Next(ctx, orgID, recordType)
	if err != nil {
		return 0, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "allocate sequence")
	}
	return next, nil
}

// CurrentSequence is a non-mutating read; 0 if the tuple is uninitialized.
func (a *Allocator) CurrentSequence(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType) (int64, error) {
	if err := validateTuple(orgID, recordType); err != nil {
		return 0, err
	}
	current, err := a.store.Current(ctx, orgID, recordType)
	if err != nil {
		return 0, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read sequence")
	}
	return current, nil
}

// Reset forces a counter to value. Non-production use only: an accidental
// reset corrupts the idempotency contract with the receiving system, so the
// operation is loud - always logged and always audited.
func (a *Allocator) Reset(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType, value int64, actor string) error {
	if err := validateTuple(orgID, recordType); err != nil {
		return err
	}
	if value < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "sequence reset value must be >= 0")
	}

	previous, err := a.store.Current(ctx, orgID, recordType)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read sequence before reset")
	}
	if err := a.store.Reset(ctx, orgID, recordType, value); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "reset sequence")
	}

	a.logger.WarnContext(ctx, "sequence counter reset",
		"org_id", orgID,
		"record_type", recordType,
		"previous", previous,
		"value", value,
		"actor", actor,
	)
	a.audit.Emit(ctx, audit.Event{
		Action:     audit.ActionSequenceReset,
		OrgID:      orgID.String(),
		RecordType: recordType.String(),
		Actor:      actor,
		Detail: map[string]string{
			"previous": strconv.FormatInt(previous, 10),
			"value":    strconv.FormatInt(value, 10),
		},
	})
	return nil
}

// RecordSequence returns the sequence last assigned to a domain record, 0 if
// it has never been submitted.
func (a *Allocator) RecordSequence(ctx context.Context, recordType domain.RecordType, recordID string) (int64, error) {
	if recordID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "record id is required")
	}
	value, err := a.store.RecordSequence(ctx, recordType, recordID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "read record sequence")
	}
	return value, nil
}

// SetRecordSequence stores the sequence assigned to a domain record so an
// idempotent re-submission can reuse the same external identity.
func (a *Allocator) SetRecordSequence(ctx context.Context, recordType domain.RecordType, recordID string, value int64) error {
	if recordID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "record id is required")
	}
	if value <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "record sequence must be positive")
	}
	if err := a.store.SetRecordSequence(ctx, recordType, recordID, value); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "store record sequence")
	}
	return nil
}

func validateTuple(orgID domain.OrgID, recordType domain.RecordType) error {
	if orgID.IsEmpty() {
		return pkgerrors.New(pkgerrors.CodeValidation, "org id is required")
	}
	if !recordType.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown record type %q", recordType)
	}
	return nil
}
