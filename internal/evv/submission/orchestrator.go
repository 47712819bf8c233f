package submission

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/compliance"
	"github.com/KaripeHS/serenity-sub009/internal/evv/metrics"
	"github.com/KaripeHS/serenity-sub009/internal/evv/payload"
	"github.com/KaripeHS/serenity-sub009/internal/evv/sequence"
	"github.com/KaripeHS/serenity-sub009/internal/evv/transport"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
)

// Client is the transport surface the orchestrator transmits through.
type Client interface {
	SubmitPatient(ctx context.Context, payload any) (*transport.Result, error)
	SubmitStaff(ctx context.Context, payload any) (*transport.Result, error)
	SubmitVisit(ctx context.Context, payload any) (*transport.Result, error)
}

// CodesetChecker validates the payer/program/procedure combination. The
// interface exists so the orchestrator can run without a catalog in dev
// mode.
type CodesetChecker interface {
	Validate(ctx context.Context, payer, program, procedure string, modifiers []string, serviceDate time.Time) (domain.ValidationResult, error)
}

// Outcome is the caller-facing result of one submission.
type Outcome struct {
	Success bool
	// TransactionID identifies the local ledger entry, set whenever a
	// payload was built and transmission was attempted.
	TransactionID string
	// ExternalTransactionID is the aggregator's identifier, when returned.
	ExternalTransactionID string
	HTTPStatus            int
	Errors                []domain.Issue
	Warnings              []domain.Issue
	SubmittedAt           time.Time
	// WillRetry is set when the failure was transient and a retry is
	// scheduled.
	WillRetry bool
}

// VisitSubmission bundles a visit with its validation context.
type VisitSubmission struct {
	Visit domain.Visit
	// Patient supplies the geofence anchor and the payer/program for the
	// code-set check. Optional; both checks degrade gracefully without it.
	Patient       *domain.Patient
	Authorization *domain.Authorization
	// SkipCodesetCheck bypasses the catalog for payers known to be absent
	// from it.
	SkipCodesetCheck bool
	ForceNewVersion  bool
	Priority         Priority
}

// Config tunes the orchestrator's retry budget.
type Config struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultConfig mirrors the retry policy agreed with the aggregator.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseBackoff: 30 * time.Second,
		MaxBackoff:  30 * time.Minute,
	}
}

func (c Config) normalize() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = 30 * time.Minute
	}
	return c
}

// Orchestrator drives a submission end to end: pre-flight checks, payload
// build, transmission, and transaction persistence.
type Orchestrator struct {
	cfg        Config
	builder    *payload.Builder
	compliance *compliance.Validator
	codesets   CodesetChecker
	client     Client
	sequences  *sequence.Allocator
	ledger     Ledger
	audit      *audit.Publisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// OrchestratorOption configures optional dependencies.
type OrchestratorOption func(*Orchestrator)

func WithCodesetChecker(c CodesetChecker) OrchestratorOption {
	return func(o *Orchestrator) { o.codesets = c }
}

func WithAuditPublisher(p *audit.Publisher) OrchestratorOption {
	return func(o *Orchestrator) { o.audit = p }
}

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the submission pipeline.
func NewOrchestrator(
	cfg Config,
	builder *payload.Builder,
	complianceValidator *compliance.Validator,
	client Client,
	sequences *sequence.Allocator,
	ledger Ledger,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if builder == nil || client == nil || sequences == nil || ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orchestrator requires builder, client, sequences, and ledger")
	}
	o := &Orchestrator{
		cfg:        cfg.normalize(),
		builder:    builder,
		compliance: complianceValidator,
		client:     client,
		sequences:  sequences,
		ledger:     ledger,
		metrics:    metrics.NewNop(),
		tracer:     otel.Tracer("evv/submission"),
		logger:     slog.Default(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SubmitPatient submits a patient demographic record.
func (o *Orchestrator) SubmitPatient(ctx context.Context, patient domain.Patient, forceNewVersion bool) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "submission.SubmitPatient",
		trace.WithAttributes(attribute.String("record_id", patient.ID)))
	defer span.End()

	p, err := o.builder.BuildPatient(ctx, patient, payload.BuildOptions{ForceNewVersion: forceNewVersion})
	if err != nil {
		return o.buildFailure(domain.RecordTypePatient, err)
	}
	return o.transmit(ctx, transmitRequest{
		orgID:      patient.OrgID,
		recordType: domain.RecordTypePatient,
		recordID:   patient.ID,
		sequenceID: p.SequenceID,
		priority:   PriorityNormal,
		payload:    p,
		send:       o.client.SubmitPatient,
	}, nil)
}

// SubmitStaff submits a staff record.
func (o *Orchestrator) SubmitStaff(ctx context.Context, staff domain.Staff, forceNewVersion bool) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "submission.SubmitStaff",
		trace.WithAttributes(attribute.String("record_id", staff.ID)))
	defer span.End()

	p, err := o.builder.BuildStaff(ctx, staff, payload.BuildOptions{ForceNewVersion: forceNewVersion})
	if err != nil {
		return o.buildFailure(domain.RecordTypeStaff, err)
	}
	return o.transmit(ctx, transmitRequest{
		orgID:      staff.OrgID,
		recordType: domain.RecordTypeStaff,
		recordID:   staff.ID,
		sequenceID: p.SequenceID,
		priority:   PriorityNormal,
		payload:    p,
		send:       o.client.SubmitStaff,
	}, nil)
}

// SubmitVisit runs the full pre-flight pipeline and submits a visit.
func (o *Orchestrator) SubmitVisit(ctx context.Context, sub VisitSubmission) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "submission.SubmitVisit",
		trace.WithAttributes(
			attribute.String("record_id", sub.Visit.ID),
			attribute.String("service_code", sub.Visit.ServiceCode),
		))
	defer span.End()

	preflight, err := o.preflight(ctx, sub)
	if err != nil {
		return nil, err
	}
	if !preflight.IsValid() {
		o.countValidationFailures(domain.RecordTypeVisit, preflight.Errors)
		return &Outcome{Success: false, Errors: preflight.Errors, Warnings: preflight.Warnings}, nil
	}

	p, err := o.builder.BuildVisit(ctx, sub.Visit, payload.BuildOptions{ForceNewVersion: sub.ForceNewVersion})
	if err != nil {
		return o.buildFailure(domain.RecordTypeVisit, err)
	}

	priority := sub.Priority
	if priority == "" {
		priority = PriorityUrgent
	}
	return o.transmit(ctx, transmitRequest{
		orgID:      sub.Visit.OrgID,
		recordType: domain.RecordTypeVisit,
		recordID:   sub.Visit.ID,
		sequenceID: p.SequenceID,
		priority:   priority,
		payload:    p,
		send:       o.client.SubmitVisit,
	}, preflight.Warnings)
}

// preflight merges the compliance and code-set categories.
func (o *Orchestrator) preflight(ctx context.Context, sub VisitSubmission) (domain.ValidationResult, error) {
	var result domain.ValidationResult

	if o.compliance != nil {
		in := compliance.Input{Visit: sub.Visit, Authorization: sub.Authorization}
		if sub.Patient != nil {
			in.ClientLocation = sub.Patient.Location
		}
		result.Merge(o.compliance.Validate(in))
	}

	if o.codesets != nil && !sub.SkipCodesetCheck && sub.Patient != nil && sub.Patient.PayerID != "" {
		catalogResult, err := o.codesets.Validate(ctx,
			sub.Patient.PayerID, sub.Patient.ProgramID,
			sub.Visit.ServiceCode, sub.Visit.Modifiers, sub.Visit.ServiceDate)
		if err != nil {
			return domain.ValidationResult{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "code-set check")
		}
		result.Merge(catalogResult)
	}
	return result, nil
}

type transmitRequest struct {
	orgID      domain.OrgID
	recordType domain.RecordType
	recordID   string
	sequenceID int64
	priority   Priority
	payload    any
	send       func(ctx context.Context, payload any) (*transport.Result, error)
}

// transmit performs one attempt and persists the full transaction outcome.
// The sequence pointer is stored as soon as the payload exists so a failed
// transmit still reuses the same external identity on re-submission.
func (o *Orchestrator) transmit(ctx context.Context, req transmitRequest, warnings []domain.Issue) (*Outcome, error) {
	now := o.now()
	body, err := json.Marshal(req.payload)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "snapshot request")
	}

	prior, err := o.sequences.RecordSequence(ctx, req.recordType, req.recordID)
	if err != nil {
		return nil, err
	}
	if err := o.sequences.SetRecordSequence(ctx, req.recordType, req.recordID, req.sequenceID); err != nil {
		return nil, err
	}
	// Idempotent re-submissions rebind the stored pointer; only a changed
	// pointer means a sequence number was handed out.
	if prior != req.sequenceID {
		o.metrics.SequenceAllocations.WithLabelValues(req.recordType.String()).Inc()
	}

	tx := &Transaction{
		ID:          o.newID(),
		OrgID:       req.orgID,
		RecordType:  req.recordType,
		RecordID:    req.recordID,
		SequenceID:  req.sequenceID,
		Status:      StatusPending,
		Priority:    req.priority,
		MaxAttempts: o.cfg.MaxAttempts,
		Request:     body,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.ledger.Create(ctx, tx); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "create transaction")
	}

	tx.Attempts = 1
	result, sendErr := req.send(ctx, req.payload)

	outcome := o.settle(ctx, tx, result, sendErr, warnings)
	o.metrics.SubmissionDuration.WithLabelValues(req.recordType.String()).Observe(o.now().Sub(now).Seconds())
	return outcome, nil
}

// settle applies one attempt's result to the transaction and emits the
// audit and metric trail. Shared with the retry worker.
func (o *Orchestrator) settle(ctx context.Context, tx *Transaction, result *transport.Result, sendErr error, warnings []domain.Issue) *Outcome {
	now := o.now()
	outcome := &Outcome{TransactionID: tx.ID, SubmittedAt: now, Warnings: warnings}

	switch {
	case sendErr != nil:
		httpStatus := 0
		if result != nil {
			httpStatus = result.HTTPStatus
		}
		retryAt := time.Time{}
		if pkgerrors.IsRetryable(sendErr) && tx.Attempts < tx.MaxAttempts {
			retryAt = now.Add(backoffDelay(o.cfg.BaseBackoff, o.cfg.MaxBackoff, tx.Attempts))
		}
		tx.markFailed(sendErr.Error(), httpStatus, retryAt, now)
		outcome.HTTPStatus = httpStatus
		outcome.WillRetry = tx.Status == StatusRetrying
		outcome.Errors = append(outcome.Errors, domain.Issue{
			Code:     "TRANSPORT_FAILURE",
			Message:  sendErr.Error(),
			Severity: domain.SeverityError,
		})
		o.emitAudit(ctx, audit.ActionSubmissionErrored, tx, map[string]string{
			"error":      sendErr.Error(),
			"will_retry": strconv.FormatBool(outcome.WillRetry),
		})
		o.metrics.SubmissionsTotal.WithLabelValues(tx.RecordType.String(), "error").Inc()

	case result.Envelope.Success:
		response, _ := json.Marshal(result.Envelope)
		tx.markAccepted(result.Envelope.TransactionID, result.HTTPStatus, response, now)
		outcome.Success = true
		outcome.HTTPStatus = result.HTTPStatus
		outcome.ExternalTransactionID = result.Envelope.TransactionID
		outcome.Warnings = append(outcome.Warnings, envelopeIssues(result.Envelope.Warnings, domain.SeverityWarning)...)
		o.emitAudit(ctx, audit.ActionSubmissionAccepted, tx, map[string]string{
			"external_id": result.Envelope.TransactionID,
		})
		o.metrics.SubmissionsTotal.WithLabelValues(tx.RecordType.String(), "accepted").Inc()

	default:
		response, _ := json.Marshal(result.Envelope)
		tx.markRejected(result.Envelope.TransactionID, result.HTTPStatus, response, now)
		outcome.HTTPStatus = result.HTTPStatus
		outcome.ExternalTransactionID = result.Envelope.TransactionID
		outcome.Errors = envelopeIssues(result.Envelope.Errors, domain.SeverityError)
		outcome.Warnings = append(outcome.Warnings, envelopeIssues(result.Envelope.Warnings, domain.SeverityWarning)...)
		o.emitAudit(ctx, audit.ActionSubmissionRejected, tx, map[string]string{
			"external_id": result.Envelope.TransactionID,
			"errors":      strconv.Itoa(len(result.Envelope.Errors)),
		})
		o.metrics.SubmissionsTotal.WithLabelValues(tx.RecordType.String(), "rejected").Inc()
	}

	if err := o.ledger.Update(ctx, tx); err != nil {
		o.logger.ErrorContext(ctx, "persist transaction outcome",
			"transaction_id", tx.ID,
			"error", err,
		)
	}
	return outcome
}

func (o *Orchestrator) buildFailure(recordType domain.RecordType, err error) (*Outcome, error) {
	var buildErr *payload.BuildError
	if errors.As(err, &buildErr) {
		o.countValidationFailures(recordType, buildErr.Violations)
		return &Outcome{Success: false, Errors: buildErr.Violations}, nil
	}
	return nil, err
}

func (o *Orchestrator) countValidationFailures(recordType domain.RecordType, issues []domain.Issue) {
	for _, issue := range issues {
		o.metrics.ValidationFailures.WithLabelValues(recordType.String(), issue.Code).Inc()
	}
}

func (o *Orchestrator) emitAudit(ctx context.Context, action audit.Action, tx *Transaction, detail map[string]string) {
	o.audit.Emit(ctx, audit.Event{
		Action:        action,
		OrgID:         tx.OrgID.String(),
		RecordType:    tx.RecordType.String(),
		RecordID:      tx.RecordID,
		TransactionID: tx.ID,
		Detail:        detail,
	})
}

func envelopeIssues(issues []transport.ResponseIssue, severity domain.Severity) []domain.Issue {
	if len(issues) == 0 {
		return nil
	}
	out := make([]domain.Issue, 0, len(issues))
	for _, issue := range issues {
		out = append(out, domain.Issue{
			Code:     issue.Code,
			Message:  issue.Message,
			Field:    issue.Field,
			Severity: severity,
		})
	}
	return out
}
