package submission

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/metrics"
	"github.com/KaripeHS/serenity-sub009/internal/evv/transport"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
	"github.com/KaripeHS/serenity-sub009/pkg/platform/audit"
)

// backoffDelay computes the exponential delay before attempt N+1, with
// +/-10% jitter so a burst of failures does not retry in lockstep.
func backoffDelay(base, max time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
	return delay + jitter
}

// WorkerConfig tunes the retry worker.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
}

// DefaultWorkerConfig matches the pacing agreed with the aggregator.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 15 * time.Second,
		BatchSize:    50,
		Concurrency:  4,
	}
}

func (c WorkerConfig) normalize() WorkerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// Worker drains the retry queue. Transactions for the same record are
// replayed in order on a single goroutine; distinct records retry in
// parallel up to the concurrency limit.
type Worker struct {
	cfg     WorkerConfig
	retry   Config
	ledger  Ledger
	client  Client
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// WorkerOption configures the Worker.
type WorkerOption func(*Worker)

func WorkerWithAuditPublisher(p *audit.Publisher) WorkerOption {
	return func(w *Worker) { w.audit = p }
}

func WorkerWithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func WorkerWithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func WorkerWithClock(now func() time.Time) WorkerOption {
	return func(w *Worker) { w.now = now }
}

// NewWorker builds a retry worker over the shared ledger and client.
func NewWorker(cfg WorkerConfig, retry Config, ledger Ledger, client Client, opts ...WorkerOption) (*Worker, error) {
	if ledger == nil || client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "retry worker requires ledger and client")
	}
	w := &Worker{
		cfg:     cfg.normalize(),
		retry:   retry.normalize(),
		ledger:  ledger,
		client:  client,
		metrics: metrics.NewNop(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "retry worker started",
		"poll_interval", w.cfg.PollInterval,
		"concurrency", w.cfg.Concurrency,
	)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "retry worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.DrainDue(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "retry drain failed", "error", err)
			}
			w.reportQueueDepth(ctx)
		}
	}
}

// DrainDue replays every due transaction once. Exposed for tests and for
// the admin requeue endpoint.
func (w *Worker) DrainDue(ctx context.Context) error {
	due, err := w.ledger.ListDue(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "list due transactions")
	}
	if len(due) == 0 {
		return nil
	}

	// Group by record so two versions of the same record never race.
	type recordKey struct {
		recordType domain.RecordType
		recordID   string
	}
	groups := make(map[recordKey][]*Transaction)
	var order []recordKey
	for _, tx := range due {
		key := recordKey{tx.RecordType, tx.RecordID}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], tx)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, key := range order {
		txs := groups[key]
		g.Go(func() error {
			for _, tx := range txs {
				if err := ctx.Err(); err != nil {
					return err
				}
				w.attempt(ctx, tx)
			}
			return nil
		})
	}
	return g.Wait()
}

// attempt replays the transaction's request snapshot once.
func (w *Worker) attempt(ctx context.Context, tx *Transaction) {
	tx.Attempts++
	w.metrics.RetriesTotal.WithLabelValues(tx.RecordType.String()).Inc()
	w.logger.InfoContext(ctx, "retrying submission",
		"transaction_id", tx.ID,
		"record_type", tx.RecordType,
		"record_id", tx.RecordID,
		"attempt", tx.Attempts,
		"max_attempts", tx.MaxAttempts,
	)

	result, err := w.send(ctx, tx)
	now := w.now()
	switch {
	case err != nil:
		retryAt := time.Time{}
		if pkgerrors.IsRetryable(err) && tx.Attempts < tx.MaxAttempts {
			retryAt = now.Add(backoffDelay(w.retry.BaseBackoff, w.retry.MaxBackoff, tx.Attempts))
		}
		httpStatus := 0
		if result != nil {
			httpStatus = result.HTTPStatus
		}
		tx.markFailed(err.Error(), httpStatus, retryAt, now)
		if tx.Status == StatusError && pkgerrors.IsRetryable(err) {
			w.exhausted(ctx, tx)
		}
	case result.Envelope.Success:
		response, _ := json.Marshal(result.Envelope)
		tx.markAccepted(result.Envelope.TransactionID, result.HTTPStatus, response, now)
		w.audit.Emit(ctx, audit.Event{
			Action:        audit.ActionSubmissionAccepted,
			OrgID:         tx.OrgID.String(),
			RecordType:    tx.RecordType.String(),
			RecordID:      tx.RecordID,
			TransactionID: tx.ID,
			Detail:        map[string]string{"external_id": result.Envelope.TransactionID, "attempt": strconv.Itoa(tx.Attempts)},
		})
		w.metrics.SubmissionsTotal.WithLabelValues(tx.RecordType.String(), "accepted").Inc()
	default:
		response, _ := json.Marshal(result.Envelope)
		tx.markRejected(result.Envelope.TransactionID, result.HTTPStatus, response, now)
		w.audit.Emit(ctx, audit.Event{
			Action:        audit.ActionSubmissionRejected,
			OrgID:         tx.OrgID.String(),
			RecordType:    tx.RecordType.String(),
			RecordID:      tx.RecordID,
			TransactionID: tx.ID,
			Detail:        map[string]string{"external_id": result.Envelope.TransactionID},
		})
		w.metrics.SubmissionsTotal.WithLabelValues(tx.RecordType.String(), "rejected").Inc()
	}

	if err := w.ledger.Update(ctx, tx); err != nil {
		w.logger.ErrorContext(ctx, "persist retry outcome", "transaction_id", tx.ID, "error", err)
	}
}

func (w *Worker) send(ctx context.Context, tx *Transaction) (*transport.Result, error) {
	body := json.RawMessage(tx.Request)
	switch tx.RecordType {
	case domain.RecordTypePatient:
		return w.client.SubmitPatient(ctx, body)
	case domain.RecordTypeStaff:
		return w.client.SubmitStaff(ctx, body)
	case domain.RecordTypeVisit:
		return w.client.SubmitVisit(ctx, body)
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown record type %q", tx.RecordType)
	}
}

func (w *Worker) exhausted(ctx context.Context, tx *Transaction) {
	w.logger.ErrorContext(ctx, "retry budget exhausted",
		"transaction_id", tx.ID,
		"record_type", tx.RecordType,
		"record_id", tx.RecordID,
		"attempts", tx.Attempts,
	)
	w.audit.Emit(ctx, audit.Event{
		Action:        audit.ActionRetriesExhausted,
		OrgID:         tx.OrgID.String(),
		RecordType:    tx.RecordType.String(),
		RecordID:      tx.RecordID,
		TransactionID: tx.ID,
		Detail:        map[string]string{"attempts": strconv.Itoa(tx.Attempts), "last_error": tx.LastError},
	})
	w.metrics.RetriesExhausted.WithLabelValues(tx.RecordType.String()).Inc()
}

// Requeue puts an errored transaction back on the retry queue with a fresh
// budget. Operator action, so it is audited.
func (w *Worker) Requeue(ctx context.Context, transactionID, actor string) error {
	tx, err := w.ledger.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.Status != StatusError {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "transaction is %s, only errored transactions can be requeued", tx.Status)
	}

	now := w.now()
	tx.Status = StatusRetrying
	tx.Attempts = 0
	tx.NextRetryAt = now
	tx.UpdatedAt = now
	if err := w.ledger.Update(ctx, tx); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "requeue transaction")
	}

	w.logger.WarnContext(ctx, "transaction requeued",
		"transaction_id", tx.ID,
		"actor", actor,
	)
	w.audit.Emit(ctx, audit.Event{
		Action:        audit.ActionSubmissionRequeued,
		OrgID:         tx.OrgID.String(),
		RecordType:    tx.RecordType.String(),
		RecordID:      tx.RecordID,
		TransactionID: tx.ID,
		Actor:         actor,
	})
	return nil
}

func (w *Worker) reportQueueDepth(ctx context.Context) {
	counts, err := w.ledger.CountByStatus(ctx, StatusRetrying)
	if err != nil {
		return
	}
	for _, recordType := range []domain.RecordType{domain.RecordTypePatient, domain.RecordTypeStaff, domain.RecordTypeVisit} {
		w.metrics.PendingTransactions.WithLabelValues(recordType.String()).Set(float64(counts[recordType]))
	}
}
