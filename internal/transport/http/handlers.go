package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/submission"
	"github.com/KaripeHS/serenity-sub009/internal/records"
	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// Requeuer is the retry worker surface the admin endpoint needs.
type Requeuer interface {
	Requeue(ctx context.Context, transactionID, actor string) error
}

// Handler holds the HTTP layer's dependencies.
type Handler struct {
	orchestrator *submission.Orchestrator
	ledger       submission.Ledger
	requeuer     Requeuer
	records      records.Store
	logger       *slog.Logger
}

// NewHandler wires the HTTP layer. Requeuer may be nil when no retry
// worker runs in this process; the endpoint then reports conflict.
func NewHandler(orchestrator *submission.Orchestrator, ledger submission.Ledger, store records.Store, requeuer Requeuer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		ledger:       ledger,
		requeuer:     requeuer,
		records:      store,
		logger:       logger,
	}
}

type submitRequest struct {
	ForceNewVersion  bool `json:"forceNewVersion"`
	SkipCodesetCheck bool `json:"skipCodesetCheck"`
}

type batchRequest struct {
	VisitIDs         []string `json:"visitIds"`
	SkipCodesetCheck bool     `json:"skipCodesetCheck"`
	InterCallDelayMS int      `json:"interCallDelayMs"`
}

type issueDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type outcomeDTO struct {
	Success               bool       `json:"success"`
	TransactionID         string     `json:"transactionId,omitempty"`
	ExternalTransactionID string     `json:"externalTransactionId,omitempty"`
	HTTPStatus            int        `json:"httpStatus,omitempty"`
	WillRetry             bool       `json:"willRetry,omitempty"`
	Errors                []issueDTO `json:"errors,omitempty"`
	Warnings              []issueDTO `json:"warnings,omitempty"`
	SubmittedAt           *time.Time `json:"submittedAt,omitempty"`
}

func toOutcomeDTO(o *submission.Outcome) outcomeDTO {
	dto := outcomeDTO{
		Success:               o.Success,
		TransactionID:         o.TransactionID,
		ExternalTransactionID: o.ExternalTransactionID,
		HTTPStatus:            o.HTTPStatus,
		WillRetry:             o.WillRetry,
		Errors:                toIssueDTOs(o.Errors),
		Warnings:              toIssueDTOs(o.Warnings),
	}
	if !o.SubmittedAt.IsZero() {
		dto.SubmittedAt = &o.SubmittedAt
	}
	return dto
}

func toIssueDTOs(issues []domain.Issue) []issueDTO {
	if len(issues) == 0 {
		return nil
	}
	out := make([]issueDTO, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issueDTO{Code: issue.Code, Message: issue.Message, Field: issue.Field})
	}
	return out
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSubmitPatient(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	patient, err := h.records.GetPatient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := h.orchestrator.SubmitPatient(r.Context(), patient, req.ForceNewVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, outcomeStatus(outcome), toOutcomeDTO(outcome))
}

func (h *Handler) handleSubmitStaff(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	staff, err := h.records.GetStaff(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := h.orchestrator.SubmitStaff(r.Context(), staff, req.ForceNewVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, outcomeStatus(outcome), toOutcomeDTO(outcome))
}

func (h *Handler) handleSubmitVisit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	sub, err := h.resolveVisitSubmission(r, chi.URLParam(r, "id"), req.SkipCodesetCheck, req.ForceNewVersion)
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := h.orchestrator.SubmitVisit(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, outcomeStatus(outcome), toOutcomeDTO(outcome))
}

func (h *Handler) handleSubmitVisitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.Wrap(err, pkgerrors.CodeValidation, "decode batch request"))
		return
	}
	if len(req.VisitIDs) == 0 {
		writeError(w, pkgerrors.New(pkgerrors.CodeValidation, "visitIds is required"))
		return
	}

	subs := make([]submission.VisitSubmission, 0, len(req.VisitIDs))
	for _, id := range req.VisitIDs {
		sub, err := h.resolveVisitSubmission(r, id, req.SkipCodesetCheck, false)
		if err != nil {
			writeError(w, err)
			return
		}
		subs = append(subs, sub)
	}

	summary, err := h.orchestrator.SubmitVisitBatch(r.Context(), subs, submission.BatchOptions{
		InterCallDelay: time.Duration(req.InterCallDelayMS) * time.Millisecond,
	})
	if err != nil && summary == nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"total":       summary.Total,
		"accepted":    summary.Accepted,
		"rejected":    summary.Rejected,
		"failed":      summary.Failed,
		"errors":      summary.Errors,
		"warnings":    summary.Warnings,
		"successRate": summary.SuccessRate(),
	}
	results := make([]map[string]any, 0, len(summary.Results))
	for _, res := range summary.Results {
		entry := map[string]any{"visitId": res.VisitID}
		if res.Outcome != nil {
			entry["outcome"] = toOutcomeDTO(res.Outcome)
		}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		}
		results = append(results, entry)
	}
	resp["results"] = results
	writeJSON(w, http.StatusOK, resp)
}

// resolveVisitSubmission loads the visit plus the validation context the
// orchestrator's pre-flight needs.
func (h *Handler) resolveVisitSubmission(r *http.Request, visitID string, skipCodeset, forceNewVersion bool) (submission.VisitSubmission, error) {
	ctx := r.Context()
	visit, err := h.records.GetVisit(ctx, visitID)
	if err != nil {
		return submission.VisitSubmission{}, err
	}
	sub := submission.VisitSubmission{
		Visit:            visit,
		SkipCodesetCheck: skipCodeset,
		ForceNewVersion:  forceNewVersion,
	}
	// Patient and authorization context are optional; a record that simply
	// is not there degrades the pre-flight gracefully, but a failing store
	// must not silently disable it.
	switch patient, err := h.records.GetPatient(ctx, visit.PatientID); {
	case err == nil:
		sub.Patient = &patient
	case pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound:
		return submission.VisitSubmission{}, err
	}
	switch auth, err := h.records.GetAuthorization(ctx, visit.PatientID, visit.ServiceCode); {
	case err == nil:
		sub.Authorization = auth
	case pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound:
		return submission.VisitSubmission{}, err
	}
	return sub, nil
}

type transactionDTO struct {
	ID          string     `json:"id"`
	RecordType  string     `json:"recordType"`
	RecordID    string     `json:"recordId"`
	SequenceID  int64      `json:"sequenceId"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	ExternalID  string     `json:"externalId,omitempty"`
	HTTPStatus  int        `json:"httpStatus,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func toTransactionDTO(tx *submission.Transaction) transactionDTO {
	dto := transactionDTO{
		ID:          tx.ID,
		RecordType:  tx.RecordType.String(),
		RecordID:    tx.RecordID,
		SequenceID:  tx.SequenceID,
		Status:      string(tx.Status),
		Priority:    string(tx.Priority),
		Attempts:    tx.Attempts,
		MaxAttempts: tx.MaxAttempts,
		LastError:   tx.LastError,
		ExternalID:  tx.ExternalID,
		HTTPStatus:  tx.HTTPStatus,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
	if !tx.NextRetryAt.IsZero() {
		retryAt := tx.NextRetryAt
		dto.NextRetryAt = &retryAt
	}
	return dto
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(tx))
}

func (h *Handler) handleRequeueTransaction(w http.ResponseWriter, r *http.Request) {
	if h.requeuer == nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeConflict, "no retry worker is running"))
		return
	}
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		actor = "unknown"
	}
	if err := h.requeuer.Requeue(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requeued"})
}

func (h *Handler) handleListRecordTransactions(w http.ResponseWriter, r *http.Request) {
	recordType, err := domain.ParseRecordType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, err)
		return
	}
	txs, err := h.ledger.ListByRecord(r.Context(), recordType, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]transactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// outcomeStatus keeps HTTP semantics distinct from business outcomes: a
// validated-but-rejected submission is still a successful API call.
func outcomeStatus(o *submission.Outcome) int {
	if o.Success {
		return http.StatusOK
	}
	if o.TransactionID == "" {
		// Never transmitted: the caller's input failed validation.
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

// decodeOptionalBody parses an optional JSON body into dst. An empty body
// leaves dst at its zero value.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, pkgerrors.Wrap(err, pkgerrors.CodeValidation, "decode request body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates coded errors into HTTP statuses with a consistent
// JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	code := pkgerrors.CodeOf(err)
	writeJSON(w, statusForCode(code), map[string]string{
		"error":   string(code),
		"message": err.Error(),
	})
}

func statusForCode(code pkgerrors.Code) int {
	switch code {
	case pkgerrors.CodeValidation, pkgerrors.CodeBusinessRule:
		return http.StatusUnprocessableEntity
	case pkgerrors.CodeNotFound:
		return http.StatusNotFound
	case pkgerrors.CodeConflict:
		return http.StatusConflict
	case pkgerrors.CodeAuthentication:
		return http.StatusBadGateway
	case pkgerrors.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
