package submission

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/visitkey"
)

// BatchOptions tune batch pacing. The aggregator throttles aggressively,
// so batches are sequential with an inter-call delay rather than parallel.
type BatchOptions struct {
	InterCallDelay time.Duration
}

// BatchResult is one visit's outcome within a batch.
type BatchResult struct {
	VisitID string
	Outcome *Outcome
	Err     error
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Total    int
	Accepted int
	Rejected int
	Failed   int
	// Errors and Warnings count issues across all outcomes.
	Errors   int
	Warnings int
	Results  []BatchResult
}

// SuccessRate is the accepted share of the batch, in [0, 1].
func (s *BatchSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Total)
}

// SubmitVisitBatch submits visits sequentially, honoring the inter-call
// delay between transmissions. A cancelled context stops the batch between
// visits; completed submissions keep their recorded outcomes.
func (o *Orchestrator) SubmitVisitBatch(ctx context.Context, subs []VisitSubmission, opts BatchOptions) (*BatchSummary, error) {
	ctx, span := o.tracer.Start(ctx, "submission.SubmitVisitBatch",
		trace.WithAttributes(attribute.Int("batch_size", len(subs))))
	defer span.End()

	summary := &BatchSummary{Total: len(subs)}
	seen := visitkey.NewDuplicateIndex()
	for i, sub := range subs {
		if i > 0 && opts.InterCallDelay > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(opts.InterCallDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		// Two entries resolving to the same visit key are the same visit;
		// transmitting both would race correction versions at the
		// aggregator. The first wins, the rest are flagged.
		if key, keyErr := visitkey.Generate(visitkey.Components{
			ClientID:    sub.Visit.PatientID,
			CaregiverID: sub.Visit.StaffID,
			ServiceDate: sub.Visit.ServiceDate,
			ServiceCode: sub.Visit.ServiceCode,
		}); keyErr == nil {
			if prior := seen.Members(key); len(prior) > 0 {
				summary.Results = append(summary.Results, BatchResult{
					VisitID: sub.Visit.ID,
					Outcome: &Outcome{Errors: []domain.Issue{{
						Code:     "BATCH_DUPLICATE_VISIT",
						Message:  "visit key already submitted in this batch by " + prior[0],
						Severity: domain.SeverityError,
					}}},
				})
				summary.Rejected++
				summary.Errors++
				continue
			}
			seen.Add(key, sub.Visit.ID)
		}

		outcome, err := o.SubmitVisit(ctx, sub)
		summary.Results = append(summary.Results, BatchResult{VisitID: sub.Visit.ID, Outcome: outcome, Err: err})
		switch {
		case err != nil:
			summary.Failed++
		case outcome.Success:
			summary.Accepted++
		case outcome.WillRetry:
			summary.Failed++
		default:
			summary.Rejected++
		}
		if outcome != nil {
			summary.Errors += len(outcome.Errors)
			summary.Warnings += len(outcome.Warnings)
		}
	}
	return summary, nil
}
