// Package records adapts the agency platform's resolved records to the
// submission engine. The engine never owns patient, staff, or visit data;
// it reads fully-resolved snapshots through this boundary.
package records

import (
	"context"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// Store resolves records by identifier.
type Store interface {
	GetPatient(ctx context.Context, id string) (domain.Patient, error)
	GetStaff(ctx context.Context, id string) (domain.Staff, error)
	GetVisit(ctx context.Context, id string) (domain.Visit, error)
	// GetAuthorization returns the active authorization covering the
	// patient and service code, or nil when none exists.
	GetAuthorization(ctx context.Context, patientID, serviceCode string) (*domain.Authorization, error)
}
