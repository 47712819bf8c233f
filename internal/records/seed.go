package records

import (
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// Seed loads the dev dataset: one patient, one caregiver, and a completed
// visit covered by an active authorization, all consistent with the
// built-in code-set catalog. Applied when no database is configured so a
// local run can exercise the submit endpoints end to end.
func Seed(s *InMemoryStore) {
	home := domain.GeoPoint{Latitude: 30.2672, Longitude: -97.7431}
	address := domain.Address{
		Line1: "1100 Congress Ave",
		City:  "Austin",
		State: "TX",
		Zip:   "78701",
	}

	// Yesterday's visit, so the seed stays submittable on any start date.
	serviceDate := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)

	s.PutPatient(domain.Patient{
		ID:         "patient-1",
		OrgID:      "org-1",
		MedicaidID: "AB1234567890",
		FirstName:  "Maria",
		LastName:   "Gonzalez",
		BirthDate:  time.Date(1952, time.April, 9, 0, 0, 0, 0, time.UTC),
		Gender:     "F",
		Address:    &address,
		Phone:      "5125550142",
		Location:   &home,
		PayerID:    "MEDICAID",
		ProgramID:  "PCS",
	})

	s.PutStaff(domain.Staff{
		ID:         "staff-1",
		OrgID:      "org-1",
		EmployeeID: "EMP-1042",
		SSNLast4:   "6789",
		FirstName:  "Dana",
		LastName:   "Reyes",
		BirthDate:  time.Date(1990, time.September, 2, 0, 0, 0, 0, time.UTC),
		Phone:      "5125550178",
	})

	s.PutVisit(domain.Visit{
		ID:          "visit-1",
		OrgID:       "org-1",
		PatientID:   "patient-1",
		StaffID:     "staff-1",
		ServiceCode: "T1019",
		ServiceDate: serviceDate,
		ClockIn: domain.ClockEvent{
			Time:     serviceDate.Add(9 * time.Hour),
			Location: &home,
			Method:   domain.CaptureMobile,
		},
		ClockOut: domain.ClockEvent{
			Time:     serviceDate.Add(11 * time.Hour),
			Location: &home,
			Method:   domain.CaptureMobile,
		},
		LocationType: "home",
		Units:        8,
	})

	s.PutAuthorization("patient-1", domain.Authorization{
		Number:          "AUTH-2025-0001",
		ServiceCode:     "T1019",
		AuthorizedUnits: 480,
		UsedUnits:       120,
		StartDate:       serviceDate.AddDate(0, -3, 0),
		EndDate:         serviceDate.AddDate(0, 3, 0),
	})
}
