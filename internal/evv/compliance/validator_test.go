package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/authz"
)

// Client address in Austin; clock fixes default to the same point.
var clientLoc = domain.GeoPoint{Latitude: 30.2672, Longitude: -97.7431}

func cleanVisit() domain.Visit {
	in := clientLoc
	out := clientLoc
	return domain.Visit{
		ID:          "visit-1",
		OrgID:       "org-1",
		PatientID:   "patient-1",
		StaffID:     "staff-1",
		ServiceCode: "T1019",
		ServiceDate: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		ClockIn: domain.ClockEvent{
			Time:     time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
			Location: &in,
			Method:   domain.CaptureMobile,
		},
		ClockOut: domain.ClockEvent{
			Time:     time.Date(2025, time.March, 10, 11, 0, 0, 0, time.UTC),
			Location: &out,
			Method:   domain.CaptureMobile,
		},
		LocationType: "home",
		Units:        8,
	}
}

// pointAtMiles returns a point roughly the given distance due north of
// clientLoc. One degree of latitude is ~69.05 miles.
func pointAtMiles(miles float64) *domain.GeoPoint {
	return &domain.GeoPoint{
		Latitude:  clientLoc.Latitude + miles/69.05,
		Longitude: clientLoc.Longitude,
	}
}

func errorCodes(r domain.ValidationResult) []string {
	codes := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		codes = append(codes, e.Code)
	}
	return codes
}

func warningCodes(r domain.ValidationResult) []string {
	codes := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		codes = append(codes, w.Code)
	}
	return codes
}

func TestValidate_CleanVisitScenario(t *testing.T) {
	// T1019, 09:00-11:00, both fixes inside the radius, authorization with
	// 50 units remaining, 8 requested: zero errors.
	v := NewValidator(DefaultConfig())
	auth := domain.Authorization{
		Number:          "AUTH-1",
		ServiceCode:     "T1019",
		AuthorizedUnits: 100,
		UsedUnits:       50,
		StartDate:       time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
	result := v.Validate(Input{Visit: cleanVisit(), ClientLocation: &clientLoc, Authorization: &auth})
	assert.True(t, result.IsValid())
	assert.Empty(t, result.Errors)
}

func TestRequiredFields_EachAbsenceIsDistinct(t *testing.T) {
	v := NewValidator(DefaultConfig())
	visit := domain.Visit{} // everything missing
	result := v.Validate(Input{Visit: visit})

	codes := errorCodes(result)
	for _, want := range []string{
		"REQUIRED_SERVICE_CODE", "REQUIRED_PATIENT_ID", "REQUIRED_STAFF_ID",
		"REQUIRED_SERVICE_DATE", "REQUIRED_CLOCK_IN", "REQUIRED_CLOCK_OUT",
		"REQUIRED_GPS_LOCATION", "REQUIRED_POSITIVE_UNITS",
	} {
		assert.Contains(t, codes, want)
	}
}

func TestRequiredFields_NullIslandCoordinates(t *testing.T) {
	v := NewValidator(DefaultConfig())
	visit := cleanVisit()
	visit.ClockIn.Location = &domain.GeoPoint{}
	result := v.Validate(Input{Visit: visit})
	assert.Contains(t, errorCodes(result), "REQUIRED_GPS_COORDINATES")
}

func TestGeofence_BoundaryIsInclusive(t *testing.T) {
	boundary := pointAtMiles(1.0)

	cfg := DefaultConfig()
	// Radius set to the exact measured distance: the fix sits precisely on
	// the boundary.
	cfg.GeofenceRadiusMiles = distanceMiles(*boundary, clientLoc)
	v := NewValidator(cfg)

	visit := cleanVisit()
	visit.ClockIn.Location = boundary
	visit.ClockOut.Location = pointAtMiles(0.05)
	result := v.Validate(Input{Visit: visit, ClientLocation: &clientLoc})
	assert.NotContains(t, errorCodes(result), "GEOFENCE_OUTSIDE_RADIUS",
		"a fix exactly at the boundary does not error")

	visit.ClockIn.Location = pointAtMiles(1.05)
	result = v.Validate(Input{Visit: visit, ClientLocation: &clientLoc})
	assert.Contains(t, errorCodes(result), "GEOFENCE_OUTSIDE_RADIUS")
}

func TestGeofence_WarnBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GeofenceRadiusMiles = 1.0
	v := NewValidator(cfg)

	visit := cleanVisit()
	visit.ClockIn.Location = pointAtMiles(0.9) // beyond 80%, within radius
	result := v.Validate(Input{Visit: visit, ClientLocation: &clientLoc})
	assert.True(t, result.IsValid())
	assert.Contains(t, warningCodes(result), "GEOFENCE_NEAR_LIMIT")
}

func TestGeofence_SkippedWithoutClientLocation(t *testing.T) {
	v := NewValidator(DefaultConfig())
	visit := cleanVisit()
	visit.ClockIn.Location = pointAtMiles(50)
	result := v.Validate(Input{Visit: visit})
	assert.NotContains(t, errorCodes(result), "GEOFENCE_OUTSIDE_RADIUS")
}

func TestTimeTolerance_ClockOutBeforeClockIn(t *testing.T) {
	v := NewValidator(DefaultConfig())
	visit := cleanVisit()
	visit.ClockIn.Time, visit.ClockOut.Time = visit.ClockOut.Time, visit.ClockIn.Time
	result := v.Validate(Input{Visit: visit})

	var timeErrors []domain.Issue
	for _, e := range result.Errors {
		if e.Code == "TIME_CLOCK_OUT_NOT_AFTER_IN" {
			timeErrors = append(timeErrors, e)
		}
	}
	require.Len(t, timeErrors, 1, "exactly one time-tolerance error")
	assert.Equal(t, "clockOutTime", timeErrors[0].Field)
}

func TestTimeTolerance_ExcessiveAndShortDurations(t *testing.T) {
	v := NewValidator(DefaultConfig())

	visit := cleanVisit()
	visit.ClockOut.Time = visit.ClockIn.Time.Add(25 * time.Hour)
	result := v.Validate(Input{Visit: visit})
	assert.Contains(t, errorCodes(result), "TIME_DURATION_EXCESSIVE")

	visit = cleanVisit()
	visit.ClockOut.Time = visit.ClockIn.Time.Add(10 * time.Minute)
	result = v.Validate(Input{Visit: visit})
	assert.NotContains(t, errorCodes(result), "TIME_DURATION_EXCESSIVE")
	assert.Contains(t, warningCodes(result), "TIME_DURATION_SHORT")
}

func TestAuthorization_WarnModeKeepsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Authorization.Mode = authz.ModeWarn
	v := NewValidator(cfg)

	auth := domain.Authorization{
		Number:          "AUTH-1",
		ServiceCode:     "T1019",
		AuthorizedUnits: 10,
		UsedUnits:       9,
		StartDate:       time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
	result := v.Validate(Input{Visit: cleanVisit(), Authorization: &auth})
	assert.True(t, result.IsValid(), "warn mode produces warnings, not errors")
	assert.Contains(t, warningCodes(result), "AUTH_UNITS_EXCEEDED")
}

func TestServiceCodeLegality(t *testing.T) {
	v := NewValidator(DefaultConfig())

	visit := cleanVisit()
	visit.ServiceCode = "1T019"
	result := v.Validate(Input{Visit: visit})
	assert.Contains(t, errorCodes(result), "CODE_FORMAT_INVALID")

	visit = cleanVisit()
	visit.ServiceCode = "T9990" // well-formed but uncommon
	result = v.Validate(Input{Visit: visit})
	assert.NotContains(t, errorCodes(result), "CODE_FORMAT_INVALID")
	assert.Contains(t, warningCodes(result), "CODE_UNCOMMON")
}

func TestDataIntegrity_CoordinateRanges(t *testing.T) {
	v := NewValidator(DefaultConfig())
	visit := cleanVisit()
	visit.ClockIn.Location = &domain.GeoPoint{Latitude: 95, Longitude: -200}
	result := v.Validate(Input{Visit: visit})
	codes := errorCodes(result)
	assert.Contains(t, codes, "INTEGRITY_LATITUDE_RANGE")
	assert.Contains(t, codes, "INTEGRITY_LONGITUDE_RANGE")
}

func TestDataIntegrity_ServiceDateShape(t *testing.T) {
	v := NewValidator(DefaultConfig())
	visit := cleanVisit()
	visit.ServiceDate = visit.ServiceDate.Add(3 * time.Hour)
	result := v.Validate(Input{Visit: visit})
	assert.Contains(t, errorCodes(result), "INTEGRITY_SERVICE_DATE_SHAPE")
}

func TestValidate_CategoriesAccumulate(t *testing.T) {
	v := NewValidator(DefaultConfig())
	visit := cleanVisit()
	visit.ServiceCode = "bad!"
	visit.Units = 0
	visit.ClockIn.Location = &domain.GeoPoint{Latitude: 95, Longitude: 0}
	result := v.Validate(Input{Visit: visit})

	codes := errorCodes(result)
	assert.Contains(t, codes, "CODE_FORMAT_INVALID")
	assert.Contains(t, codes, "REQUIRED_POSITIVE_UNITS")
	assert.Contains(t, codes, "INTEGRITY_LATITUDE_RANGE")
}

func TestDistanceMiles(t *testing.T) {
	// Austin to Dallas is roughly 182 miles great-circle.
	dallas := domain.GeoPoint{Latitude: 32.7767, Longitude: -96.7970}
	d := distanceMiles(clientLoc, dallas)
	assert.InDelta(t, 182, d, 5)

	assert.Zero(t, distanceMiles(clientLoc, clientLoc))
}
