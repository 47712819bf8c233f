// Package compliance is the six-category pre-submission rule engine. Every
// category runs independently and contributes to one merged result, so a
// single visit can surface problems from several categories at once.
package compliance

import (
	"fmt"
	"regexp"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/authz"
)

// serviceCodePattern is the fixed-length HCPCS shape: one letter, four
// digits.
var serviceCodePattern = regexp.MustCompile(`^[A-Z]\d{4}$`)

// commonServiceCodes is the allow-list of codes agencies bill routinely.
// Codes outside it are warned about, not rejected - new codes may still be
// legitimate.
var commonServiceCodes = map[string]bool{
	"T1019": true, "T1020": true, "T1021": true, "T1022": true,
	"S5125": true, "S5126": true, "S9122": true, "S9123": true,
	"S9124": true, "G0156": true, "G0299": true, "G0300": true,
}

// Input bundles a visit with its validation context. ClientLocation and
// Authorization are optional: their categories are skipped when absent.
type Input struct {
	Visit          domain.Visit
	ClientLocation *domain.GeoPoint
	Authorization  *domain.Authorization
}

// Validator runs the rule engine.
type Validator struct {
	cfg     Config
	matcher *authz.Matcher
}

func NewValidator(cfg Config) *Validator {
	cfg = cfg.normalize()
	return &Validator{cfg: cfg, matcher: authz.NewMatcher(cfg.Authorization)}
}

// Validate runs all six categories and merges their findings.
func (v *Validator) Validate(in Input) domain.ValidationResult {
	var result domain.ValidationResult
	result.Merge(v.requiredFields(in.Visit))
	result.Merge(v.geofence(in.Visit, in.ClientLocation))
	result.Merge(v.timeTolerance(in.Visit))
	result.Merge(v.authorization(in.Visit, in.Authorization))
	result.Merge(v.serviceCodeLegality(in.Visit))
	result.Merge(v.dataIntegrity(in.Visit))
	return result
}

// requiredFields checks structural presence. Each absence is a distinct,
// field-tagged error.
func (v *Validator) requiredFields(visit domain.Visit) domain.ValidationResult {
	var r domain.ValidationResult
	if visit.ServiceCode == "" {
		r.AddError("REQUIRED_SERVICE_CODE", "service code is required", "serviceCode")
	}
	if visit.PatientID == "" {
		r.AddError("REQUIRED_PATIENT_ID", "patient id is required", "patientId")
	}
	if visit.StaffID == "" {
		r.AddError("REQUIRED_STAFF_ID", "staff id is required", "staffId")
	}
	if visit.ServiceDate.IsZero() {
		r.AddError("REQUIRED_SERVICE_DATE", "service date is required", "serviceDate")
	}
	if visit.ClockIn.Time.IsZero() {
		r.AddError("REQUIRED_CLOCK_IN", "clock-in time is required", "clockInTime")
	}
	if visit.ClockOut.Time.IsZero() {
		r.AddError("REQUIRED_CLOCK_OUT", "clock-out time is required", "clockOutTime")
	}
	checkLocation(&r, visit.ClockIn.Location, "clockInLocation")
	checkLocation(&r, visit.ClockOut.Location, "clockOutLocation")
	if visit.Units <= 0 {
		r.AddError("REQUIRED_POSITIVE_UNITS", "unit count must be positive", "units")
	}
	return r
}

func checkLocation(r *domain.ValidationResult, loc *domain.GeoPoint, field string) {
	if loc == nil {
		r.AddError("REQUIRED_GPS_LOCATION", fmt.Sprintf("%s is required", field), field)
		return
	}
	// A (0,0) fix is the null island default of a failed capture, not a
	// home-care visit location.
	if loc.Latitude == 0 && loc.Longitude == 0 {
		r.AddError("REQUIRED_GPS_COORDINATES", fmt.Sprintf("%s is missing coordinates", field), field)
	}
}

// geofence verifies each clock event happened near the client's address.
// Skipped entirely when no client location is on file.
func (v *Validator) geofence(visit domain.Visit, clientLoc *domain.GeoPoint) domain.ValidationResult {
	var r domain.ValidationResult
	if clientLoc == nil {
		return r
	}

	check := func(loc *domain.GeoPoint, field string) {
		if loc == nil {
			return // required-fields category already flagged it
		}
		distance := distanceMiles(*loc, *clientLoc)
		radius := v.cfg.GeofenceRadiusMiles
		switch {
		case distance > radius:
			r.AddError("GEOFENCE_OUTSIDE_RADIUS",
				fmt.Sprintf("%s is %.2f miles from the client address (allowed %.2f)", field, distance, radius),
				field)
		case distance > radius*v.cfg.GeofenceWarnFraction:
			r.AddWarning("GEOFENCE_NEAR_LIMIT",
				fmt.Sprintf("%s is %.2f miles from the client address, close to the %.2f mile limit", field, distance, radius),
				field)
		}
	}
	check(visit.ClockIn.Location, "clockInLocation")
	check(visit.ClockOut.Location, "clockOutLocation")
	return r
}

// timeTolerance sanity-checks the clock pair.
func (v *Validator) timeTolerance(visit domain.Visit) domain.ValidationResult {
	var r domain.ValidationResult
	if visit.ClockIn.Time.IsZero() || visit.ClockOut.Time.IsZero() {
		return r
	}
	if !visit.ClockOut.Time.After(visit.ClockIn.Time) {
		r.AddError("TIME_CLOCK_OUT_NOT_AFTER_IN", "clock-out must be after clock-in", "clockOutTime")
		return r
	}
	duration := visit.Duration()
	if duration > v.cfg.MaxVisitDuration {
		r.AddError("TIME_DURATION_EXCESSIVE",
			fmt.Sprintf("visit duration %s exceeds %s; caregiver likely forgot to clock out", duration, v.cfg.MaxVisitDuration),
			"clockOutTime")
	}
	if duration < v.cfg.ShortVisitThreshold {
		r.AddWarning("TIME_DURATION_SHORT",
			fmt.Sprintf("visit duration %s is under %s", duration, v.cfg.ShortVisitThreshold),
			"clockOutTime")
	}
	return r
}

// authorization delegates to the matcher. Skipped when no authorization
// context is supplied.
func (v *Validator) authorization(visit domain.Visit, auth *domain.Authorization) domain.ValidationResult {
	if auth == nil {
		return domain.ValidationResult{}
	}
	return v.matcher.Validate(authz.Request{
		ServiceCode:    visit.ServiceCode,
		ServiceDate:    visit.ServiceDate,
		RequestedUnits: visit.Units,
	}, *auth)
}

// serviceCodeLegality checks the code shape and the common-code allow-list.
func (v *Validator) serviceCodeLegality(visit domain.Visit) domain.ValidationResult {
	var r domain.ValidationResult
	if visit.ServiceCode == "" {
		return r
	}
	if !serviceCodePattern.MatchString(visit.ServiceCode) {
		r.AddError("CODE_FORMAT_INVALID",
			fmt.Sprintf("service code %q does not match the expected format (letter followed by four digits)", visit.ServiceCode),
			"serviceCode")
		return r
	}
	if !commonServiceCodes[visit.ServiceCode] {
		r.AddWarning("CODE_UNCOMMON",
			fmt.Sprintf("service code %s is not in the common code list; verify before submission", visit.ServiceCode),
			"serviceCode")
	}
	return r
}

// dataIntegrity validates coordinate ranges and the canonical date shape.
func (v *Validator) dataIntegrity(visit domain.Visit) domain.ValidationResult {
	var r domain.ValidationResult
	checkRange := func(loc *domain.GeoPoint, field string) {
		if loc == nil {
			return
		}
		if loc.Latitude < -90 || loc.Latitude > 90 {
			r.AddError("INTEGRITY_LATITUDE_RANGE",
				fmt.Sprintf("%s latitude %.4f is outside [-90, 90]", field, loc.Latitude), field)
		}
		if loc.Longitude < -180 || loc.Longitude > 180 {
			r.AddError("INTEGRITY_LONGITUDE_RANGE",
				fmt.Sprintf("%s longitude %.4f is outside [-180, 180]", field, loc.Longitude), field)
		}
	}
	checkRange(visit.ClockIn.Location, "clockInLocation")
	checkRange(visit.ClockOut.Location, "clockOutLocation")

	if !visit.ServiceDate.IsZero() {
		h, m, s := visit.ServiceDate.Clock()
		if h != 0 || m != 0 || s != 0 || visit.ServiceDate.Nanosecond() != 0 {
			r.AddError("INTEGRITY_SERVICE_DATE_SHAPE",
				"service date must be a calendar date with no time component", "serviceDate")
		}
	}
	return r
}
