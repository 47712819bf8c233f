package payload

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
	"github.com/KaripeHS/serenity-sub009/internal/evv/sequence"
	"github.com/KaripeHS/serenity-sub009/internal/evv/timeutil"
	"github.com/KaripeHS/serenity-sub009/internal/evv/visitkey"
)

// Structural ceilings from the aggregator's interface specification.
const (
	maxNameLen    = 30
	maxAddressLen = 50
	maxCityLen    = 30
	maxMemoLen    = 512
)

var (
	medicaidIDPattern = regexp.MustCompile(`^[A-Z0-9]{12}$`)
	zipPattern        = regexp.MustCompile(`^\d{5}(\d{4})?$`)
)

// Age plausibility bounds on birth dates.
const (
	maxAgeYears      = 120
	minStaffAgeYears = 16
)

// BuildError carries the complete violation list when a hard prerequisite
// fails. Payloads are never emitted partially valid.
type BuildError struct {
	Entity     domain.RecordType
	Violations []domain.Issue
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s payload build failed with %d violations", e.Entity, len(e.Violations))
}

// Builder assembles wire payloads, attaching sequence numbers from the
// allocator.
type Builder struct {
	sequences *sequence.Allocator
	now       func() time.Time
}

// BuilderOption configures the Builder.
type BuilderOption func(*Builder)

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder over the given allocator.
func NewBuilder(sequences *sequence.Allocator, opts ...BuilderOption) *Builder {
	b := &Builder{sequences: sequences, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildOptions control sequence handling for one build.
type BuildOptions struct {
	// ForceNewVersion allocates a fresh sequence even when the record was
	// submitted before, signalling "new version" to the receiving system.
	ForceNewVersion bool
}

// BuildPatient validates prerequisites and assembles the patient payload.
func (b *Builder) BuildPatient(ctx context.Context, patient domain.Patient, opts BuildOptions) (*PatientPayload, error) {
	var violations []domain.Issue
	addViolation := func(code, msg, field string) {
		violations = append(violations, domain.Issue{Code: code, Message: msg, Field: field, Severity: domain.SeverityError})
	}

	if !medicaidIDPattern.MatchString(patient.MedicaidID) {
		addViolation("PATIENT_MEDICAID_ID_FORMAT", "medicaid id must be 12 alphanumeric characters", "medicaidId")
	}
	checkName(&violations, patient.FirstName, "firstName")
	checkName(&violations, patient.LastName, "lastName")
	checkBirthDate(&violations, patient.BirthDate, b.now(), 0)
	checkAddress(&violations, patient.Address)

	if len(violations) > 0 {
		return nil, &BuildError{Entity: domain.RecordTypePatient, Violations: violations}
	}

	seq, err := b.resolveSequence(ctx, patient.OrgID, domain.RecordTypePatient, patient.ID, opts)
	if err != nil {
		return nil, err
	}

	p := &PatientPayload{
		SequenceID:     seq,
		PatientOtherID: patient.ID,
		MedicaidID:     patient.MedicaidID,
		FirstName:      patient.FirstName,
		LastName:       patient.LastName,
		BirthDate:      wireDate(patient.BirthDate),
		Gender:         patient.Gender,
		Phone:          patient.Phone,
		Address:        addressBlock(patient.Address),
	}
	if patient.PayerID != "" && patient.ProgramID != "" {
		p.Payer = &PayerBlock{PayerID: patient.PayerID, ProgramID: patient.ProgramID}
	}
	return p, nil
}

// BuildStaff validates prerequisites and assembles the staff payload.
func (b *Builder) BuildStaff(ctx context.Context, staff domain.Staff, opts BuildOptions) (*StaffPayload, error) {
	var violations []domain.Issue
	addViolation := func(code, msg, field string) {
		violations = append(violations, domain.Issue{Code: code, Message: msg, Field: field, Severity: domain.SeverityError})
	}

	if staff.EmployeeID == "" {
		addViolation("STAFF_EMPLOYEE_ID_REQUIRED", "employee id is required", "employeeId")
	}
	checkName(&violations, staff.FirstName, "firstName")
	checkName(&violations, staff.LastName, "lastName")
	checkBirthDate(&violations, staff.BirthDate, b.now(), minStaffAgeYears)
	checkAddress(&violations, staff.Address)

	if len(violations) > 0 {
		return nil, &BuildError{Entity: domain.RecordTypeStaff, Violations: violations}
	}

	seq, err := b.resolveSequence(ctx, staff.OrgID, domain.RecordTypeStaff, staff.ID, opts)
	if err != nil {
		return nil, err
	}

	return &StaffPayload{
		SequenceID:   seq,
		StaffOtherID: staff.ID,
		StaffID:      staff.EmployeeID,
		SSN:          staff.SSNLast4,
		FirstName:    staff.FirstName,
		LastName:     staff.LastName,
		Email:        staff.Email,
		Phone:        staff.Phone,
		Address:      addressBlock(staff.Address),
	}, nil
}

// BuildVisit validates prerequisites and assembles the visit payload with
// its Calls array and, when manual edits exist, the Changes audit array.
func (b *Builder) BuildVisit(ctx context.Context, visit domain.Visit, opts BuildOptions) (*VisitPayload, error) {
	var violations []domain.Issue
	addViolation := func(code, msg, field string) {
		violations = append(violations, domain.Issue{Code: code, Message: msg, Field: field, Severity: domain.SeverityError})
	}

	key, err := b.visitKey(visit)
	if err != nil {
		addViolation("VISIT_KEY_INVALID", err.Error(), "visitKey")
	}

	locationType, ok := wireLocationType(visit.LocationType)
	if !ok {
		addViolation("VISIT_LOCATION_TYPE_INVALID",
			fmt.Sprintf("location type %q is not home or community", visit.LocationType), "locationType")
	}

	units := visit.Units
	if units <= 0 {
		computed, unitsErr := timeutil.BillableUnits(visit.Duration())
		if unitsErr != nil || computed <= 0 {
			addViolation("VISIT_UNITS_INVALID", "visit has no billable units", "units")
		}
		units = computed
	}

	callIn, callViolations := buildCall(CallTypeIn, visit.ClockIn)
	violations = append(violations, callViolations...)
	callOut, callViolations := buildCall(CallTypeOut, visit.ClockOut)
	violations = append(violations, callViolations...)

	changes, changeViolations := buildChanges(visit.Edits)
	violations = append(violations, changeViolations...)

	if len(visit.Memo) > maxMemoLen {
		addViolation("VISIT_MEMO_TOO_LONG", fmt.Sprintf("memo exceeds %d characters", maxMemoLen), "memo")
	}

	if len(violations) > 0 {
		return nil, &BuildError{Entity: domain.RecordTypeVisit, Violations: violations}
	}

	seq, err := b.resolveSequence(ctx, visit.OrgID, domain.RecordTypeVisit, visit.ID, opts)
	if err != nil {
		return nil, err
	}

	return &VisitPayload{
		SequenceID:        seq,
		VisitOtherID:      key,
		PatientOtherID:    visit.PatientID,
		StaffOtherID:      visit.StaffID,
		ServiceCode:       visit.ServiceCode,
		Modifiers:         visit.Modifiers,
		VisitDate:         wireDate(visit.ServiceDate),
		AdjInDateTime:     wireDateTime(visit.ClockIn.Time),
		AdjOutDateTime:    wireDateTime(visit.ClockOut.Time),
		VisitLocationType: locationType,
		BillableUnits:     units,
		Memo:              visit.Memo,
		Calls:             []CallRecord{callIn, callOut},
		Changes:           changes,
	}, nil
}

func (b *Builder) visitKey(visit domain.Visit) (string, error) {
	key, err := visitkey.Generate(visitkey.Components{
		ClientID:    visit.PatientID,
		CaregiverID: visit.StaffID,
		ServiceDate: visit.ServiceDate,
		ServiceCode: visit.ServiceCode,
	})
	if err != nil {
		return "", err
	}
	if visit.Version > 0 {
		return visitkey.WithVersion(key, visit.Version)
	}
	return key, nil
}

// resolveSequence reuses the record's stored sequence for idempotent
// re-submission, allocating a fresh one on first submission or when a new
// version is forced.
func (b *Builder) resolveSequence(ctx context.Context, orgID domain.OrgID, recordType domain.RecordType, recordID string, opts BuildOptions) (int64, error) {
	if !opts.ForceNewVersion {
		existing, err := b.sequences.RecordSequence(ctx, recordType, recordID)
		if err != nil {
			return 0, err
		}
		if existing > 0 {
			return existing, nil
		}
	}
	return b.sequences.NextSequence(ctx, orgID, recordType)
}

func buildCall(callType string, event domain.ClockEvent) (CallRecord, []domain.Issue) {
	var violations []domain.Issue
	addViolation := func(code, msg, field string) {
		violations = append(violations, domain.Issue{Code: code, Message: msg, Field: field, Severity: domain.SeverityError})
	}

	field := "clockIn"
	if callType == CallTypeOut {
		field = "clockOut"
	}

	if event.Time.IsZero() {
		addViolation("CALL_TIME_REQUIRED", fmt.Sprintf("%s time is required", field), field+"Time")
	}

	call := CallRecord{
		CallType:     callType,
		CallDateTime: wireDateTime(event.Time),
	}

	switch event.Method {
	case domain.CaptureMobile:
		call.CallAssignment = MethodMobile
		if event.Location == nil {
			addViolation("CALL_GPS_REQUIRED", fmt.Sprintf("%s GPS location is required for mobile capture", field), field+"Location")
		} else {
			call.Latitude = event.Location.Latitude
			call.Longitude = event.Location.Longitude
			call.GPSAccuracyMeters = event.Location.AccuracyMeters
		}
	case domain.CaptureTelephony:
		call.CallAssignment = MethodTelephony
		if event.Phone == "" {
			addViolation("CALL_PHONE_REQUIRED", fmt.Sprintf("%s phone number is required for telephony capture", field), field+"Phone")
		}
		call.OriginatingPhone = event.Phone
	case domain.CaptureFixed:
		call.CallAssignment = MethodFixed
	case domain.CaptureWeb:
		call.CallAssignment = MethodWeb
	default:
		addViolation("CALL_METHOD_INVALID", fmt.Sprintf("unknown capture method %q", event.Method), field+"Method")
	}

	return call, violations
}

func buildChanges(edits []domain.ManualEdit) ([]ChangeRecord, []domain.Issue) {
	var (
		changes    []ChangeRecord
		violations []domain.Issue
	)
	for i, edit := range edits {
		if edit.ReasonCode != ValidEditReasonCode {
			violations = append(violations, domain.Issue{
				Code:     "CHANGE_REASON_CODE_INVALID",
				Message:  fmt.Sprintf("edit %d carries reason code %q; only %s is accepted", i+1, edit.ReasonCode, ValidEditReasonCode),
				Field:    "edits",
				Severity: domain.SeverityError,
			})
			continue
		}
		changes = append(changes, ChangeRecord{
			FieldName:  edit.Field,
			OldValue:   edit.OldValue,
			NewValue:   edit.NewValue,
			MadeBy:     edit.EditedBy,
			DateTime:   wireDateTime(edit.EditedAt),
			ReasonCode: edit.ReasonCode,
		})
	}
	return changes, violations
}

func wireLocationType(locationType string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(locationType)) {
	case "home":
		return LocationHome, true
	case "community":
		return LocationCommunity, true
	default:
		return "", false
	}
}

func checkName(violations *[]domain.Issue, name, field string) {
	switch {
	case strings.TrimSpace(name) == "":
		*violations = append(*violations, domain.Issue{
			Code: "NAME_REQUIRED", Message: field + " is required", Field: field, Severity: domain.SeverityError,
		})
	case len(name) > maxNameLen:
		*violations = append(*violations, domain.Issue{
			Code: "NAME_TOO_LONG", Message: fmt.Sprintf("%s exceeds %d characters", field, maxNameLen), Field: field, Severity: domain.SeverityError,
		})
	}
}

func checkBirthDate(violations *[]domain.Issue, birthDate, now time.Time, minAgeYears int) {
	add := func(msg string) {
		*violations = append(*violations, domain.Issue{
			Code: "BIRTH_DATE_IMPLAUSIBLE", Message: msg, Field: "birthDate", Severity: domain.SeverityError,
		})
	}
	if birthDate.IsZero() {
		add("birth date is required")
		return
	}
	if birthDate.After(now.AddDate(-minAgeYears, 0, 0)) {
		if minAgeYears > 0 {
			add(fmt.Sprintf("birth date implies age under %d", minAgeYears))
		} else {
			add("birth date is in the future")
		}
		return
	}
	if birthDate.Before(now.AddDate(-maxAgeYears, 0, 0)) {
		add(fmt.Sprintf("birth date implies age over %d", maxAgeYears))
	}
}

// checkAddress validates an optional address block: absent is fine, but a
// present block must be complete and within ceilings.
func checkAddress(violations *[]domain.Issue, addr *domain.Address) {
	if addr == nil {
		return
	}
	add := func(code, msg, field string) {
		*violations = append(*violations, domain.Issue{Code: code, Message: msg, Field: field, Severity: domain.SeverityError})
	}
	if len(addr.Line1) > maxAddressLen {
		add("ADDRESS_LINE_TOO_LONG", fmt.Sprintf("address line 1 exceeds %d characters", maxAddressLen), "address.line1")
	}
	if len(addr.Line2) > maxAddressLen {
		add("ADDRESS_LINE_TOO_LONG", fmt.Sprintf("address line 2 exceeds %d characters", maxAddressLen), "address.line2")
	}
	if len(addr.City) > maxCityLen {
		add("ADDRESS_CITY_TOO_LONG", fmt.Sprintf("city exceeds %d characters", maxCityLen), "address.city")
	}
	if addr.Zip != "" && !zipPattern.MatchString(addr.Zip) {
		add("ADDRESS_ZIP_FORMAT", "zip code must be 5 or 9 digits", "address.zip")
	}
}

// addressBlock emits the nested structure only when the source data can
// satisfy every required sub-field.
func addressBlock(addr *domain.Address) *AddressBlock {
	if addr == nil || addr.Line1 == "" || addr.City == "" || addr.State == "" || addr.Zip == "" {
		return nil
	}
	return &AddressBlock{
		AddressLine1: addr.Line1,
		AddressLine2: addr.Line2,
		City:         addr.City,
		State:        addr.State,
		ZipCode:      addr.Zip,
	}
}
