// Package domain holds the shared records the submission engine operates on.
// Records arrive fully resolved from the rest of the platform; nothing in
// this package performs lookups.
package domain

import "time"

// GeoPoint is a GPS fix captured at clock-in or clock-out.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
	// AccuracyMeters is the device-reported accuracy radius. Zero when the
	// capture method does not supply one.
	AccuracyMeters float64
}

// Address is a postal address. Optional on records; the payload builders
// only emit an address block when every required sub-field is present.
type Address struct {
	Line1 string
	Line2 string
	City  string
	State string
	Zip   string
}

// Patient is the client receiving care, as resolved by the platform.
type Patient struct {
	ID         string
	OrgID      OrgID
	MedicaidID string
	FirstName  string
	LastName   string
	BirthDate  time.Time
	Gender     string
	Address    *Address
	Phone      string
	// Location is the geocoded home address used for geofencing.
	Location *GeoPoint
	PayerID   string
	ProgramID string
	// LastSequence is the external sequence last assigned to this record,
	// zero before first submission.
	LastSequence int64
}

// Staff is the caregiver delivering the visit.
type Staff struct {
	ID           string
	OrgID        OrgID
	EmployeeID   string
	SSNLast4     string
	FirstName    string
	LastName     string
	BirthDate    time.Time
	Email        string
	Phone        string
	Address      *Address
	LastSequence int64
}

// CaptureMethod describes how a clock event was recorded.
type CaptureMethod string

const (
	CaptureMobile    CaptureMethod = "mobile"
	CaptureTelephony CaptureMethod = "telephony"
	CaptureFixed     CaptureMethod = "fixed"
	CaptureWeb       CaptureMethod = "web"
)

// ClockEvent is one end of a visit: the clock-in or the clock-out.
type ClockEvent struct {
	Time     time.Time
	Location *GeoPoint
	Method   CaptureMethod
	// Phone is required when Method is CaptureTelephony.
	Phone string
}

// ManualEdit records a correction applied to a visit after capture.
// Every edit must carry the currently valid reason code to be transmittable.
type ManualEdit struct {
	Field      string
	OldValue   string
	NewValue   string
	EditedBy   string
	EditedAt   time.Time
	ReasonCode string
}

// Visit is a completed care visit ready for regulatory submission.
type Visit struct {
	ID          string
	OrgID       OrgID
	PatientID   string
	StaffID     string
	ServiceCode string
	Modifiers   []string
	ServiceDate time.Time
	ClockIn     ClockEvent
	ClockOut    ClockEvent
	// LocationType is "home" or "community"; mapped to the single-character
	// wire value by the builder.
	LocationType string
	Units        int
	Memo         string
	Edits        []ManualEdit
	// Version is zero for the original visit, N for correction _vN.
	Version      int
	LastSequence int64
}

// Duration returns clock-out minus clock-in. Callers validate sign.
func (v Visit) Duration() time.Duration {
	return v.ClockOut.Time.Sub(v.ClockIn.Time)
}

// Authorization is a payer-issued allowance of billable units for a service
// over a date range. Read-only input to validation.
type Authorization struct {
	Number          string
	ServiceCode     string
	AuthorizedUnits int
	UsedUnits       int
	StartDate       time.Time
	EndDate         time.Time
}

// RemainingUnits reports how much of the allowance is left.
func (a Authorization) RemainingUnits() int {
	return a.AuthorizedUnits - a.UsedUnits
}
