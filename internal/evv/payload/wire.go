// Package payload maps internal records into the aggregator's wire format.
// Field names, date shapes, and enum values here are dictated by the state
// aggregator's interface specification and must not drift.
package payload

import "time"

// Wire date shapes required by the aggregator.
const (
	wireDateFormat     = "01/02/2006"
	wireDateTimeFormat = "01/02/2006 15:04:05"
)

// Call types.
const (
	CallTypeIn  = "I"
	CallTypeOut = "O"
)

// Capture methods.
const (
	MethodMobile    = "M"
	MethodTelephony = "T"
	MethodFixed     = "F"
	MethodWeb       = "W"
)

// Location types. Single-character numeric strings, never free text.
const (
	LocationHome      = "1"
	LocationCommunity = "2"
)

// ValidEditReasonCode is the only manual-edit reason code the aggregator
// currently accepts. Everything else is rejected before transmission.
const ValidEditReasonCode = "100"

// AddressBlock is the optional nested address structure. Emitted only when
// the source record can satisfy every required sub-field.
type AddressBlock struct {
	AddressLine1 string `json:"AddressLine1"`
	AddressLine2 string `json:"AddressLine2,omitempty"`
	City         string `json:"City"`
	State        string `json:"State"`
	ZipCode      string `json:"ZipCode"`
}

// PayerBlock associates a patient with their payer and program.
type PayerBlock struct {
	PayerID   string `json:"PayerID"`
	ProgramID string `json:"ProgramID"`
}

// PatientPayload is the external patient record.
type PatientPayload struct {
	SequenceID     int64         `json:"SequenceID"`
	PatientOtherID string        `json:"PatientOtherID"`
	MedicaidID     string        `json:"PatientMedicaidID"`
	FirstName      string        `json:"PatientFirstName"`
	LastName       string        `json:"PatientLastName"`
	BirthDate      string        `json:"PatientBirthDate"`
	Gender         string        `json:"PatientGender,omitempty"`
	Address        *AddressBlock `json:"PatientAddress,omitempty"`
	Phone          string        `json:"PatientPhone,omitempty"`
	Payer          *PayerBlock   `json:"PatientPayer,omitempty"`
}

// StaffPayload is the external staff record.
type StaffPayload struct {
	SequenceID   int64         `json:"SequenceID"`
	StaffOtherID string        `json:"StaffOtherID"`
	StaffID      string        `json:"StaffID"`
	SSN          string        `json:"StaffSSN,omitempty"`
	FirstName    string        `json:"StaffFirstName"`
	LastName     string        `json:"StaffLastName"`
	Email        string        `json:"StaffEmail,omitempty"`
	Phone        string        `json:"StaffPhone,omitempty"`
	Address      *AddressBlock `json:"StaffAddress,omitempty"`
}

// CallRecord is one clock event on the wire. GPS captures carry
// coordinates and accuracy; telephony captures carry the originating
// number.
type CallRecord struct {
	CallType          string  `json:"CallType"`
	CallDateTime      string  `json:"CallDateTime"`
	CallAssignment    string  `json:"CallAssignment"`
	Latitude          float64 `json:"CallLatitude,omitempty"`
	Longitude         float64 `json:"CallLongitude,omitempty"`
	GPSAccuracyMeters float64 `json:"CallGPSAccuracy,omitempty"`
	OriginatingPhone  string  `json:"OriginatingPhoneNumber,omitempty"`
}

// ChangeRecord is one manual-correction audit entry.
type ChangeRecord struct {
	FieldName  string `json:"ChangeFieldName"`
	OldValue   string `json:"ChangeOldValue"`
	NewValue   string `json:"ChangeNewValue"`
	MadeBy     string `json:"ChangeMadeBy"`
	DateTime   string `json:"ChangeDateTime"`
	ReasonCode string `json:"ChangeReasonCode"`
}

// VisitPayload is the external visit record. Calls always has at least two
// entries, one in and one out.
type VisitPayload struct {
	SequenceID        int64          `json:"SequenceID"`
	VisitOtherID      string         `json:"VisitOtherID"`
	PatientOtherID    string         `json:"PatientOtherID"`
	StaffOtherID      string         `json:"StaffOtherID"`
	ServiceCode       string         `json:"ProcedureCode"`
	Modifiers         []string       `json:"Modifiers,omitempty"`
	VisitDate         string         `json:"VisitDate"`
	AdjInDateTime     string         `json:"AdjInDateTime"`
	AdjOutDateTime    string         `json:"AdjOutDateTime"`
	VisitLocationType string         `json:"VisitLocationType"`
	BillableUnits     int            `json:"BillableUnits"`
	Memo              string         `json:"Memo,omitempty"`
	Calls             []CallRecord   `json:"Calls"`
	Changes           []ChangeRecord `json:"Changes,omitempty"`
}

// wireDate formats a date the way the aggregator requires.
func wireDate(t time.Time) string { return t.Format(wireDateFormat) }

// wireDateTime formats a timestamp the way the aggregator requires.
func wireDateTime(t time.Time) string { return t.Format(wireDateTimeFormat) }
