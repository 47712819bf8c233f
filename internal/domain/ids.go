package domain

import pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"

// OrgID identifies the agency (tenant) a record belongs to. Sequence
// numbering is independent per organization.
type OrgID string

func (o OrgID) String() string { return string(o) }
func (o OrgID) IsEmpty() bool  { return o == "" }

// RecordType names the three entity streams the aggregator accepts.
// Each stream carries its own independent sequence numbering.
type RecordType string

const (
	RecordTypePatient RecordType = "patient"
	RecordTypeStaff   RecordType = "staff"
	RecordTypeVisit   RecordType = "visit"
)

var validRecordTypes = map[RecordType]bool{
	RecordTypePatient: true,
	RecordTypeStaff:   true,
	RecordTypeVisit:   true,
}

// ParseRecordType constructs a RecordType from external input.
// Construct through this at trust boundaries; direct casting bypasses the
// allowlist.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(s)
	if !validRecordTypes[t] {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unknown record type %q", s)
	}
	return t, nil
}

func (t RecordType) IsValid() bool { return validRecordTypes[t] }
func (t RecordType) String() string { return string(t) }
