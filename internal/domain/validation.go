package domain

// Severity distinguishes blocking errors from advisory warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding with a stable machine code.
type Issue struct {
	Code     string
	Message  string
	Field    string
	Severity Severity
}

// ValidationResult aggregates findings from one or more validators.
// Warnings never affect validity.
type ValidationResult struct {
	Errors   []Issue
	Warnings []Issue
}

// IsValid reports whether no blocking errors were found.
func (r *ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

// AddError appends a blocking finding.
func (r *ValidationResult) AddError(code, message, field string) {
	r.Errors = append(r.Errors, Issue{Code: code, Message: message, Field: field, Severity: SeverityError})
}

// AddWarning appends an advisory finding.
func (r *ValidationResult) AddWarning(code, message, field string) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Message: message, Field: field, Severity: SeverityWarning})
}

// Merge folds another result into this one.
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}
