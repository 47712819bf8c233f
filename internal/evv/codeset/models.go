package codeset

import (
	"strings"
	"time"
)

// Entry is one legal (payer, program, procedure) combination from the
// state's code-set catalog.
type Entry struct {
	Payer          string
	Program        string
	ProcedureCode  string
	ValidModifiers []string
	EffectiveStart time.Time
	EffectiveEnd   time.Time
	// RequiresAuthorization marks combinations that may not be billed
	// without a payer authorization on file.
	RequiresAuthorization bool
}

// Key is the normalized cache key for an entry.
type Key struct {
	Payer         string
	Program       string
	ProcedureCode string
}

// NormalizeKey upper-cases and trims the three key components.
func NormalizeKey(payer, program, procedure string) Key {
	return Key{
		Payer:         normalize(payer),
		Program:       normalize(program),
		ProcedureCode: normalize(procedure),
	}
}

func (e Entry) key() Key {
	return NormalizeKey(e.Payer, e.Program, e.ProcedureCode)
}

// EffectiveOn reports whether the entry is effective on the given date.
// A zero EffectiveEnd means open-ended.
func (e Entry) EffectiveOn(date time.Time) bool {
	if !e.EffectiveStart.IsZero() && date.Before(e.EffectiveStart) {
		return false
	}
	if !e.EffectiveEnd.IsZero() && date.After(e.EffectiveEnd) {
		return false
	}
	return true
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
