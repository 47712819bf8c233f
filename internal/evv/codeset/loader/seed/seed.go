// Package seed carries a small fallback catalog used when the backing
// store is unreachable or empty. It is deliberately a separate, named tier
// so production code never conflates it with real catalog data: loading
// from seed is always logged by the fallback loader.
//
// The rows cover the common personal-care combinations agencies bill most;
// the real catalog is hundreds of rows and lives in the database.
package seed

import (
	"context"
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/evv/codeset"
)

// Loader serves the built-in sample catalog.
type Loader struct{}

func New() *Loader { return &Loader{} }

func (l *Loader) LoadAll(_ context.Context) ([]codeset.Entry, error) {
	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	return []codeset.Entry{
		{
			Payer:          "MEDICAID",
			Program:        "PCS",
			ProcedureCode:  "T1019",
			ValidModifiers: []string{"U1", "U2", "TT"},
			EffectiveStart: start,
		},
		{
			Payer:                 "MEDICAID",
			Program:               "PCS",
			ProcedureCode:         "T1020",
			ValidModifiers:        []string{"U1"},
			EffectiveStart:        start,
			RequiresAuthorization: true,
		},
		{
			Payer:          "MEDICAID",
			Program:        "HHCS",
			ProcedureCode:  "S5125",
			ValidModifiers: []string{"U3", "TV"},
			EffectiveStart: start,
		},
		{
			Payer:                 "MEDICAID",
			Program:               "HHCS",
			ProcedureCode:         "S5126",
			ValidModifiers:        nil,
			EffectiveStart:        start,
			RequiresAuthorization: true,
		},
		{
			Payer:          "MCO-AMERIGROUP",
			Program:        "STAR+PLUS",
			ProcedureCode:  "T1019",
			ValidModifiers: []string{"U7"},
			EffectiveStart: start,
		},
		{
			Payer:          "MCO-SUPERIOR",
			Program:        "STAR+PLUS",
			ProcedureCode:  "G0156",
			ValidModifiers: []string{"U7", "TD"},
			EffectiveStart: start,
		},
	}, nil
}
