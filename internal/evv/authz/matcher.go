// Package authz checks a visit against a payer authorization: service code
// match, date window, and remaining-unit consumption.
package authz

import (
	"fmt"
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

// Mode controls how over-consumption is reported.
type Mode string

const (
	// ModeBlock makes exceeding remaining units a hard error.
	ModeBlock Mode = "block"
	// ModeWarn downgrades over-consumption to a warning so billing can
	// reconcile after the fact.
	ModeWarn Mode = "warn"
)

// Config tunes the matcher. Zero value gets defaults via Normalize.
type Config struct {
	Mode Mode
	// RequireServiceCodeMatch errors when the visit's service code differs
	// from the authorization's.
	RequireServiceCodeMatch bool
	// ApproachingLimitFraction emits a warning once remaining units drop
	// below this fraction of the authorized total, irrespective of Mode.
	ApproachingLimitFraction float64
}

// DefaultConfig mirrors observed production policy.
func DefaultConfig() Config {
	return Config{
		Mode:                     ModeBlock,
		RequireServiceCodeMatch:  true,
		ApproachingLimitFraction: 0.2,
	}
}

func (c Config) normalize() Config {
	if c.Mode == "" {
		c.Mode = ModeBlock
	}
	if c.ApproachingLimitFraction <= 0 {
		c.ApproachingLimitFraction = 0.2
	}
	return c
}

// Matcher validates visits against authorizations.
type Matcher struct {
	cfg Config
}

func NewMatcher(cfg Config) *Matcher {
	return &Matcher{cfg: cfg.normalize()}
}

// Request carries the visit-side inputs.
type Request struct {
	ServiceCode    string
	ServiceDate    time.Time
	RequestedUnits int
}

// Validate checks the request against auth. Callers skip the call entirely
// when no authorization context exists for the visit.
func (m *Matcher) Validate(req Request, auth domain.Authorization) domain.ValidationResult {
	var result domain.ValidationResult

	if m.cfg.RequireServiceCodeMatch && req.ServiceCode != auth.ServiceCode {
		result.AddError("AUTH_SERVICE_CODE_MISMATCH",
			fmt.Sprintf("visit service code %s does not match authorization %s (%s)", req.ServiceCode, auth.Number, auth.ServiceCode),
			"serviceCode")
	}

	if req.ServiceDate.Before(auth.StartDate) || req.ServiceDate.After(auth.EndDate) {
		result.AddError("AUTH_OUTSIDE_WINDOW",
			fmt.Sprintf("service date %s is outside authorization window %s to %s",
				req.ServiceDate.Format("2006-01-02"), auth.StartDate.Format("2006-01-02"), auth.EndDate.Format("2006-01-02")),
			"serviceDate")
	}

	remaining := auth.RemainingUnits()
	if req.RequestedUnits > remaining {
		msg := fmt.Sprintf("requested %d units but authorization %s has %d remaining", req.RequestedUnits, auth.Number, remaining)
		if m.cfg.Mode == ModeBlock {
			result.AddError("AUTH_UNITS_EXCEEDED", msg, "units")
		} else {
			result.AddWarning("AUTH_UNITS_EXCEEDED", msg, "units")
		}
	}

	if auth.AuthorizedUnits > 0 {
		threshold := float64(auth.AuthorizedUnits) * m.cfg.ApproachingLimitFraction
		if float64(remaining-req.RequestedUnits) < threshold {
			result.AddWarning("AUTH_APPROACHING_LIMIT",
				fmt.Sprintf("authorization %s is approaching its limit: %d of %d units remain after this visit",
					auth.Number, remaining-req.RequestedUnits, auth.AuthorizedUnits),
				"units")
		}
	}

	return result
}
