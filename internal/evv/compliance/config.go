package compliance

import (
	"time"

	"github.com/KaripeHS/serenity-sub009/internal/evv/authz"
)

// Config tunes the pre-submission rule engine. The warning thresholds are
// configurable per deployment but default to observed production policy.
type Config struct {
	// GeofenceRadiusMiles is the allowed distance between a clock event and
	// the client's address.
	GeofenceRadiusMiles float64
	// GeofenceWarnFraction emits a warning when a clock event falls beyond
	// this fraction of the radius but still inside it.
	GeofenceWarnFraction float64
	// MaxVisitDuration marks visits as "likely forgot to clock out".
	MaxVisitDuration time.Duration
	// ShortVisitThreshold warns on suspiciously short visits.
	ShortVisitThreshold time.Duration
	// Authorization is passed through to the authorization category.
	Authorization authz.Config
}

// DefaultConfig mirrors observed production policy.
func DefaultConfig() Config {
	return Config{
		GeofenceRadiusMiles:  0.25,
		GeofenceWarnFraction: 0.8,
		MaxVisitDuration:     24 * time.Hour,
		ShortVisitThreshold:  15 * time.Minute,
		Authorization:        authz.DefaultConfig(),
	}
}

func (c Config) normalize() Config {
	if c.GeofenceRadiusMiles <= 0 {
		c.GeofenceRadiusMiles = 0.25
	}
	if c.GeofenceWarnFraction <= 0 || c.GeofenceWarnFraction > 1 {
		c.GeofenceWarnFraction = 0.8
	}
	if c.MaxVisitDuration <= 0 {
		c.MaxVisitDuration = 24 * time.Hour
	}
	if c.ShortVisitThreshold <= 0 {
		c.ShortVisitThreshold = 15 * time.Minute
	}
	return c
}
