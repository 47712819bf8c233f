package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KaripeHS/serenity-sub009/internal/domain"
)

func testAuth() domain.Authorization {
	return domain.Authorization{
		Number:          "AUTH-100",
		ServiceCode:     "T1019",
		AuthorizedUnits: 100,
		UsedUnits:       50,
		StartDate:       time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

func testRequest() Request {
	return Request{
		ServiceCode:    "T1019",
		ServiceDate:    time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		RequestedUnits: 8,
	}
}

func TestValidate_CleanVisitPasses(t *testing.T) {
	result := NewMatcher(DefaultConfig()).Validate(testRequest(), testAuth())
	assert.True(t, result.IsValid())
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidate_ServiceCodeMismatch(t *testing.T) {
	req := testRequest()
	req.ServiceCode = "S5125"

	result := NewMatcher(DefaultConfig()).Validate(req, testAuth())
	assert.False(t, result.IsValid())
	assert.Equal(t, "AUTH_SERVICE_CODE_MISMATCH", result.Errors[0].Code)

	cfg := DefaultConfig()
	cfg.RequireServiceCodeMatch = false
	result = NewMatcher(cfg).Validate(req, testAuth())
	assert.True(t, result.IsValid(), "mismatch tolerated when match not required")
}

func TestValidate_OutsideWindow(t *testing.T) {
	req := testRequest()
	req.ServiceDate = time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	result := NewMatcher(DefaultConfig()).Validate(req, testAuth())
	assert.False(t, result.IsValid())
	assert.Equal(t, "AUTH_OUTSIDE_WINDOW", result.Errors[0].Code)
}

func TestValidate_UnitsExceeded_BlockVsWarn(t *testing.T) {
	req := testRequest()
	req.RequestedUnits = 60 // remaining is 50

	blocked := NewMatcher(DefaultConfig()).Validate(req, testAuth())
	assert.False(t, blocked.IsValid())
	assert.Equal(t, "AUTH_UNITS_EXCEEDED", blocked.Errors[0].Code)

	cfg := DefaultConfig()
	cfg.Mode = ModeWarn
	warned := NewMatcher(cfg).Validate(req, testAuth())
	assert.True(t, warned.IsValid(), "warn mode keeps the visit valid")
	codes := make([]string, 0, len(warned.Warnings))
	for _, w := range warned.Warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, "AUTH_UNITS_EXCEEDED")
}

func TestValidate_ApproachingLimitWarns(t *testing.T) {
	auth := testAuth()
	auth.UsedUnits = 75 // 25 remaining, threshold is 20

	req := testRequest()
	req.RequestedUnits = 10 // 15 remain after the visit

	result := NewMatcher(DefaultConfig()).Validate(req, auth)
	assert.True(t, result.IsValid())
	assert.Len(t, result.Warnings, 1)
	assert.Equal(t, "AUTH_APPROACHING_LIMIT", result.Warnings[0].Code)
}

func TestValidate_ThresholdIsConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApproachingLimitFraction = 0.5

	result := NewMatcher(cfg).Validate(testRequest(), testAuth())
	// 42 of 100 remain after the visit, below the 50-unit threshold.
	assert.Len(t, result.Warnings, 1)
	assert.Equal(t, "AUTH_APPROACHING_LIMIT", result.Warnings[0].Code)
}
