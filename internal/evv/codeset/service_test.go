package codeset_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaripeHS/serenity-sub009/internal/evv/codeset"
	"github.com/KaripeHS/serenity-sub009/internal/evv/codeset/loader/seed"
)

var serviceDate = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func newValidator(t *testing.T) *codeset.Validator {
	t.Helper()
	v, err := codeset.NewValidator(seed.New())
	require.NoError(t, err)
	return v
}

func TestValidate_KnownCombinationPasses(t *testing.T) {
	v := newValidator(t)
	result, err := v.Validate(context.Background(), "MEDICAID", "PCS", "T1019", []string{"U1"}, serviceDate)
	require.NoError(t, err)
	assert.True(t, result.IsValid())
	assert.Empty(t, result.Errors)
}

func TestValidate_NormalizesCaseAndWhitespace(t *testing.T) {
	v := newValidator(t)
	result, err := v.Validate(context.Background(), " medicaid ", "pcs", " t1019", []string{" u1 "}, serviceDate)
	require.NoError(t, err)
	assert.True(t, result.IsValid())
}

func TestValidate_UnknownCombinationAlwaysRejected(t *testing.T) {
	v := newValidator(t)
	result, err := v.Validate(context.Background(), "MEDICAID", "PCS", "X9999", nil, serviceDate)
	require.NoError(t, err)
	require.False(t, result.IsValid(), "cache miss must never pass silently")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "CODESET_UNKNOWN_COMBINATION", result.Errors[0].Code)
	// Suggestion list names other procedures for the same payer/program.
	assert.Contains(t, result.Errors[0].Message, "T1019")
	assert.Contains(t, result.Errors[0].Message, "T1020")
}

func TestValidate_InvalidModifierListsValidSet(t *testing.T) {
	v := newValidator(t)
	result, err := v.Validate(context.Background(), "MEDICAID", "PCS", "T1019", []string{"ZZ"}, serviceDate)
	require.NoError(t, err)
	require.False(t, result.IsValid())
	assert.Equal(t, "CODESET_INVALID_MODIFIER", result.Errors[0].Code)
	assert.Contains(t, result.Errors[0].Message, "U1, U2, TT")
}

func TestValidate_MissingModifiersIsWarningOnly(t *testing.T) {
	v := newValidator(t)
	result, err := v.Validate(context.Background(), "MEDICAID", "PCS", "T1019", nil, serviceDate)
	require.NoError(t, err)
	assert.True(t, result.IsValid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "CODESET_NO_MODIFIERS", result.Warnings[0].Code)
}

func TestValidate_OutsideEffectiveWindow(t *testing.T) {
	v := newValidator(t)
	early := time.Date(2022, time.June, 1, 0, 0, 0, 0, time.UTC)
	result, err := v.Validate(context.Background(), "MEDICAID", "PCS", "T1019", []string{"U1"}, early)
	require.NoError(t, err)
	require.False(t, result.IsValid())
	assert.Equal(t, "CODESET_OUTSIDE_EFFECTIVE_WINDOW", result.Errors[0].Code)
}

func TestValidate_RequiresAuthorizationWarns(t *testing.T) {
	v := newValidator(t)
	result, err := v.Validate(context.Background(), "MEDICAID", "PCS", "T1020", []string{"U1"}, serviceDate)
	require.NoError(t, err)
	assert.True(t, result.IsValid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "CODESET_AUTHORIZATION_REQUIRED", result.Warnings[0].Code)
}

func TestValidator_LoadsOnceUntilCleared(t *testing.T) {
	loads := 0
	loader := codeset.LoaderFunc(func(ctx context.Context) ([]codeset.Entry, error) {
		loads++
		return seed.New().LoadAll(ctx)
	})
	v, err := codeset.NewValidator(loader)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := v.Validate(ctx, "MEDICAID", "PCS", "T1019", nil, serviceDate)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, loads, "catalog loads lazily, once")

	v.ClearCache()
	_, err = v.Validate(ctx, "MEDICAID", "PCS", "T1019", nil, serviceDate)
	require.NoError(t, err)
	assert.Equal(t, 2, loads, "clear forces a reload")
}

func TestValidator_LoaderErrorSurfaces(t *testing.T) {
	v, err := codeset.NewValidator(codeset.LoaderFunc(func(context.Context) ([]codeset.Entry, error) {
		return nil, errors.New("store down")
	}))
	require.NoError(t, err)
	_, err = v.Validate(context.Background(), "MEDICAID", "PCS", "T1019", nil, serviceDate)
	assert.Error(t, err)
}

func TestFallbackLoader(t *testing.T) {
	ctx := context.Background()

	t.Run("primary wins when healthy", func(t *testing.T) {
		primary := codeset.LoaderFunc(func(context.Context) ([]codeset.Entry, error) {
			return []codeset.Entry{{Payer: "P", Program: "G", ProcedureCode: "C1"}}, nil
		})
		l := codeset.NewFallbackLoader(primary, seed.New(), nil)
		entries, err := l.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "C1", entries[0].ProcedureCode)
	})

	t.Run("falls back on error", func(t *testing.T) {
		primary := codeset.LoaderFunc(func(context.Context) ([]codeset.Entry, error) {
			return nil, errors.New("connection refused")
		})
		l := codeset.NewFallbackLoader(primary, seed.New(), nil)
		entries, err := l.LoadAll(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	})

	t.Run("falls back on empty catalog", func(t *testing.T) {
		primary := codeset.LoaderFunc(func(context.Context) ([]codeset.Entry, error) {
			return nil, nil
		})
		l := codeset.NewFallbackLoader(primary, seed.New(), nil)
		entries, err := l.LoadAll(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	})
}
