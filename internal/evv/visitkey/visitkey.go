// Package visitkey builds the deterministic identity key used for visit
// duplicate detection and idempotent re-submission. Two visit records are
// the same visit iff their keys are equal, regardless of clock times.
package visitkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// Key format: CLIENTID_CAREGIVERID_YYYYMMDD_SERVICECODE, with an optional
// _vN suffix for corrections (N >= 1).
const (
	separator = "_"
	maxKeyLen = 255
)

var (
	idSanitizer  = regexp.MustCompile(`[^A-Z0-9-]`)
	datePattern  = regexp.MustCompile(`^\d{8}$`)
	versionMatch = regexp.MustCompile(`^v([1-9]\d*)$`)
)

// Components are the four sanitized parts a visit key is built from.
type Components struct {
	ClientID    string
	CaregiverID string
	ServiceDate time.Time
	ServiceCode string
}

// Generate builds the visit key from its components. Identifiers are
// upper-cased with everything but alphanumerics and hyphens stripped; the
// date is normalized to its 8-digit form. Empty components and keys over
// 255 characters are rejected.
func Generate(c Components) (string, error) {
	clientID := sanitizeID(c.ClientID)
	caregiverID := sanitizeID(c.CaregiverID)
	serviceCode := strings.ToUpper(strings.TrimSpace(c.ServiceCode))

	switch {
	case clientID == "":
		return "", pkgerrors.New(pkgerrors.CodeValidation, "visit key: client id is empty")
	case caregiverID == "":
		return "", pkgerrors.New(pkgerrors.CodeValidation, "visit key: caregiver id is empty")
	case c.ServiceDate.IsZero():
		return "", pkgerrors.New(pkgerrors.CodeValidation, "visit key: service date is zero")
	case serviceCode == "":
		return "", pkgerrors.New(pkgerrors.CodeValidation, "visit key: service code is empty")
	}

	key := strings.Join([]string{
		clientID,
		caregiverID,
		c.ServiceDate.Format("20060102"),
		serviceCode,
	}, separator)
	if len(key) > maxKeyLen {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "visit key exceeds %d characters", maxKeyLen)
	}
	return key, nil
}

// WithVersion appends the correction suffix _vN to a base key. N must be
// positive; version zero is the original key with no suffix.
func WithVersion(key string, version int) (string, error) {
	if version < 1 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "visit key version must be >= 1")
	}
	versioned := fmt.Sprintf("%s%sv%d", key, separator, version)
	if len(versioned) > maxKeyLen {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "visit key exceeds %d characters", maxKeyLen)
	}
	return versioned, nil
}

// Parse is the exact inverse of Generate. It accepts both original and
// versioned keys and rejects malformed dates.
func Parse(key string) (Components, int, error) {
	parts := strings.Split(key, separator)
	version := 0
	if len(parts) == 5 {
		m := versionMatch.FindStringSubmatch(parts[4])
		if m == nil {
			return Components{}, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "visit key: bad version suffix %q", parts[4])
		}
		version, _ = strconv.Atoi(m[1])
		parts = parts[:4]
	}
	if len(parts) != 4 {
		return Components{}, 0, pkgerrors.New(pkgerrors.CodeValidation, "visit key: expected 4 components")
	}
	for i, p := range parts {
		if p == "" {
			return Components{}, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "visit key: component %d is empty", i+1)
		}
	}
	if !datePattern.MatchString(parts[2]) {
		return Components{}, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "visit key: malformed date %q", parts[2])
	}
	serviceDate, err := time.Parse("20060102", parts[2])
	if err != nil {
		return Components{}, 0, pkgerrors.Wrap(err, pkgerrors.CodeValidation, "visit key: invalid date")
	}
	return Components{
		ClientID:    parts[0],
		CaregiverID: parts[1],
		ServiceDate: serviceDate,
		ServiceCode: parts[3],
	}, version, nil
}

// Original strips any correction suffix, recovering the base key.
func Original(key string) string {
	parts := strings.Split(key, separator)
	if len(parts) == 5 && versionMatch.MatchString(parts[4]) {
		return strings.Join(parts[:4], separator)
	}
	return key
}

// Hash returns a fixed-length deterministic digest of the key for compact
// duplicate indices.
func Hash(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

func sanitizeID(id string) string {
	return idSanitizer.ReplaceAllString(strings.ToUpper(strings.TrimSpace(id)), "")
}
