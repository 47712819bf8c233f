// Package timeutil implements the interval rounding and unit math used by
// both the payload builders and payroll export.
package timeutil

import (
	"time"

	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// RoundingMode selects the direction interval rounding moves.
type RoundingMode string

const (
	RoundNearest RoundingMode = "nearest"
	RoundUp      RoundingMode = "up"
	RoundDown    RoundingMode = "down"
)

// Supported bucket sizes. State programs round to six-minute (tenth-hour)
// or fifteen-minute (quarter-hour) increments.
const (
	BucketSixMinute   = 6 * time.Minute
	BucketQuarterHour = 15 * time.Minute

	minutesPerUnit = 15
)

var validBuckets = map[time.Duration]bool{
	BucketSixMinute:   true,
	BucketQuarterHour: true,
}

// RoundTime rounds ts to the given bucket with seconds zeroed. A timestamp
// already on a bucket boundary is returned unchanged. Rounding is done on
// the wall clock so buckets align to the hour in every timezone, and hour
// or day rollover falls out of time package arithmetic.
func RoundTime(ts time.Time, bucket time.Duration, mode RoundingMode) (time.Time, error) {
	if !validBuckets[bucket] {
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported rounding bucket %s", bucket)
	}

	bucketMinutes := int(bucket / time.Minute)
	remainder := ts.Minute() % bucketMinutes
	floor := time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute()-remainder, 0, 0, ts.Location())
	if remainder == 0 && ts.Second() == 0 && ts.Nanosecond() == 0 {
		return floor, nil
	}

	switch mode {
	case RoundDown:
		return floor, nil
	case RoundUp:
		return floor.Add(bucket), nil
	case RoundNearest:
		if remainder*2 >= bucketMinutes {
			return floor.Add(bucket), nil
		}
		return floor, nil
	default:
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported rounding mode %q", mode)
	}
}

// RoundSevenMinute applies the payroll seven-minute rule: 1-7 minutes past
// a quarter hour round down, 8-14 round up. Equivalent to nearest-quarter
// rounding but kept as its own entry point because payroll policy cites it
// by name.
func RoundSevenMinute(ts time.Time) time.Time {
	rounded, _ := RoundTime(ts, BucketQuarterHour, RoundNearest)
	return rounded
}

// BillableUnits converts a visit duration to billable quarter-hour units,
// truncating partial units. Fails fast on negative durations so a swapped
// clock pair cannot produce a billable visit.
func BillableUnits(d time.Duration) (int, error) {
	if d < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "visit duration is negative")
	}
	return int(d.Minutes()) / minutesPerUnit, nil
}

// BillableUnitsRounded computes units from a duration rounded to the given
// bucket first, for programs that bill on rounded time.
func BillableUnitsRounded(d time.Duration, bucket time.Duration, mode RoundingMode) (int, error) {
	if d < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "visit duration is negative")
	}
	base := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	end, err := RoundTime(base.Add(d), bucket, mode)
	if err != nil {
		return 0, err
	}
	return BillableUnits(end.Sub(base))
}
