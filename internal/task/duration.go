package task

import (
	"math"
	"time"

	"github.com/Iron-Ham/tempo/internal/errors"
)

// CanonicalHours returns the duration a task contributes to effort-based
// calculations: the actual duration once completed (falling back to the
// estimate), otherwise the estimate.
//
// A non-completed task without a positive estimate is a MISSING_DURATION
// error. A completed task with no recorded duration contributes zero.
func (t *Task) CanonicalHours() (float64, error) {
	if t.IsCompleted() {
		if h, ok := usableHours(t.ActualDurationHour); ok {
			return h, nil
		}
		if h, ok := usableHours(t.EstimateDurationHour); ok {
			return h, nil
		}
		return 0, nil
	}
	return t.EstimateHours()
}

// EstimateHours returns the positive estimate or a MISSING_DURATION error.
// NaN and infinite estimates count as missing.
func (t *Task) EstimateHours() (float64, error) {
	h, ok := usableHours(t.EstimateDurationHour)
	if !ok {
		return 0, errors.MissingDuration(t.ID)
	}
	return h, nil
}

func usableHours(h *float64) (float64, bool) {
	if h == nil || !(*h > 0) || math.IsInf(*h, 1) {
		return 0, false
	}
	return *h, true
}

// CanonicalDuration is CanonicalHours converted to a time.Duration.
func (t *Task) CanonicalDuration() (time.Duration, error) {
	h, err := t.CanonicalHours()
	if err != nil {
		return 0, err
	}
	return HoursToDuration(h), nil
}

// HoursToDuration converts fractional hours into a time.Duration,
// saturating at the largest representable duration.
func HoursToDuration(hours float64) time.Duration {
	ns := hours * float64(time.Hour)
	switch {
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return time.Duration(ns)
}

// Hours returns a pointer to h, for populating optional duration fields.
func Hours(h float64) *float64 {
	return &h
}
