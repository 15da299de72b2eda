package domain

import (
	"fmt"
	"math"
)

// ValidateThreshold rejects thresholds that cannot be compared against
// rainfall totals.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	return nil
}

// CheckThreshold flags every total that strictly exceeds threshold and
// reports whether any entity did. It also returns the largest total and the
// entity holding it. totals is modified in place.
func CheckThreshold(totals []DailyTotal, threshold float64) (bool, DailyTotal, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return false, DailyTotal{}, err
	}

	triggered := false
	var peak DailyTotal
	peak.TotalMM = math.Inf(-1)
	for k := range totals {
		t := &totals[k]
		t.Trigger = t.TotalMM > threshold
		if t.Trigger {
			triggered = true
		}
		if t.TotalMM > peak.TotalMM {
			peak = *t
		}
	}
	if len(totals) == 0 || math.IsInf(peak.TotalMM, -1) {
		peak = DailyTotal{TotalMM: math.NaN()}
	}
	return triggered, peak, nil
}

// EvaluateTriggers runs the one-day check on daily and the multi-day check on
// the first days windows of every entity. The two checks are independent.
func EvaluateTriggers(level string, daily []DailyTotal, oneDay, multiDay float64, days int) ([]TriggerStatus, []DailyTotal, error) {
	oneHit, onePeak, err := CheckThreshold(daily, oneDay)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s threshold: %w", level, WindowOneDay, err)
	}

	multi, err := MultiDayTotals(daily, days)
	if err != nil {
		return nil, nil, err
	}
	multiHit, multiPeak, err := CheckThreshold(multi, multiDay)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s threshold: %w", level, WindowThreeDay, err)
	}

	now := clock.Now()
	return []TriggerStatus{
		{Level: level, Window: WindowOneDay, Threshold: oneDay, Triggered: oneHit, MaxTotal: onePeak.TotalMM, Entity: onePeak.Entity, CheckedAt: now},
		{Level: level, Window: WindowThreeDay, Threshold: multiDay, Triggered: multiHit, MaxTotal: multiPeak.TotalMM, Entity: multiPeak.Entity, CheckedAt: now},
	}, multi, nil
}
