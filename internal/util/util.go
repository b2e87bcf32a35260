// Package util provides the fixed-point conversions shared across projections.
// Component stores keep amounts and health as integers scaled by a
// precision factor; render-facing events carry display units.
package util

import "math"

// DisplayUnits converts a fixed-point integer to whole display units.
// Integer division keeps large values exact.
func DisplayUnits(raw, precision uint64) uint64 {
	if precision == 0 {
		return raw
	}
	return raw / precision
}

// DivideByPrecision converts a fixed-point integer to a display-scale float.
// The whole part is divided in integer arithmetic before the remainder is
// added, so values beyond 2^53 keep their integral digits.
func DivideByPrecision(raw, precision uint64) float64 {
	if precision == 0 {
		return float64(raw)
	}
	whole := raw / precision
	frac := raw % precision
	return float64(whole) + float64(frac)/float64(precision)
}

// MultiplyByPrecision converts a display-scale amount to fixed point, rounding
// to the nearest representable unit. Negative inputs clamp to zero.
func MultiplyByPrecision(amount float64, precision uint64) uint64 {
	if amount <= 0 || math.IsNaN(amount) {
		return 0
	}
	return uint64(math.Round(amount * float64(precision)))
}

// BelowOneUnit reports whether a fixed-point value is less than one display unit.
func BelowOneUnit(raw, precision uint64) bool {
	return raw < precision
}
