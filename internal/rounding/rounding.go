// Package rounding maps tracked time onto billable 15-minute blocks.
package rounding

import (
	"math"
	"time"
)

// Increment is the billing block size in minutes
const Increment = 15

// Round rounds raw minutes up to the next full increment.
// Zero stays zero and negative input is treated as zero.
func Round(rawMinutes int) int {
	if rawMinutes <= 0 {
		return 0
	}
	return (rawMinutes + Increment - 1) / Increment * Increment
}

// Minutes converts an elapsed duration to whole minutes, rounding to the
// nearest minute and clamping at zero.
func Minutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Minutes()))
}

// Hours converts billable minutes to fractional hours
func Hours(minutes int) float64 {
	return float64(minutes) / 60.0
}
