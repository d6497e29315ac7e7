// Package timing describes the clock of a pulse generator: its frequency, its
// tick period and the shortest instruction it accepts.
package timing

import (
	"log"
	"math"
)

// Ns is a duration or a point in time, in nanoseconds.
type Ns float64

// Resolution is the smallest difference between two Ns values that is treated
// as meaningful. Comparisons against the minimum instruction duration use it
// to absorb floating point noise from summing durations.
const Resolution Ns = 1e-9

// Freq defines the type of frequency
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Period returns the time between two consecutive ticks
func (f Freq) Period() Ns {
	if f <= 0 || math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
		log.Panic("frequency must be positive and finite")
	}

	return Ns(1e9 / float64(f))
}

// FreqOf returns the frequency of a clock ticking every period.
func FreqOf(period Ns) Freq {
	if period <= 0 {
		log.Panic("period must be positive")
	}

	return Freq(1e9 / float64(period))
}

// ShorterThan reports whether d is shorter than limit by more than Resolution.
func ShorterThan(d, limit Ns) bool {
	return d < limit-Resolution
}

// Close reports whether a and b are within tol of each other, with Resolution
// added as slack.
func Close(a, b, tol Ns) bool {
	return math.Abs(float64(a-b)) <= float64(tol+Resolution)
}
