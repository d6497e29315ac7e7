package timing

import (
	"errors"
	"fmt"
	"math"
)

// DefaultMinMultiple is the number of clock periods the shortest instruction
// of the PulseBlaster family lasts.
const DefaultMinMultiple = 5

var (
	// ErrInvalidPeriod is returned when a clock period is not a positive,
	// finite number of nanoseconds.
	ErrInvalidPeriod = errors.New("timing: invalid clock period")

	// ErrInvalidMultiple is returned when the minimum instruction multiple is
	// not positive.
	ErrInvalidMultiple = errors.New("timing: invalid minimum instruction multiple")
)

// Clock is the time quantum of a pulse generator together with the minimum
// number of quanta that a single instruction must last.
type Clock struct {
	Period      Ns
	MinMultiple int
}

// NewClock validates and creates a clock.
func NewClock(period Ns, minMultiple int) (Clock, error) {
	p := float64(period)
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return Clock{}, fmt.Errorf("%w: %g ns", ErrInvalidPeriod, p)
	}

	if minMultiple <= 0 {
		return Clock{}, fmt.Errorf("%w: %d", ErrInvalidMultiple, minMultiple)
	}

	return Clock{Period: period, MinMultiple: minMultiple}, nil
}

// MustNewClock is NewClock that panics on invalid input.
func MustNewClock(period Ns, minMultiple int) Clock {
	c, err := NewClock(period, minMultiple)
	if err != nil {
		panic(err)
	}

	return c
}

// Freq returns the tick frequency of the clock.
func (c Clock) Freq() Freq {
	return FreqOf(c.Period)
}

// MinInstructionDuration returns the shortest duration an instruction may
// declare.
func (c Clock) MinInstructionDuration() Ns {
	return Ns(c.MinMultiple) * c.Period
}

// Tolerance is the edge timing error the clock allows, one period.
func (c Clock) Tolerance() Ns {
	return c.Period
}

// Cycles converts a time to the number of periods passed since time 0.
func (c Clock) Cycles(t Ns) float64 {
	return float64(t / c.Period)
}

// ThisTick returns the tick closest to t.
//
//	          Input
//	            (  ]
//	|----------|----------|----->
//	           |
//	           Output
func (c Clock) ThisTick(t Ns) Ns {
	if math.IsNaN(float64(t)) {
		panic("invalid time")
	}

	return Ns(c.tickIndex(t)) * c.Period
}

func (c Clock) tickIndex(t Ns) int64 {
	return int64(math.Round(float64(t / c.Period)))
}

// AlignEdges snaps the edges between consecutive durations to the nearest
// clock ticks and returns the resulting durations. Each edge moves by at most
// half a period, so the total moves by at most half a period as well. Very
// short durations can collapse to zero.
func (c Clock) AlignEdges(durations []Ns) []Ns {
	aligned := make([]Ns, len(durations))

	var elapsed Ns
	prevTick := int64(0)
	for i, d := range durations {
		elapsed += d
		tick := c.tickIndex(elapsed)
		if tick < prevTick {
			tick = prevTick
		}

		aligned[i] = Ns(tick-prevTick) * c.Period
		prevTick = tick
	}

	return aligned
}
