package timeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/sarchlab/pulsec/timing"
)

// ErrTimelineMismatch is returned when two timelines do not describe the same
// waveform within the tolerance.
var ErrTimelineMismatch = errors.New("timeline: mismatch")

// Equivalent checks that a and b have the same channels, the same initial
// levels and the same number of edges per channel, and that no edge or end
// time differs by more than tol.
func Equivalent(a, b *Timeline, tol timing.Ns) error {
	if len(a.channels) != len(b.channels) {
		return fmt.Errorf("%w: %d channels against %d",
			ErrTimelineMismatch, len(a.channels), len(b.channels))
	}

	for i, c := range a.channels {
		if b.channels[i] != c {
			return fmt.Errorf("%w: channel %s against %s",
				ErrTimelineMismatch, c, b.channels[i])
		}

		if err := sameChannel(a, b, c.String(), tol); err != nil {
			return err
		}
	}

	if !timing.Close(a.End(), b.End(), tol) {
		return fmt.Errorf("%w: end %gns against %gns",
			ErrTimelineMismatch, float64(a.End()), float64(b.End()))
	}

	return nil
}

func sameChannel(a, b *Timeline, name string, tol timing.Ns) error {
	if la, lb := a.InitialLevel(name), b.InitialLevel(name); la != lb {
		return fmt.Errorf("%w: %s starts %s against %s",
			ErrTimelineMismatch, name, la, lb)
	}

	ea, eb := a.Edges(name), b.Edges(name)
	if len(ea) != len(eb) {
		return fmt.Errorf("%w: %s has %d edges against %d",
			ErrTimelineMismatch, name, len(ea), len(eb))
	}

	for k := range ea {
		if !timing.Close(ea[k], eb[k], tol) {
			return fmt.Errorf("%w: %s edge %d at %gns against %gns",
				ErrTimelineMismatch, name, k, float64(ea[k]), float64(eb[k]))
		}
	}

	return nil
}

// MaxEdgeShift returns the largest distance between corresponding edges of
// a and b, or +Inf when their edges do not correspond.
func MaxEdgeShift(a, b *Timeline) timing.Ns {
	if Equivalent(a, b, timing.Ns(math.Inf(1))) != nil {
		return timing.Ns(math.Inf(1))
	}

	var worst timing.Ns
	for _, c := range a.channels {
		ea, eb := a.Edges(c.String()), b.Edges(c.String())
		for k := range ea {
			d := timing.Ns(math.Abs(float64(ea[k] - eb[k])))
			if d > worst {
				worst = d
			}
		}
	}

	return worst
}
