package shortpulse

import (
	"fmt"

	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/timing"
)

// A Run is a maximal sequence of consecutive short instructions.
type Run struct {
	// Start and End delimit the run, [Start, End), as indexes into the merged
	// program the compiler works on.
	Start, End int

	// Deficit is the time needed to bring every instruction of the run up to
	// the minimum duration.
	Deficit timing.Ns

	// FromPreceding and FromFollowing are the time taken from the
	// instructions before and after the run. They add up to Deficit once the
	// run is resolved.
	FromPreceding, FromFollowing timing.Ns
}

// Len returns the number of instructions in the run.
func (r Run) Len() int {
	return r.End - r.Start
}

// Resolved reports whether the deficit has been borrowed.
func (r Run) Resolved() bool {
	return timing.Close(r.FromPreceding+r.FromFollowing, r.Deficit, 0)
}

func (r Run) String() string {
	return fmt.Sprintf("run [%d, %d) deficit %gns, %gns from preceding, "+
		"%gns from following",
		r.Start, r.End, float64(r.Deficit),
		float64(r.FromPreceding), float64(r.FromFollowing))
}

// FindRuns returns the maximal runs of instructions shorter than minDuration,
// in program order.
func FindRuns(p program.Program, minDuration timing.Ns) []Run {
	var runs []Run

	for i := 0; i < len(p); {
		if !timing.ShorterThan(p[i].Duration, minDuration) {
			i++
			continue
		}

		r := Run{Start: i}
		for i < len(p) && timing.ShorterThan(p[i].Duration, minDuration) {
			r.Deficit += minDuration - p[i].Duration
			i++
		}
		r.End = i

		runs = append(runs, r)
	}

	return runs
}
