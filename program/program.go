// Package program holds the instruction model of a pulse generator: one
// instruction per output state, each held for a duration, and the rules that
// make a list of them well formed.
package program

import (
	"errors"
	"fmt"
	"math"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/timing"
)

var (
	// ErrFlagsOutOfRange is returned when an instruction sets a bit beyond the
	// channel width.
	ErrFlagsOutOfRange = errors.New("program: flags out of range")

	// ErrInvalidDuration is returned when a duration is not positive.
	ErrInvalidDuration = errors.New("program: invalid duration")

	// ErrUnsupportedOpcode is returned for any opcode other than Continue, or
	// for Continue with non-zero data.
	ErrUnsupportedOpcode = errors.New("program: unsupported opcode")
)

// Instruction is one step of a pulse program. The outputs are held at Flags
// for Duration, then Opcode decides what runs next.
type Instruction struct {
	Flags    flags.Flags
	Opcode   Opcode
	Data     int
	Duration timing.Ns
}

// Cont creates a Continue instruction.
func Cont(f flags.Flags, d timing.Ns) Instruction {
	return Instruction{Flags: f, Opcode: Continue, Duration: d}
}

func (i Instruction) String() string {
	return fmt.Sprintf("(%#b, %s, %d, %gns)", uint64(i.Flags), i.Opcode, i.Data,
		float64(i.Duration))
}

// Program is an ordered list of instructions. Functions in this package never
// modify the program they are given.
type Program []Instruction

// Clone returns a copy that shares no memory with p.
func (p Program) Clone() Program {
	if p == nil {
		return nil
	}

	out := make(Program, len(p))
	copy(out, p)

	return out
}

// TotalDuration returns the sum of all instruction durations.
func TotalDuration(p Program) timing.Ns {
	var total timing.Ns
	for _, inst := range p {
		total += inst.Duration
	}

	return total
}

// Edges returns the start time of every instruction followed by the end time
// of the program, so it has len(p)+1 entries.
func Edges(p Program) []timing.Ns {
	edges := make([]timing.Ns, len(p)+1)
	for i, inst := range p {
		edges[i+1] = edges[i] + inst.Duration
	}

	return edges
}

// Validate checks that every instruction fits in width bits, lasts a positive
// time and continues to the next instruction. The minimum duration is not
// checked here.
func Validate(p Program, width uint) error {
	for i, inst := range p {
		if !inst.Flags.Fits(width) {
			return fmt.Errorf("%w: instruction %d: flags %#x exceed width %d",
				ErrFlagsOutOfRange, i, uint64(inst.Flags), width)
		}

		d := float64(inst.Duration)
		if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: instruction %d: %g ns",
				ErrInvalidDuration, i, d)
		}

		if inst.Opcode != Continue {
			return fmt.Errorf("%w: instruction %d: %s",
				ErrUnsupportedOpcode, i, inst.Opcode)
		}

		if inst.Data != 0 {
			return fmt.Errorf("%w: instruction %d: %s with data %d",
				ErrUnsupportedOpcode, i, inst.Opcode, inst.Data)
		}
	}

	return nil
}

// MergeAdjacent coalesces consecutive Continue instructions with identical
// flags into one instruction lasting their summed duration. The output state
// over time does not change. Merging a merged program changes nothing.
func MergeAdjacent(p Program) Program {
	return MergeAdjacentFunc(p, nil)
}

// MergeAdjacentFunc is MergeAdjacent with an extra veto: two mergeable
// neighbours are only coalesced if allow returns true for them. A nil allow
// permits every merge.
func MergeAdjacentFunc(p Program, allow func(a, b Instruction) bool) Program {
	out := make(Program, 0, len(p))
	for _, inst := range p {
		last := len(out) - 1
		if last >= 0 && mergeable(out[last], inst) &&
			(allow == nil || allow(out[last], inst)) {
			out[last].Duration += inst.Duration
			continue
		}

		out = append(out, inst)
	}

	return out
}

func mergeable(a, b Instruction) bool {
	return a.Flags == b.Flags &&
		a.Opcode == Continue && b.Opcode == Continue &&
		a.Data == 0 && b.Data == 0
}

// HasShortPulses reports whether any instruction is shorter than minDuration.
func HasShortPulses(p Program, minDuration timing.Ns) bool {
	for _, inst := range p {
		if timing.ShorterThan(inst.Duration, minDuration) {
			return true
		}
	}

	return false
}

// AlignToClock moves every instruction edge to the nearest clock tick. The
// total duration changes by at most half a period. Instructions shorter than
// half a period may end up with zero duration.
func AlignToClock(p Program, c timing.Clock) Program {
	durations := make([]timing.Ns, len(p))
	for i, inst := range p {
		durations[i] = inst.Duration
	}

	aligned := c.AlignEdges(durations)

	out := p.Clone()
	for i := range out {
		out[i].Duration = aligned[i]
	}

	return out
}
