// Package shortpulse rewrites pulse programs so that no instruction is shorter
// than the minimum instruction duration of the pulse generator.
//
// The compiler is a pure function of its input: it returns a new program, or
// an error and no program. A Compiler holds only its settings and hooks, so
// one Compiler may be used from many goroutines.
package shortpulse

import (
	"errors"
	"fmt"
	"math"

	"github.com/sarchlab/pulsec/hooking"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/timing"
)

// ErrUnsatisfiableShortPulse is returned when a run of short instructions
// cannot be repaired without making another instruction too short.
var ErrUnsatisfiableShortPulse = errors.New("shortpulse: unsatisfiable short pulse")

// Hook positions raised by the compiler.
var (
	// HookPosCompileStart fires with the input program as item.
	HookPosCompileStart = &hooking.HookPos{Name: "CompileStart"}

	// HookPosPulseFolded fires with the folded instruction as item and the
	// index it was found at as detail.
	HookPosPulseFolded = &hooking.HookPos{Name: "PulseFolded"}

	// HookPosRunResolved fires with a resolved Run as item.
	HookPosRunResolved = &hooking.HookPos{Name: "RunResolved"}

	// HookPosCompileEnd fires with the compiled program as item and the
	// Report as detail.
	HookPosCompileEnd = &hooking.HookPos{Name: "CompileEnd"}
)

// Report describes what a compilation changed.
type Report struct {
	// Runs lists the short runs and the donor each borrowed from.
	Runs []Run

	// Folded counts short pulses moved into the short pulse field.
	Folded int

	// MaxEdgeShift bounds how far any output edge moved.
	MaxEdgeShift timing.Ns
}

// Compiler repairs short instructions.
type Compiler struct {
	*hooking.HookableBase

	clock        timing.Clock
	width        uint
	strategy     Strategy
	fieldShift   uint
	alignToTicks bool
}

// Clock returns the clock the compiler targets.
func (c *Compiler) Clock() timing.Clock {
	return c.clock
}

// Width returns the number of flag bits of an instruction.
func (c *Compiler) Width() uint {
	return c.width
}

// Strategy returns how the compiler repairs short instructions.
func (c *Compiler) Strategy() Strategy {
	return c.strategy
}

// FieldShift returns the position of the short pulse field.
func (c *Compiler) FieldShift() uint {
	return c.fieldShift
}

// Compile returns a program equivalent to p in which every instruction lasts
// at least the minimum instruction duration.
func (c *Compiler) Compile(p program.Program) (program.Program, error) {
	out, _, err := c.CompileWithReport(p)
	return out, err
}

// CompileWithReport is Compile that also describes the changes it made.
func (c *Compiler) CompileWithReport(
	p program.Program,
) (program.Program, Report, error) {
	c.InvokeHook(hooking.HookCtx{Domain: c, Pos: HookPosCompileStart, Item: p})

	report := Report{}

	if err := program.Validate(p, c.width); err != nil {
		return nil, report, err
	}

	if len(p) == 0 {
		return program.Program{}, report, nil
	}

	work := p
	if c.alignToTicks {
		work = program.AlignToClock(work, c.clock)
		report.MaxEdgeShift = c.clock.Period / 2
	}
	work = c.merge(work)

	if c.strategy == StrategyShortPulseField {
		var err error
		work, err = c.foldIntoField(work, &report)
		if err != nil {
			return nil, report, err
		}
	}

	work, err := c.borrow(work, &report)
	if err != nil {
		return nil, report, err
	}

	out := c.merge(work)
	if c.strategy == StrategyShortPulseField {
		out = c.switchFieldOn(out)
	}

	if err := c.verify(p, out); err != nil {
		return nil, report, err
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosCompileEnd,
		Item:   out,
		Detail: report,
	})

	return out, report, nil
}

// HasShortPulses reports whether p needs repairing on this compiler's clock.
func (c *Compiler) HasShortPulses(p program.Program) bool {
	return program.HasShortPulses(p, c.clock.MinInstructionDuration())
}

func (c *Compiler) merge(p program.Program) program.Program {
	if c.strategy != StrategyShortPulseField {
		return program.MergeAdjacent(p)
	}

	return program.MergeAdjacentFunc(p, func(a, _ program.Instruction) bool {
		return program.FieldPeriods(a.Flags, c.fieldShift) == 0
	})
}

// switchFieldOn sets the short pulse field of every instruction that does not
// carry a short pulse to FieldOn, as a zero field turns the outputs off.
func (c *Compiler) switchFieldOn(p program.Program) program.Program {
	out := p.Clone()
	for i := range out {
		if program.FieldValue(out[i].Flags, c.fieldShift) == program.FieldOff {
			out[i].Flags = program.WithFieldOn(out[i].Flags, c.fieldShift)
		}
	}

	return out
}

// borrow stretches every short run to the minimum duration. The extra time
// comes from the preceding instruction; the following instruction is only
// used when the preceding one cannot spare all of it.
func (c *Compiler) borrow(
	p program.Program,
	report *Report,
) (program.Program, error) {
	minDuration := c.clock.MinInstructionDuration()

	runs := FindRuns(p, minDuration)
	if len(runs) == 0 {
		return p, nil
	}

	out := p.Clone()
	for _, r := range runs {
		fromPrev, fromNext, err := lend(out, r, minDuration)
		if err != nil {
			return nil, err
		}

		r.FromPreceding, r.FromFollowing = fromPrev, fromNext
		if fromPrev > 0 {
			out[r.Start-1].Duration -= fromPrev
		}
		if fromNext > 0 {
			out[r.End].Duration -= fromNext
		}
		for k := r.Start; k < r.End; k++ {
			out[k].Duration = minDuration
		}

		report.Runs = append(report.Runs, r)
		if r.Deficit > report.MaxEdgeShift {
			report.MaxEdgeShift = r.Deficit
		}

		c.InvokeHook(hooking.HookCtx{Domain: c, Pos: HookPosRunResolved, Item: r})
	}

	return out, nil
}

// lend splits the deficit of r between its neighbours. Neither neighbour is
// left shorter than minDuration.
func lend(
	p program.Program,
	r Run,
	minDuration timing.Ns,
) (fromPrev, fromNext timing.Ns, err error) {
	surplus := func(i int) timing.Ns {
		if i < 0 || i >= len(p) || p[i].Duration < minDuration {
			return 0
		}

		return p[i].Duration - minDuration
	}

	prev, next := surplus(r.Start-1), surplus(r.End)

	switch {
	case !timing.ShorterThan(prev, r.Deficit):
		return r.Deficit, 0, nil
	case !timing.ShorterThan(next, r.Deficit):
		return 0, r.Deficit, nil
	case !timing.ShorterThan(prev+next, r.Deficit):
		return prev, r.Deficit - prev, nil
	}

	if r.Start == 0 && r.End == len(p) {
		return 0, 0, fmt.Errorf(
			"%w: instructions [%d, %d) need %gns and have no neighbour",
			ErrUnsatisfiableShortPulse, r.Start, r.End, float64(r.Deficit))
	}

	return 0, 0, fmt.Errorf(
		"%w: instructions [%d, %d) need %gns, neighbours can spare %gns",
		ErrUnsatisfiableShortPulse, r.Start, r.End,
		float64(r.Deficit), float64(prev+next))
}

// foldIntoField moves each short pulse that is followed by an all-low
// instruction into the short pulse field of a combined instruction.
func (c *Compiler) foldIntoField(
	p program.Program,
	report *Report,
) (program.Program, error) {
	mask := program.FieldMask(c.fieldShift)
	for i, inst := range p {
		if inst.Flags&mask != 0 {
			return nil, fmt.Errorf(
				"%w: instruction %d uses the short pulse field bits %#x",
				program.ErrFlagsOutOfRange, i, uint64(mask))
		}
	}

	minDuration := c.clock.MinInstructionDuration()
	out := make(program.Program, 0, len(p))

	for i := 0; i < len(p); i++ {
		inst := p[i]
		n, ok := c.foldable(p, i, minDuration)
		if !ok {
			out = append(out, inst)
			continue
		}

		folded := program.Cont(
			program.WithFieldPeriods(inst.Flags, c.fieldShift, n),
			inst.Duration+p[i+1].Duration,
		)
		out = append(out, folded)
		report.Folded++

		shift := math.Abs(float64(timing.Ns(n)*c.clock.Period - inst.Duration))
		if timing.Ns(shift) > report.MaxEdgeShift {
			report.MaxEdgeShift = timing.Ns(shift)
		}

		c.InvokeHook(hooking.HookCtx{
			Domain: c,
			Pos:    HookPosPulseFolded,
			Item:   folded,
			Detail: i,
		})

		i++
	}

	return out, nil
}

func (c *Compiler) foldable(
	p program.Program,
	i int,
	minDuration timing.Ns,
) (int, bool) {
	if i+1 >= len(p) || !timing.ShorterThan(p[i].Duration, minDuration) {
		return 0, false
	}

	if p[i+1].Flags != 0 {
		return 0, false
	}

	if timing.ShorterThan(p[i].Duration+p[i+1].Duration, minDuration) {
		return 0, false
	}

	n := int(math.Round(c.clock.Cycles(p[i].Duration)))
	if n < 1 {
		n = 1
	}

	if n > program.MaxFieldPeriods || n > c.clock.MinMultiple {
		return 0, false
	}

	return n, true
}

func (c *Compiler) verify(in, out program.Program) error {
	minDuration := c.clock.MinInstructionDuration()
	for i, inst := range out {
		if timing.ShorterThan(inst.Duration, minDuration) {
			return fmt.Errorf("%w: compiled instruction %d lasts %gns",
				ErrUnsatisfiableShortPulse, i, float64(inst.Duration))
		}
	}

	before := program.TotalDuration(in)
	after := program.TotalDuration(out)
	if !timing.Close(before, after, c.clock.Tolerance()) {
		return fmt.Errorf(
			"shortpulse: total duration changed from %gns to %gns",
			float64(before), float64(after))
	}

	return nil
}

var _ hooking.Hookable = (*Compiler)(nil)
