// Package timeline replays a pulse program into per-channel step functions.
//
// A Timeline keeps its own copy of the program and computes samples on
// demand, so iterating a channel twice yields the same samples and a Timeline
// can be shared between goroutines.
package timeline

import (
	"iter"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/timing"
)

// Level is the output level of a channel.
type Level uint8

// The two output levels.
const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "high"
	}

	return "low"
}

// Sample is the level a channel switches to at Time.
type Sample struct {
	Time  timing.Ns `json:"time"`
	Level Level     `json:"level"`
}

// Option configures how instructions are interpreted.
type Option func(*options)

type options struct {
	fieldEnabled bool
	fieldShift   uint
	period       timing.Ns
}

// WithShortPulseField makes the reconstructor honour the short pulse field at
// shift, for a clock ticking every period.
func WithShortPulseField(shift uint, period timing.Ns) Option {
	return func(o *options) {
		o.fieldEnabled = true
		o.fieldShift = shift
		o.period = period
	}
}

// Timeline is the replay of a program.
type Timeline struct {
	program  program.Program
	channels []flags.Channel
	opts     options
}

// Reconstruct replays p. Every channel of l appears in the timeline, as does
// every bit set somewhere in p that l does not name.
func Reconstruct(
	p program.Program,
	l *flags.Lookup,
	opts ...Option,
) *Timeline {
	if l == nil {
		panic("lookup must not be nil")
	}

	t := &Timeline{program: p.Clone()}
	for _, o := range opts {
		o(&t.opts)
	}

	var used flags.Flags
	for _, inst := range p {
		used |= t.channelFlags(inst.Flags)
	}
	used |= l.Mask()

	t.channels = flags.Decode(used, l)

	return t
}

func (t *Timeline) channelFlags(f flags.Flags) flags.Flags {
	if !t.opts.fieldEnabled {
		return f
	}

	return f &^ program.FieldMask(t.opts.fieldShift)
}

// Channels returns the channels of the timeline ordered by bit.
func (t *Timeline) Channels() []flags.Channel {
	out := make([]flags.Channel, len(t.channels))
	copy(out, t.channels)

	return out
}

// End returns the time the program finishes.
func (t *Timeline) End() timing.Ns {
	return program.TotalDuration(t.program)
}

// Samples returns the samples of the named channel: its level at time 0
// followed by one sample per level change. An unknown name yields nothing.
func (t *Timeline) Samples(name string) iter.Seq[Sample] {
	bit, ok := t.bitOf(name)
	if !ok {
		return func(func(Sample) bool) {}
	}

	return func(yield func(Sample) bool) {
		current := Low
		first := true

		emit := func(at timing.Ns, level Level) bool {
			if !first && level == current {
				return true
			}

			first = false
			current = level

			return yield(Sample{Time: at, Level: level})
		}

		if len(t.program) == 0 {
			yield(Sample{Time: 0, Level: Low})
			return
		}

		var start timing.Ns
		for _, inst := range t.program {
			level := Low
			if inst.Flags.Has(bit) && !t.outputsOff(inst) {
				level = High
			}

			if !emit(start, level) {
				return
			}

			if held, limited := t.heldFor(inst); limited {
				if !emit(start+held, Low) {
					return
				}
			}

			start += inst.Duration
		}
	}
}

// outputsOff reports whether the short pulse field of inst drives every
// output low.
func (t *Timeline) outputsOff(inst program.Instruction) bool {
	return t.opts.fieldEnabled &&
		program.FieldValue(inst.Flags, t.opts.fieldShift) == program.FieldOff
}

// heldFor returns how long the outputs of inst are held when the short pulse
// field limits them.
func (t *Timeline) heldFor(inst program.Instruction) (timing.Ns, bool) {
	if !t.opts.fieldEnabled {
		return 0, false
	}

	n := program.FieldPeriods(inst.Flags, t.opts.fieldShift)
	if n == 0 {
		return 0, false
	}

	held := timing.Ns(n) * t.opts.period
	if held >= inst.Duration {
		return 0, false
	}

	return held, true
}

func (t *Timeline) bitOf(name string) (uint, bool) {
	for _, c := range t.channels {
		if c.String() == name {
			return c.Bit, true
		}
	}

	return 0, false
}

// Collect materializes the samples of every channel.
func (t *Timeline) Collect() map[string][]Sample {
	out := make(map[string][]Sample, len(t.channels))
	for _, c := range t.channels {
		var samples []Sample
		for s := range t.Samples(c.String()) {
			samples = append(samples, s)
		}

		out[c.String()] = samples
	}

	return out
}

// Edges returns the times the named channel changes level.
func (t *Timeline) Edges(name string) []timing.Ns {
	var edges []timing.Ns

	first := true
	for s := range t.Samples(name) {
		if first {
			first = false
			continue
		}

		edges = append(edges, s.Time)
	}

	return edges
}

// InitialLevel returns the level of the named channel at time 0.
func (t *Timeline) InitialLevel(name string) Level {
	for s := range t.Samples(name) {
		return s.Level
	}

	return Low
}
