package shortpulse

import (
	"log"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/hooking"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/timing"
)

// Builder can build short pulse compilers.
type Builder struct {
	clock        timing.Clock
	width        uint
	strategy     Strategy
	fieldShift   uint
	alignToTicks bool
	hooks        []hooking.Hook
}

// MakeBuilder creates a builder with default parameters. A clock must be set
// before calling Build.
func MakeBuilder() Builder {
	return Builder{
		width:      flags.DefaultWidth,
		strategy:   StrategyBorrow,
		fieldShift: program.DefaultFieldShift,
	}
}

// WithClock sets the clock of the pulse generator.
func (b Builder) WithClock(c timing.Clock) Builder {
	b.clock = c
	return b
}

// WithWidth sets the number of flag bits of an instruction.
func (b Builder) WithWidth(width uint) Builder {
	b.width = width
	return b
}

// WithStrategy sets how short instructions are repaired.
func (b Builder) WithStrategy(s Strategy) Builder {
	b.strategy = s
	return b
}

// WithFieldShift sets the position of the short pulse field. It only matters
// with StrategyShortPulseField.
func (b Builder) WithFieldShift(shift uint) Builder {
	b.fieldShift = shift
	return b
}

// WithTickAlignment makes the compiler snap instruction edges to clock ticks
// before repairing short instructions.
func (b Builder) WithTickAlignment() Builder {
	b.alignToTicks = true
	return b
}

// WithHook registers a hook on every compiler built.
func (b Builder) WithHook(h hooking.Hook) Builder {
	b.hooks = append(b.hooks[:len(b.hooks):len(b.hooks)], h)
	return b
}

// Build creates a compiler.
func (b Builder) Build() *Compiler {
	b.mustHaveValidParameters()

	c := &Compiler{
		HookableBase: hooking.NewHookableBase(),
		clock:        b.clock,
		width:        b.width,
		strategy:     b.strategy,
		fieldShift:   b.fieldShift,
		alignToTicks: b.alignToTicks,
	}

	for _, h := range b.hooks {
		c.AcceptHook(h)
	}

	return c
}

func (b Builder) mustHaveValidParameters() {
	if _, err := timing.NewClock(b.clock.Period, b.clock.MinMultiple); err != nil {
		log.Panicf("invalid clock: %v", err)
	}

	if b.width == 0 || b.width > flags.MaxWidth {
		log.Panicf("width must be between 1 and %d, got %d",
			flags.MaxWidth, b.width)
	}

	if b.strategy == StrategyShortPulseField &&
		b.fieldShift+program.FieldWidth > b.width {
		log.Panicf("short pulse field at bit %d does not fit in width %d",
			b.fieldShift, b.width)
	}
}
