package program

import (
	"fmt"

	"github.com/sarchlab/pulsec/flags"
)

// PulseBlaster boards reserve a few flag bits as a short pulse field. FieldOff
// drives every output low for the whole instruction and FieldOn holds the
// outputs for the whole instruction. A value N between 1 and MaxFieldPeriods
// holds the outputs for N clock periods and then drives them low for the rest
// of the instruction.

// DefaultFieldShift is the position of the short pulse field on 24 bit
// PulseBlaster boards, bits 21 to 23.
const DefaultFieldShift = 21

// FieldWidth is the number of bits of the short pulse field.
const FieldWidth = 3

// MaxFieldPeriods is the longest pulse, in clock periods, the field encodes.
const MaxFieldPeriods = 5

// Field values that do not shorten the pulse.
const (
	FieldOff = 0
	FieldOn  = 1<<FieldWidth - 1
)

// FieldMask returns the bits occupied by a short pulse field at shift.
func FieldMask(shift uint) flags.Flags {
	return flags.Flags(1<<FieldWidth-1) << shift
}

// FieldValue returns the raw short pulse field of f.
func FieldValue(f flags.Flags, shift uint) int {
	return int((f & FieldMask(shift)) >> shift)
}

// WithFieldOn returns f with its short pulse field set to FieldOn.
func WithFieldOn(f flags.Flags, shift uint) flags.Flags {
	return f | FieldMask(shift)
}

// FieldPeriods returns the number of clock periods encoded in the short pulse
// field of f, or 0 when the field does not limit the pulse.
func FieldPeriods(f flags.Flags, shift uint) int {
	n := FieldValue(f, shift)
	if n < 1 || n > MaxFieldPeriods {
		return 0
	}

	return n
}

// WithFieldPeriods returns f with its short pulse field set to n periods.
func WithFieldPeriods(f flags.Flags, shift uint, n int) flags.Flags {
	if n < 1 || n > MaxFieldPeriods {
		panic(fmt.Sprintf("short pulse field cannot hold %d periods", n))
	}

	return f&^FieldMask(shift) | flags.Flags(n)<<shift
}
