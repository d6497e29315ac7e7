// Package flags converts between named channel sets and the integer bitmask a
// pulse generator instruction carries.
//
// Bit i of a Flags value is 1 when channel i is commanded high. Channels are
// switched on with OR and flipped with XOR, so callers never need to know the
// state of the other channels.
package flags

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Flags is the output state of every channel during one instruction.
type Flags uint64

// Bit returns the flags with only bit b set.
func Bit(b uint) Flags {
	if b >= MaxWidth {
		panic(fmt.Sprintf("bit %d out of range", b))
	}

	return Flags(1) << b
}

// Limit returns the smallest value that does not fit in width bits.
// A width of MaxWidth has no such value and returns 0.
func Limit(width uint) Flags {
	if width >= MaxWidth {
		return 0
	}

	return Flags(1) << width
}

// Fits reports whether f only uses the lowest width bits.
func (f Flags) Fits(width uint) bool {
	if width >= MaxWidth {
		return true
	}

	return f < Limit(width)
}

// Has reports whether bit b is set.
func (f Flags) Has(b uint) bool {
	return b < MaxWidth && f&Bit(b) != 0
}

// Bits returns the set bit positions in ascending order.
func (f Flags) Bits() []uint {
	out := make([]uint, 0, bits.OnesCount64(uint64(f)))
	for v := uint64(f); v != 0; v &= v - 1 {
		out = append(out, uint(bits.TrailingZeros64(v)))
	}

	return out
}

// Highest returns the position of the highest set bit, or -1 for no bits.
func (f Flags) Highest() int {
	return bits.Len64(uint64(f)) - 1
}

// Channel is a named output line bound to a bit. A Channel with an empty Name
// is anonymous: its bit was set but no name was bound to it.
type Channel struct {
	Name string
	Bit  uint
}

// Anonymous reports whether the channel has no bound name.
func (c Channel) Anonymous() bool {
	return c.Name == ""
}

func (c Channel) String() string {
	if c.Anonymous() {
		return AnonymousName(c.Bit)
	}

	return c.Name
}

// AnonymousName is the name an unbound bit is reported under.
func AnonymousName(bit uint) string {
	return "ch" + strconv.FormatUint(uint64(bit), 10)
}

// Encode returns the OR of the bits of every named channel.
func Encode(l *Lookup, names ...string) (Flags, error) {
	if l == nil {
		panic("lookup must not be nil")
	}

	var f Flags
	for _, name := range names {
		bit, ok := l.Bit(name)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		}

		f |= Bit(bit)
	}

	return f, nil
}

// Decode returns the channels whose bit is set in f, ordered by bit. Set bits
// that have no name in l are returned as anonymous channels.
func Decode(f Flags, l *Lookup) []Channel {
	if l == nil {
		panic("lookup must not be nil")
	}

	set := f.Bits()
	out := make([]Channel, 0, len(set))
	for _, bit := range set {
		name, _ := l.Name(bit)
		out = append(out, Channel{Name: name, Bit: bit})
	}

	return out
}

// Toggle flips the named channels and leaves every other channel as it is.
func Toggle(f Flags, l *Lookup, names ...string) (Flags, error) {
	mask, err := Encode(l, names...)
	if err != nil {
		return 0, err
	}

	return f ^ mask, nil
}

// On sets the given bits.
func On(f Flags, bits ...uint) Flags {
	for _, b := range bits {
		f |= Bit(b)
	}

	return f
}

// Off clears the given bits.
func Off(f Flags, bits ...uint) Flags {
	for _, b := range bits {
		f &^= Bit(b)
	}

	return f
}

// Names returns the display names of channels.
func Names(channels []Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = c.String()
	}

	return out
}
