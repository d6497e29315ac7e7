package flags

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxWidth is the widest flag field a Flags value can hold.
const MaxWidth = 64

// DefaultWidth is the channel count of the 24 bit PulseBlaster boards.
const DefaultWidth = 24

var (
	// ErrUnknownChannel is returned when a channel name has no bit binding.
	ErrUnknownChannel = errors.New("flags: unknown channel")

	// ErrDuplicateBit is returned when two channel names share a bit.
	ErrDuplicateBit = errors.New("flags: duplicate bit binding")

	// ErrBitOutOfRange is returned when a channel is bound beyond the width.
	ErrBitOutOfRange = errors.New("flags: bit out of range")

	// ErrReservedName is returned when a channel takes the name unbound bits
	// are reported under, ch<bit>, for a different bit.
	ErrReservedName = errors.New("flags: reserved channel name")
)

// Lookup binds channel names to bit positions. It is immutable once built and
// safe to share.
type Lookup struct {
	width  uint
	bits   map[string]uint
	names  map[uint]string
	sorted []Channel
}

// NewLookup creates a lookup from a name to bit mapping. Bits must be unique
// and below width.
func NewLookup(bits map[string]uint, width uint) (*Lookup, error) {
	if width == 0 || width > MaxWidth {
		return nil, fmt.Errorf("%w: width %d", ErrBitOutOfRange, width)
	}

	l := &Lookup{
		width: width,
		bits:  make(map[string]uint, len(bits)),
		names: make(map[uint]string, len(bits)),
	}

	for name, bit := range bits {
		if name == "" {
			return nil, fmt.Errorf("%w: empty name for bit %d",
				ErrUnknownChannel, bit)
		}

		if other, ok := anonymousBit(name); ok && other != bit {
			return nil, fmt.Errorf("%w: %q names bit %d but is bound to bit %d",
				ErrReservedName, name, other, bit)
		}

		if bit >= width {
			return nil, fmt.Errorf("%w: channel %q at bit %d, width %d",
				ErrBitOutOfRange, name, bit, width)
		}

		if other, taken := l.names[bit]; taken {
			return nil, fmt.Errorf("%w: %q and %q both use bit %d",
				ErrDuplicateBit, other, name, bit)
		}

		l.bits[name] = bit
		l.names[bit] = name
		l.sorted = append(l.sorted, Channel{Name: name, Bit: bit})
	}

	sort.Slice(l.sorted, func(i, j int) bool {
		return l.sorted[i].Bit < l.sorted[j].Bit
	})

	return l, nil
}

// anonymousBit returns the bit whose anonymous name is name.
func anonymousBit(name string) (uint, bool) {
	digits, ok := strings.CutPrefix(name, "ch")
	if !ok {
		return 0, false
	}

	bit, err := strconv.ParseUint(digits, 10, 32)
	if err != nil || AnonymousName(uint(bit)) != name {
		return 0, false
	}

	return uint(bit), true
}

// LookupFromBits creates a lookup from a bit to name mapping, the form used by
// instrument drivers.
func LookupFromBits(names map[uint]string, width uint) (*Lookup, error) {
	bits := make(map[string]uint, len(names))
	for bit, name := range names {
		if other, dup := bits[name]; dup {
			return nil, fmt.Errorf("%w: %q bound to bits %d and %d",
				ErrDuplicateBit, name, other, bit)
		}

		bits[name] = bit
	}

	return NewLookup(bits, width)
}

// MustNewLookup is NewLookup that panics on error.
func MustNewLookup(bits map[string]uint, width uint) *Lookup {
	l, err := NewLookup(bits, width)
	if err != nil {
		panic(err)
	}

	return l
}

// Width returns the number of bits in a flag field.
func (l *Lookup) Width() uint {
	return l.width
}

// Bit returns the bit position of a channel.
func (l *Lookup) Bit(name string) (uint, bool) {
	bit, ok := l.bits[name]
	return bit, ok
}

// Name returns the channel name bound to a bit.
func (l *Lookup) Name(bit uint) (string, bool) {
	name, ok := l.names[bit]
	return name, ok
}

// Channels returns all bound channels ordered by bit.
func (l *Lookup) Channels() []Channel {
	out := make([]Channel, len(l.sorted))
	copy(out, l.sorted)

	return out
}

// Len returns the number of bound channels.
func (l *Lookup) Len() int {
	return len(l.sorted)
}

// Mask returns the flags with every bound channel set.
func (l *Lookup) Mask() Flags {
	var f Flags
	for _, c := range l.sorted {
		f |= Bit(c.Bit)
	}

	return f
}
