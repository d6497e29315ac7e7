package program

import (
	"fmt"
	"strings"
)

// Opcode selects what the generator does after an instruction. The values
// follow the PulseBlaster instruction set.
type Opcode int

// The opcodes of the PulseBlaster family. Only Continue is supported by the
// compiler; the others exist so that programs using them can be rejected by
// name.
const (
	Continue Opcode = iota
	Stop
	Loop
	EndLoop
	JSR
	RTS
	Branch
	LongDelay
	Wait
)

var opcodeNames = [...]string{
	Continue:  "CONTINUE",
	Stop:      "STOP",
	Loop:      "LOOP",
	EndLoop:   "END_LOOP",
	JSR:       "JSR",
	RTS:       "RTS",
	Branch:    "BRANCH",
	LongDelay: "LONG_DELAY",
	Wait:      "WAIT",
}

func (o Opcode) String() string {
	if o < 0 || int(o) >= len(opcodeNames) {
		return fmt.Sprintf("OPCODE(%d)", int(o))
	}

	return opcodeNames[o]
}

// ParseOpcode returns the opcode with the given name, case insensitive.
func ParseOpcode(name string) (Opcode, error) {
	upper := strings.ToUpper(name)
	for i, n := range opcodeNames {
		if n == upper {
			return Opcode(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnsupportedOpcode, name)
}
