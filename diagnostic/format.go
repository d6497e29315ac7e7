// Package diagnostic renders instructions and flags for people to read.
package diagnostic

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/program"
)

// FormatFlags renders f as width binary digits, most significant bit first.
func FormatFlags(f flags.Flags, width uint) string {
	return fmt.Sprintf("%0*b", int(width), uint64(f))
}

// FormatChannels renders the channels set in f, e.g. "A(0) C(2)". Unbound
// bits appear as ch<bit>.
func FormatChannels(f flags.Flags, l *flags.Lookup) string {
	channels := flags.Decode(f, l)
	parts := make([]string, len(channels))
	for i, c := range channels {
		parts[i] = fmt.Sprintf("%s(%d)", c, c.Bit)
	}

	return strings.Join(parts, " ")
}

// FormatInstruction renders one instruction on a single line: flags in
// binary, opcode, data, duration and the names of the high channels.
func FormatInstruction(
	inst program.Instruction,
	l *flags.Lookup,
	width uint,
) string {
	return fmt.Sprintf("%s  %s  %d  %gns  %s",
		FormatFlags(inst.Flags, width),
		inst.Opcode,
		inst.Data,
		float64(inst.Duration),
		FormatChannels(inst.Flags, l),
	)
}

// FormatProgram renders a program as a table with one row per instruction
// and the start time of each instruction.
func FormatProgram(p program.Program, l *flags.Lookup, width uint) string {
	buf := &bytes.Buffer{}
	w := tabwriter.NewWriter(buf, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "#\tstart\tflags\topcode\tdata\tduration\tchannels")

	edges := program.Edges(p)
	for i, inst := range p {
		fmt.Fprintf(w, "%d\t%gns\t%s\t%s\t%d\t%gns\t%s\n",
			i,
			float64(edges[i]),
			FormatFlags(inst.Flags, width),
			inst.Opcode,
			inst.Data,
			float64(inst.Duration),
			FormatChannels(inst.Flags, l),
		)
	}

	fmt.Fprintf(w, "total\t%gns\t\t\t\t\t\n", float64(edges[len(p)]))

	_ = w.Flush()

	return buf.String()
}
