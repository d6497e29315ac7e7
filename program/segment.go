package program

import (
	"fmt"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/timing"
)

// Segment is one step of a logical timeline: the named channels are high, all
// others low, for Duration.
type Segment struct {
	Channels []string  `json:"channels"`
	Duration timing.Ns `json:"duration"`
}

// Lower turns a logical timeline into a program of Continue instructions.
func Lower(segments []Segment, l *flags.Lookup) (Program, error) {
	p := make(Program, 0, len(segments))
	for i, s := range segments {
		f, err := flags.Encode(l, s.Channels...)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}

		p = append(p, Cont(f, s.Duration))
	}

	return p, nil
}
