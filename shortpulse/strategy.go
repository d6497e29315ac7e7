package shortpulse

import (
	"fmt"
	"strings"
)

// Strategy decides how short instructions are repaired.
type Strategy int

const (
	// StrategyBorrow stretches short instructions to the minimum duration and
	// takes the extra time from a neighbouring instruction. It works on any
	// device.
	StrategyBorrow Strategy = iota

	// StrategyShortPulseField uses the short pulse field of PulseBlaster
	// boards: a short pulse followed by an all-low instruction is folded into
	// one instruction that holds the outputs for N clock periods and then
	// drops them. Pulses that cannot be folded are borrowed for. Every other
	// instruction gets the field value that keeps its outputs on.
	StrategyShortPulseField
)

var strategyNames = map[Strategy]string{
	StrategyBorrow:          "borrow",
	StrategyShortPulseField: "field",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}

	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}

	return 0, fmt.Errorf("shortpulse: unknown strategy %q", name)
}
