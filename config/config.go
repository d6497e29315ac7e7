// Package config collects the settings of the pulse compiler from .env files
// and PULSEC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/hooking"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/shortpulse"
	"github.com/sarchlab/pulsec/timeline"
	"github.com/sarchlab/pulsec/timing"
)

// Environment variables read by Load.
const (
	EnvClockPeriod = "PULSEC_CLOCK_PERIOD_NS"
	EnvMinMultiple = "PULSEC_MIN_MULTIPLE"
	EnvWidth       = "PULSEC_WIDTH"
	EnvFieldShift  = "PULSEC_FIELD_SHIFT"
	EnvStrategy    = "PULSEC_STRATEGY"
	EnvAlign       = "PULSEC_ALIGN"
)

// DefaultEnvFile is loaded by Load when no file is named and it exists.
const DefaultEnvFile = ".env"

// Settings describes the target pulse generator and how to compile for it.
type Settings struct {
	ClockPeriod  timing.Ns
	MinMultiple  int
	Width        uint
	FieldShift   uint
	Strategy     shortpulse.Strategy
	AlignToTicks bool
}

// Default returns the settings of a 500 MHz, 24 bit PulseBlaster.
func Default() Settings {
	return Settings{
		ClockPeriod: 2,
		MinMultiple: timing.DefaultMinMultiple,
		Width:       flags.DefaultWidth,
		FieldShift:  program.DefaultFieldShift,
		Strategy:    shortpulse.StrategyBorrow,
	}
}

// Load reads the given .env files, or DefaultEnvFile if none is given and it
// exists, into the environment without overriding variables that are already
// set, then returns Default overridden by the environment.
func Load(files ...string) (Settings, error) {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			files = []string{DefaultEnvFile}
		}
	}

	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Settings{}, fmt.Errorf("config: loading env files: %w", err)
		}
	}

	return FromEnv(os.LookupEnv)
}

// FromEnv returns Default overridden by the variables lookup finds.
func FromEnv(lookup func(string) (string, bool)) (Settings, error) {
	s := Default()

	var errs []error
	parse := func(key string, set func(string) error) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}

		if err := set(v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q: %w", key, v, err))
		}
	}

	parse(EnvClockPeriod, func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		s.ClockPeriod = timing.Ns(f)
		return err
	})
	parse(EnvMinMultiple, func(v string) error {
		n, err := strconv.Atoi(v)
		s.MinMultiple = n
		return err
	})
	parse(EnvWidth, func(v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		s.Width = uint(n)
		return err
	})
	parse(EnvFieldShift, func(v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		s.FieldShift = uint(n)
		return err
	})
	parse(EnvStrategy, func(v string) error {
		st, err := shortpulse.ParseStrategy(v)
		s.Strategy = st
		return err
	})
	parse(EnvAlign, func(v string) error {
		b, err := strconv.ParseBool(v)
		s.AlignToTicks = b
		return err
	})

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// Clock returns the clock described by the settings.
func (s Settings) Clock() (timing.Clock, error) {
	return timing.NewClock(s.ClockPeriod, s.MinMultiple)
}

// Validate checks the settings can build a compiler.
func (s Settings) Validate() error {
	if _, err := s.Clock(); err != nil {
		return err
	}

	if s.Width == 0 || s.Width > flags.MaxWidth {
		return fmt.Errorf("%w: width %d", flags.ErrBitOutOfRange, s.Width)
	}

	if s.Strategy == shortpulse.StrategyShortPulseField &&
		s.FieldShift+program.FieldWidth > s.Width {
		return fmt.Errorf("%w: short pulse field at bit %d, width %d",
			flags.ErrBitOutOfRange, s.FieldShift, s.Width)
	}

	return nil
}

// Compiler builds a compiler from the settings with the given hooks attached.
func (s Settings) Compiler(hooks ...hooking.Hook) (*shortpulse.Compiler, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	clock, _ := s.Clock()
	b := shortpulse.MakeBuilder().
		WithClock(clock).
		WithWidth(s.Width).
		WithStrategy(s.Strategy).
		WithFieldShift(s.FieldShift)

	if s.AlignToTicks {
		b = b.WithTickAlignment()
	}

	for _, h := range hooks {
		b = b.WithHook(h)
	}

	return b.Build(), nil
}

// ForDocument returns the settings with the width of doc, if doc sets one.
func (s Settings) ForDocument(doc *program.Document) Settings {
	if doc.Width != 0 {
		s.Width = doc.Width
	}

	return s
}

// TimelineOptions returns the options that reconstruct programs compiled with
// the settings.
func (s Settings) TimelineOptions() []timeline.Option {
	if s.Strategy != shortpulse.StrategyShortPulseField {
		return nil
	}

	return []timeline.Option{
		timeline.WithShortPulseField(s.FieldShift, s.ClockPeriod),
	}
}
