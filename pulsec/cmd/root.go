// Package cmd provides the command-line interface of pulsec.
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/pulsec/config"
	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/hooking"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/shortpulse"
	"github.com/sarchlab/pulsec/timing"
)

// newRootCmd creates the base command and attaches every subcommand.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pulsec",
		Short: "pulsec compiles pulse programs for clocked pulse generators.",
		Long: `pulsec reads pulse programs, repairs instructions shorter than ` +
			`the minimum duration of the target pulse generator and shows ` +
			`the resulting timelines. Settings come from .env files, ` +
			`PULSEC_* environment variables and flags, in increasing ` +
			`precedence.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.Float64("period", 0, "Clock period in nanoseconds")
	pf.Int("min-multiple", 0,
		"Minimum instruction duration in clock periods")
	pf.Uint("width", 0, "Number of flag bits per instruction")
	pf.StringSlice("env-file", nil,
		"Env files to load instead of "+config.DefaultEnvFile)
	pf.BoolP("verbose", "v", false, "Log what the compiler changes")

	rootCmd.AddCommand(
		newCompileCmd(),
		newTimelineCmd(),
		newFormatCmd(),
		newRecordCmd(),
		newServeCmd(),
	)

	return rootCmd
}

// Execute runs the command line, then exits through atexit so that recorders
// flush, with status 1 on failure.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

// addCompileFlags adds the flags of the commands that compile.
func addCompileFlags(c *cobra.Command) {
	c.Flags().String("strategy", "",
		"How to repair short instructions: borrow or field")
	c.Flags().Bool("align", false, "Snap instruction edges to clock ticks")
}

// loadSettings reads the env files and environment, then applies the flags
// the user set.
func loadSettings(c *cobra.Command) (config.Settings, error) {
	files, _ := c.Flags().GetStringSlice("env-file")

	s, err := config.Load(files...)
	if err != nil {
		return s, err
	}

	f := c.Flags()
	if f.Changed("period") {
		v, _ := f.GetFloat64("period")
		s.ClockPeriod = timing.Ns(v)
	}

	if f.Changed("min-multiple") {
		s.MinMultiple, _ = f.GetInt("min-multiple")
	}

	if f.Changed("width") {
		s.Width, _ = f.GetUint("width")
	}

	if f.Lookup("strategy") != nil && f.Changed("strategy") {
		v, _ := f.GetString("strategy")
		if s.Strategy, err = shortpulse.ParseStrategy(v); err != nil {
			return s, err
		}
	}

	if f.Lookup("align") != nil && f.Changed("align") {
		s.AlignToTicks, _ = f.GetBool("align")
	}

	return s, s.Validate()
}

// compilerFor builds the compiler of s, logging its hooks when the command
// runs verbosely.
func compilerFor(c *cobra.Command, s config.Settings) (
	*shortpulse.Compiler,
	error,
) {
	verbose, _ := c.Flags().GetBool("verbose")
	if !verbose {
		return s.Compiler()
	}

	logger := log.New(c.ErrOrStderr(), "pulsec: ", 0)

	return s.Compiler(hooking.NewLogHook(logger))
}

// input is a document read from a file, with the settings adjusted to it.
type input struct {
	doc      *program.Document
	settings config.Settings
	lookup   *flags.Lookup
	program  program.Program
}

func readInput(c *cobra.Command, s config.Settings, path string) (*input, error) {
	var r io.Reader = c.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		r = f
	}

	doc, err := program.ReadDocument(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	s = s.ForDocument(doc)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l, err := doc.Lookup(s.Width)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	p, err := doc.Program(l)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &input{doc: doc, settings: s, lookup: l, program: p}, nil
}
