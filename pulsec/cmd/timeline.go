package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pulsec/timeline"
)

func newTimelineCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "timeline <file>",
		Short: "Print the per-channel timeline of a program.",
		Long: "`timeline <file>` prints, for every channel, the level at " +
			"time 0 and each level change. --compiled compiles the program " +
			"first and --plot prints plot lines as JSON.",
		Args: cobra.ExactArgs(1),
		RunE: runTimeline,
	}

	addCompileFlags(c)
	c.Flags().Bool("compiled", false, "Compile the program first")
	c.Flags().Bool("plot", false, "Print plot lines as JSON")

	return c
}

func runTimeline(c *cobra.Command, args []string) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}

	in, err := readInput(c, s, args[0])
	if err != nil {
		return err
	}

	p := in.program
	var opts []timeline.Option

	compiled, _ := c.Flags().GetBool("compiled")
	if compiled {
		compiler, err := compilerFor(c, in.settings)
		if err != nil {
			return err
		}

		if p, err = compiler.Compile(p); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}

		opts = in.settings.TimelineOptions()
	}

	t := timeline.Reconstruct(p, in.lookup, opts...)

	plot, _ := c.Flags().GetBool("plot")
	if plot {
		enc := json.NewEncoder(c.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(t.PlotLines())
	}

	for _, ch := range t.Channels() {
		var parts []string
		for s := range t.Samples(ch.String()) {
			parts = append(parts, fmt.Sprintf("%gns %s", float64(s.Time), s.Level))
		}

		fmt.Fprintf(c.OutOrStdout(), "%s: %s\n", ch, strings.Join(parts, ", "))
	}

	fmt.Fprintf(c.OutOrStdout(), "end: %gns\n", float64(t.End()))

	return nil
}
