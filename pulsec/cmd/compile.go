package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pulsec/diagnostic"
	"github.com/sarchlab/pulsec/program"
)

func newCompileCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "compile <file>",
		Short: "Repair short instructions and print the compiled program.",
		Long: "`compile <file>` reads a program document, use - for stdin, " +
			"and prints the compiled program as a table, or as a document " +
			"with --json.",
		Args: cobra.ExactArgs(1),
		RunE: runCompile,
	}

	addCompileFlags(c)
	c.Flags().Bool("json", false, "Print the compiled document as JSON")

	return c
}

func runCompile(c *cobra.Command, args []string) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}

	in, err := readInput(c, s, args[0])
	if err != nil {
		return err
	}

	compiler, err := compilerFor(c, in.settings)
	if err != nil {
		return err
	}

	out, report, err := compiler.CompileWithReport(in.program)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	asJSON, _ := c.Flags().GetBool("json")
	if asJSON {
		return program.WriteDocument(c.OutOrStdout(), &program.Document{
			Width:        in.settings.Width,
			Channels:     in.doc.Channels,
			Instructions: out,
		})
	}

	fmt.Fprint(c.OutOrStdout(),
		diagnostic.FormatProgram(out, in.lookup, in.settings.Width))
	fmt.Fprintf(c.ErrOrStderr(),
		"%d short runs repaired, %d pulses folded, edges moved by at most %gns\n",
		len(report.Runs), report.Folded, float64(report.MaxEdgeShift))

	return nil
}
