package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pulsec/diagnostic"
)

func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format <file>",
		Short: "Print a program as a table without compiling it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			s, err := loadSettings(c)
			if err != nil {
				return err
			}

			in, err := readInput(c, s, args[0])
			if err != nil {
				return err
			}

			fmt.Fprint(c.OutOrStdout(),
				diagnostic.FormatProgram(in.program, in.lookup, in.settings.Width))

			return nil
		},
	}
}
