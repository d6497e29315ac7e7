package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pulsec/monitoring"
)

func newServeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the inspection server.",
		Long: "`serve` starts a web server that compiles documents posted to " +
			"/api/compile and draws their timelines. It runs until " +
			"interrupted.",
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			s, err := loadSettings(c)
			if err != nil {
				return err
			}

			port, _ := c.Flags().GetInt("port")
			m := monitoring.NewMonitor(s).WithPortNumber(port)

			open, _ := c.Flags().GetBool("open")
			if open {
				m = m.WithBrowser()
			}

			m.StartServer()

			ctx, stop := signal.NotifyContext(c.Context(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			<-ctx.Done()

			return nil
		},
	}

	addCompileFlags(c)
	c.Flags().Int("port", 0, "Port to listen on, random if unset")
	c.Flags().Bool("open", false, "Open the page in a browser")

	return c
}
