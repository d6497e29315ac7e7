package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pulsec/config"
	"github.com/sarchlab/pulsec/datarecording"
	"github.com/sarchlab/pulsec/timeline"
)

func newRecordCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "record <file>...",
		Short: "Compile programs and store them with their timelines in SQLite.",
		Long: "`record <file>...` compiles every file and records the " +
			"original and compiled programs and their timelines in " +
			"<db>.sqlite3. Each file is printed with the id it is stored under.",
		Args: cobra.MinimumNArgs(1),
		RunE: runRecord,
	}

	addCompileFlags(c)
	c.Flags().String("db", "",
		"Name of the database, without extension; default is generated")
	c.Flags().String("label", "", "Label of the programs, default file name")
	c.Flags().String("clickhouse", "",
		"Record to the ClickHouse server at host:port instead of SQLite")
	c.Flags().String("clickhouse-db", "default", "ClickHouse database")
	c.Flags().String("clickhouse-user", "default",
		"ClickHouse user, the password is read from "+envClickHousePassword)

	return c
}

func runRecord(c *cobra.Command, args []string) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}

	backend, err := openRecorder(c)
	if err != nil {
		return err
	}

	label, _ := c.Flags().GetString("label")

	rec := datarecording.NewProgramRecorder(backend)
	defer rec.Close()

	for _, path := range args {
		id, err := recordFile(c, rec, s, path, label)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.OutOrStdout(), "%s: %s\n", path, id)
	}

	rec.Flush()

	return nil
}

// envClickHousePassword holds the password of the ClickHouse user.
const envClickHousePassword = "PULSEC_CLICKHOUSE_PASSWORD"

func openRecorder(c *cobra.Command) (datarecording.DataRecorder, error) {
	addr, _ := c.Flags().GetString("clickhouse")
	if addr != "" {
		database, _ := c.Flags().GetString("clickhouse-db")
		user, _ := c.Flags().GetString("clickhouse-user")

		return datarecording.NewClickHouse(datarecording.ClickHouseConfig{
			Addr:     addr,
			Database: database,
			Username: user,
			Password: os.Getenv(envClickHousePassword),
		})
	}

	db, _ := c.Flags().GetString("db")
	if db != "" {
		if _, err := os.Stat(db + ".sqlite3"); err == nil {
			return nil, fmt.Errorf("database %s.sqlite3 already exists", db)
		}
	}

	return datarecording.New(db), nil
}

func recordFile(
	c *cobra.Command,
	rec *datarecording.ProgramRecorder,
	s config.Settings,
	path, label string,
) (string, error) {
	in, err := readInput(c, s, path)
	if err != nil {
		return "", err
	}

	compiler, err := compilerFor(c, in.settings)
	if err != nil {
		return "", err
	}

	out, err := compiler.Compile(in.program)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	if label == "" {
		label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	id := datarecording.NewID()
	rec.Record(id, label, datarecording.StageOriginal, in.program,
		timeline.Reconstruct(in.program, in.lookup))
	rec.Record(id, label, datarecording.StageCompiled, out,
		timeline.Reconstruct(out, in.lookup, in.settings.TimelineOptions()...))

	return id, nil
}
