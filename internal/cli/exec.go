package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/litewrap/pkg/sqlite"
)

func newExecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec [sql]",
		Short: "Run SQL statements and report the rows changed",
		Long:  "Run every statement of the script, read from the argument or from stdin,\nand print the number of rows changed by the last one.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readArg(cmd, args)
			if err != nil {
				return err
			}
			return withDatabase(func(c *sqlite.Conn) error {
				n, err := c.ExecDMLContext(cmd.Context(), script)
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"changes": n, "last_row_id": c.LastRowID()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d rows changed\n", n)
				return nil
			})
		},
	}
}

func newScalarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scalar <sql>",
		Short: "Print the first column of the first row as an integer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(c *sqlite.Conn) error {
				n, err := c.ExecScalarContext(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

// withDatabase opens the configured database, runs fn and closes it.
func withDatabase(fn func(*sqlite.Conn) error) (err error) {
	c, err := openDatabase()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close database: %w", cerr)
		}
	}()
	return fn(c)
}
