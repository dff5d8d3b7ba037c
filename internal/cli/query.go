package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
	"github.com/mesh-intelligence/litewrap/pkg/sqlite"
)

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a query and print its rows",
		Long:  "Run the first statement of the argument, or of stdin, and print every row.\nNULL prints as an empty cell, or as null with --json.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readArg(cmd, args)
			if err != nil {
				return err
			}
			return withDatabase(func(c *sqlite.Conn) error {
				q, err := c.ExecQueryContext(cmd.Context(), query)
				if err != nil {
					return err
				}
				defer q.Finalize()

				if flags.jsonMode {
					return printRowsJSON(cmd, q)
				}
				return printRows(cmd.OutOrStdout(), q)
			})
		},
	}
}

func printRows(out io.Writer, q *sqlite.Cursor) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	cells := make([]string, q.NumFields())
	for i := range cells {
		name, err := q.FieldName(i)
		if err != nil {
			return err
		}
		cells[i] = name
	}
	fmt.Fprintln(w, strings.Join(cells, "\t"))

	for !q.Eof() {
		for i := range cells {
			v, err := q.FieldValue(i)
			if err != nil {
				return err
			}
			cells[i] = v
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
		if err := q.NextRow(); err != nil {
			return err
		}
	}
	return w.Flush()
}

func printRowsJSON(cmd *cobra.Command, q *sqlite.Cursor) error {
	rows := []map[string]any{}
	for !q.Eof() {
		row := make(map[string]any, q.NumFields())
		for i := 0; i < q.NumFields(); i++ {
			name, err := q.FieldName(i)
			if err != nil {
				return err
			}
			v, err := jsonValue(q, i)
			if err != nil {
				return err
			}
			row[name] = v
		}
		rows = append(rows, row)
		if err := q.NextRowContext(cmd.Context()); err != nil {
			return err
		}
	}
	return writeJSON(cmd.OutOrStdout(), rows)
}

// jsonValue returns column i typed by its storage class. Blobs are emitted as
// base64 by encoding/json.
func jsonValue(q *sqlite.Cursor, i int) (any, error) {
	t, err := q.FieldDataType(i)
	if err != nil {
		return nil, err
	}
	switch t {
	case engine.TypeNull:
		return nil, nil
	case engine.TypeInteger:
		return q.Int64(i, 0)
	case engine.TypeFloat:
		return q.Float(i, 0)
	case engine.TypeBlob:
		return q.Bytes(i)
	default:
		return q.String(i, "")
	}
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
