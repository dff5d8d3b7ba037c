package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/litewrap/pkg/sqlite"
)

type tableInfo struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Digest string `json:"digest"`
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List user tables with row counts and content digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(c *sqlite.Conn) error {
				infos, err := listTables(c)
				if err != nil {
					return err
				}
				if flags.jsonMode {
					return writeJSON(cmd.OutOrStdout(), infos)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tROWS\tDIGEST")
				for _, ti := range infos {
					fmt.Fprintf(w, "%s\t%s\t%s\n", ti.Name, humanize.Comma(int64(ti.Rows)), ti.Digest)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				if st, err := os.Stat(c.Path()); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s, %s\n", c.Path(), humanize.Bytes(uint64(st.Size())))
				}
				return nil
			})
		},
	}
}

func listTables(c *sqlite.Conn) ([]tableInfo, error) {
	digests, err := c.Digest()
	if err != nil {
		return nil, err
	}
	t, err := c.GetTable("select name from sqlite_master where type='table' and name not like 'sqlite_%' order by name")
	if err != nil {
		return nil, err
	}
	defer t.Finalize()

	n, err := t.NumRows()
	if err != nil {
		return nil, err
	}
	infos := make([]tableInfo, 0, n)
	for r := 0; r < n; r++ {
		if err := t.SetRow(r); err != nil {
			return nil, err
		}
		name, err := t.FieldValue(0)
		if err != nil {
			return nil, err
		}
		rows, err := c.ExecScalar("select count(*) from " + quoteIdent(name))
		if err != nil {
			return nil, err
		}
		infos = append(infos, tableInfo{Name: name, Rows: rows, Digest: fmt.Sprintf("%016x", digests[name])})
	}
	return infos, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
