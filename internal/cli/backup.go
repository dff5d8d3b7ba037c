package cli

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/litewrap/pkg/sqlite"
)

func newBackupCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "backup <target>",
		Short: "Copy the database to a file while it stays online",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return withDatabase(func(c *sqlite.Conn) error {
				if err := c.BackupContext(cmd.Context(), target); err != nil {
					return fmt.Errorf("backup: %w", err)
				}
				if verify {
					if err := verifyCopy(c, target); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backed up %s to %s (%s)\n", c.Path(), target, fileSize(target))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "compare table digests of the source and the copy")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <source>",
		Short: "Replace the database with the contents of a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(source); err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			return withDatabase(func(c *sqlite.Conn) error {
				if err := c.RestoreContext(cmd.Context(), source); err != nil {
					return fmt.Errorf("restore: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", c.Path(), source)
				return nil
			})
		},
	}
}

// verifyCopy checks that every table of c hashes the same in the file at target.
func verifyCopy(c *sqlite.Conn, target string) error {
	want, err := c.Digest()
	if err != nil {
		return fmt.Errorf("digest source: %w", err)
	}
	b, err := openPath(target)
	if err != nil {
		return err
	}
	defer b.Close()
	got, err := b.Digest()
	if err != nil {
		return fmt.Errorf("digest copy: %w", err)
	}
	if !maps.Equal(want, got) {
		return fmt.Errorf("verify: backup of %s differs from the source", target)
	}
	level.Debug(settings.logger).Log("msg", "backup verified", "tables", len(want))
	return nil
}

func fileSize(path string) string {
	st, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return humanize.Bytes(uint64(st.Size()))
}
