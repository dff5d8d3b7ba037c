package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/litewrap/pkg/engine"
)

// Version is the litewrap release.
const Version = "0.1.0"

const modulePath = "github.com/mesh-intelligence/litewrap"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the litewrap and SQLite versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := engine.Lookup(settings.config.Engine)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "litewrap v%s\nmodule: %s\nsqlite: %s (%s)\n", Version, modulePath, o.Version(), o.Name())
			return nil
		},
	}
}
