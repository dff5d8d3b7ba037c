// Package cli implements the litewrap command-line interface: a small shell over
// pkg/sqlite for running statements, inspecting tables, taking and restoring
// backups and converting blobs to and from their text encoding.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/litewrap/internal/paths"
	"github.com/mesh-intelligence/litewrap/pkg/sqlite"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	database  string
	engine    string
	logLevel  string
	jsonMode  bool
}

var flags rootFlags

// settings is the configuration loaded by the root command before a subcommand
// runs.
var settings struct {
	v      *viper.Viper
	config types.Config
	logger log.Logger
}

// NewRootCmd creates the top-level "litewrap" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "litewrap",
		Short: "A contention-tolerant SQLite shell",
		Long: "litewrap runs SQL against a SQLite database, retrying on lock contention\n" +
			"and rolling back failed transactions, and takes online backups.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:      true,
		PersistentPreRunE: loadSettings,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.litewrap)")
	root.PersistentFlags().StringVar(&flags.database, "db", "", "database file (default: <data-dir>/litewrap.db)")
	root.PersistentFlags().StringVar(&flags.engine, "engine", "", "engine adapter: purego or cgo")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newExecCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newScalarCmd())
	root.AddCommand(newTablesCmd())
	root.AddCommand(newBackupCmd())
	root.AddCommand(newRestoreCmd())
	root.AddCommand(newEncodeCmd())
	root.AddCommand(newDecodeCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// exitCode maps engine failures to exitSysError and everything else, bad
// arguments and misuse included, to exitUserError.
func exitCode(err error) int {
	var e *types.Error
	if errors.As(err, &e) && !e.IsWrapper() {
		return exitSysError
	}
	return exitUserError
}

// loadSettings resolves the configuration directory, reads config.yaml and the
// LITEWRAP_* environment, applies flag overrides and builds the logger.
func loadSettings(cmd *cobra.Command, args []string) error {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	for key, name := range map[string]string{cfgKeyEngine: "engine", cfgKeyLogLevel: "log-level"} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	cfg, err := decodeConfig(v)
	if err != nil {
		return err
	}
	settings.v = v
	settings.config = cfg
	settings.logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	return nil
}

// resolveDatabase returns the database file from --db, or the default file in
// the resolved data directory.
func resolveDatabase() (string, error) {
	dataDir, err := paths.ResolveDataDir(flags.dataDir, settings.v.GetString(cfgKeyDataDir))
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return paths.ResolveDatabase(flags.database, dataDir)
}

// openDatabase opens the configured database. The caller must Close it.
func openDatabase() (*sqlite.Conn, error) {
	path, err := resolveDatabase()
	if err != nil {
		return nil, err
	}
	return openPath(path)
}

// openPath opens path with the loaded configuration.
func openPath(path string) (*sqlite.Conn, error) {
	c, err := sqlite.NewConnFromConfig(settings.config, sqlite.WithLogger(settings.logger))
	if err != nil {
		return nil, fmt.Errorf("configure connection: %w", err)
	}
	if err := c.Open(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return c, nil
}

// readArg returns args[0], or all of stdin when there is no argument or it is "-".
func readArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
