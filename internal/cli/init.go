package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/litewrap/internal/paths"
	"github.com/mesh-intelligence/litewrap/pkg/types"
)

// configFile holds the structure written to config.yaml.
type configFile struct {
	types.Config `yaml:",inline"`
	DataDir      string `yaml:"data_dir,omitempty"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize litewrap configuration and database",
		Long:  "Create the configuration and data directories, write a default config.yaml\nif there is none, and create the database file.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := writeConfigIfMissing(filepath.Join(configDir, configFileExt), flags.dataDir); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	path, err := resolveDatabase()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	c, err := openPath(path)
	if err != nil {
		return err
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "litewrap initialized: %s\n", path)
	return nil
}

// writeConfigIfMissing creates config.yaml with default values if the file does
// not exist. If it already exists, the function returns nil.
func writeConfigIfMissing(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	cfg := configFile{
		Config:  types.DefaultConfig(),
		DataDir: dataDir,
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
