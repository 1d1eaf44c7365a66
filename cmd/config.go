package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"thoreinstein.com/shist/pkg/bootstrap"
	"thoreinstein.com/shist/pkg/config"
	"thoreinstein.com/shist/pkg/errors"
)

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage shist configuration",
}

// configInitCmd writes the default configuration
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Write the default configuration to $HOME/.config/shist/config.toml, or to
the file given with --config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigInitCommand(cmd)
	},
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing configuration file")
}

func runConfigInitCommand(cmd *cobra.Command) error {
	path := cfgFile
	if path == "" {
		dir, err := bootstrap.DefaultConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "config.toml")
	}

	if err := config.WriteDefault(path, configInitForce); err != nil {
		return errors.Wrap(err, "failed to write configuration")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
