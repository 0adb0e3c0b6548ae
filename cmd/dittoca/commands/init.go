package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/internal/cli/prompt"
	"github.com/marmos91/dittoca/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample DittoCA configuration file with a few soft PVs.

By default, the configuration file is created at $XDG_CONFIG_HOME/dittoca/config.yaml.
Use --config to specify a custom path. An existing file is only replaced
after confirmation, or with --force.

Examples:
  # Initialize with default location
  dittoca init

  # Initialize with custom path
  dittoca init --config /etc/dittoca/config.yaml

  # Overwrite an existing config without asking
  dittoca init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(configPath); err == nil && !force {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s?", configPath), false)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
		if !ok {
			fmt.Println("Keeping the existing configuration.")
			return nil
		}
		force = true
	}

	if err := config.InitConfigToPath(configPath, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the PV definitions in the configuration file")
	fmt.Println("  2. Start the server with: dittoca start")
	fmt.Printf("  3. Or specify custom config: dittoca start --config %s\n", configPath)
	fmt.Println("  4. Inspect the PVs with: dittoca pv list")
	return nil
}
