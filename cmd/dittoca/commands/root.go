// Package commands implements the dittoca command line: the server
// commands and the clients of its status API.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/cmd/dittoca/cmdutil"
	"github.com/marmos91/dittoca/cmd/dittoca/commands/config"
	"github.com/marmos91/dittoca/cmd/dittoca/commands/pv"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "dittoca",
	Short: "DittoCA - EPICS Channel Access server",
	Long: `DittoCA serves process variables over EPICS Channel Access. Soft PVs
are defined in the configuration file; clients find them by name search,
read and write them and subscribe to their changes.

A small HTTP API reports server state and lets the client commands here
inspect and write PVs.

Use "dittoca [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittoca/config.yaml)")
	flags.StringVar(&cmdutil.Flags.ServerURL, "server", "", "status API URL (default: $"+cmdutil.EnvServerURL+" or the configured API port on localhost)")
	flags.StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	flags.BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "Disable colored output")
	flags.DurationVar(&cmdutil.Flags.Timeout, "timeout", 10*time.Second, "API request timeout")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clientsCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(pv.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cmdutil.Flags.ConfigFile
}
