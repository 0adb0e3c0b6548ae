package config

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittoca/cmd/dittoca/cmdutil"
	"github.com/marmos91/dittoca/internal/cli/output"
	"github.com/marmos91/dittoca/pkg/config"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the effective configuration",
	Long: `Display the configuration after defaults and environment overrides,
including the EPICS_CAS_* variables.

Examples:
  # Show default config as YAML
  dittoca config show

  # Show as JSON
  dittoca config show -o json

  # Show specific config file
  dittoca config show --config /etc/dittoca/config.yaml`,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}

	if format == output.FormatJSON {
		return output.PrintJSON(os.Stdout, cfg)
	}
	// The config carries yaml tags only, so encode it directly
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(cfg)
}
