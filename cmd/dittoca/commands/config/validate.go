package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/cmd/dittoca/cmdutil"
	"github.com/marmos91/dittoca/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the DittoCA configuration file.

Checks for syntax errors, invalid values and PV definitions that cannot
be built.

Examples:
  # Validate default config
  dittoca config validate

  # Validate specific config file
  dittoca config validate --config /etc/dittoca/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Building the PVs catches bad initial values and enum tables, which
	// the struct validation cannot see
	host, err := config.InitializeHost(cmd.Context(), cfg, nil)
	if err != nil {
		return fmt.Errorf("invalid PV definitions: %w", err)
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	for _, w := range warnings(cfg) {
		_, _ = fmt.Fprintf(out, "  warning: %s\n", w)
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  CA port:         %d\n", cfg.Server.Port)
	_, _ = fmt.Fprintf(out, "  Beacon period:   %s\n", cfg.Server.BeaconPeriod)
	_, _ = fmt.Fprintf(out, "  PVs:             %d\n", len(host.Names()))
	_, _ = fmt.Fprintf(out, "  API:             %s\n", apiSummary(cfg))
	_, _ = fmt.Fprintf(out, "  Autosave:        %t\n", cfg.Autosave.Enabled)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}

func apiSummary(cfg *config.Config) string {
	if !cfg.API.IsEnabled() {
		return "disabled"
	}
	return fmt.Sprintf("port %d", cfg.API.Port)
}

func warnings(cfg *config.Config) []string {
	var out []string
	if len(cfg.PVs) == 0 {
		out = append(out, "no PVs configured, every search will go unanswered")
	}
	if !cfg.Server.IsAutoBeaconAddrs() && len(cfg.Server.BeaconAddrs) == 0 {
		out = append(out, "no beacon destinations, clients will not notice restarts")
	}
	saved := 0
	for _, pv := range cfg.PVs {
		if pv.Autosave {
			saved++
		}
	}
	if saved > 0 && !cfg.Autosave.Enabled {
		out = append(out, fmt.Sprintf("%d PVs request autosave but autosave is disabled", saved))
	}
	return out
}
