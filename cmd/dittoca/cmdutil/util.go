// Package cmdutil provides shared utilities for the dittoca commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/marmos91/dittoca/internal/cli/output"
	"github.com/marmos91/dittoca/pkg/apiclient"
	"github.com/marmos91/dittoca/pkg/config"
)

// EnvServerURL overrides the status API URL of the client commands.
const EnvServerURL = "DITTOCA_SERVER"

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	ServerURL  string
	Output     string
	NoColor    bool
	Timeout    time.Duration
}

// ServerURL resolves the status API URL: the --server flag, then
// DITTOCA_SERVER, then the API port of the configuration file, then
// localhost:8080.
func ServerURL() string {
	if Flags.ServerURL != "" {
		return strings.TrimRight(Flags.ServerURL, "/")
	}
	if env := os.Getenv(EnvServerURL); env != "" {
		return strings.TrimRight(env, "/")
	}
	port := 8080
	if cfg, err := config.Load(Flags.ConfigFile); err == nil {
		port = cfg.API.Port
	}
	return fmt.Sprintf("http://localhost:%d", port)
}

// GetClient returns a status API client for ServerURL.
func GetClient() *apiclient.Client {
	c := apiclient.New(ServerURL())
	if Flags.Timeout > 0 {
		c = c.WithTimeout(Flags.Timeout)
	}
	return c
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// Printer returns a printer for stdout honoring --output and --no-color.
func Printer() (*output.Printer, error) {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return nil, err
	}
	def := output.DefaultPrinter()
	return output.NewPrinter(os.Stdout, format, def.ColorEnabled() && !Flags.NoColor), nil
}

// PrintOutput prints data in the selected format. For tables it prints
// emptyMsg instead when isEmpty is set.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, table output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, table)
	}
}

// PrintDetail prints data as JSON or YAML, or as key: value pairs for
// tables.
func PrintDetail(w io.Writer, data any, pairs [][2]string) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		return output.SimpleTable(w, pairs)
	}
}

// EmptyOr returns value, or fallback when value is empty.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Unreachable wraps a client error with a hint when the server could not
// be contacted at all.
func Unreachable(err error) error {
	if _, ok := err.(*apiclient.APIError); ok {
		return err
	}
	return fmt.Errorf("%w\n\nIs the server running? Check the API address with --server or %s", err, EnvServerURL)
}
