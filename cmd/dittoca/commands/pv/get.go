package pv

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/cmd/dittoca/cmdutil"
	"github.com/marmos91/dittoca/internal/cli/output"
	"github.com/marmos91/dittoca/pkg/apiclient"
)

var getCmd = &cobra.Command{
	Use:   "get NAME...",
	Short: "Show the value of one or more PVs",
	Long: `Show the current value of PVs with their alarm state and time stamp.

Examples:
  dittoca pv get TEMP1
  dittoca pv get TEMP1 SETPOINT MODE
  dittoca pv get WAVEFORM -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

// ValueList is a list of PV values for table rendering.
type ValueList struct {
	values  []apiclient.PVValue
	printer *output.Printer
}

// Headers implements TableRenderer.
func (l ValueList) Headers() []string {
	return []string{"NAME", "VALUE", "UNITS", "STATUS", "SEVERITY", "TIMESTAMP"}
}

// Rows implements TableRenderer.
func (l ValueList) Rows() [][]string {
	rows := make([][]string, 0, len(l.values))
	for _, v := range l.values {
		sevr := v.Severity
		if l.printer != nil {
			sevr = l.printer.Severity(sevr)
		}
		rows = append(rows, []string{
			v.Name,
			output.FormatValue(v.Value),
			cmdutil.EmptyOr(v.Units, "-"),
			v.Status,
			sevr,
			output.FormatTime(v.Timestamp),
		})
	}
	return rows
}

func runGet(cmd *cobra.Command, args []string) error {
	printer, err := cmdutil.Printer()
	if err != nil {
		return err
	}
	client := cmdutil.GetClient()

	values := make([]apiclient.PVValue, 0, len(args))
	var missing []string
	for _, name := range args {
		v, err := client.GetPV(name)
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return cmdutil.Unreachable(err)
		}
		values = append(values, *v)
	}

	var data any = values
	if len(args) == 1 && len(values) == 1 {
		data = values[0]
	}
	if err := cmdutil.PrintOutput(os.Stdout, data, len(values) == 0, "No values.", ValueList{values: values, printer: printer}); err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("PV not found: %v", missing)
	}
	return nil
}
