package pv

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/cmd/dittoca/cmdutil"
	"github.com/marmos91/dittoca/internal/cli/output"
	"github.com/marmos91/dittoca/internal/cli/prompt"
	"github.com/marmos91/dittoca/pkg/apiclient"
)

var putString bool

var putCmd = &cobra.Command{
	Use:   "put NAME [VALUE...]",
	Short: "Write a PV",
	Long: `Write a PV the way a Channel Access client write would: the value is
converted to the PV's type, clamped to its control limits and posted to
monitors. Several values write an array.

Without a value the command prompts for one, offering the states of an
enum PV as a list.

Examples:
  dittoca pv put SETPOINT 72.5
  dittoca pv put MODE HEAT
  dittoca pv put WAVEFORM 1 2 3 4
  dittoca pv put --string LABEL 42
  dittoca pv put MODE`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPut,
}

func init() {
	putCmd.Flags().BoolVar(&putString, "string", false, "Send values as strings even when they look numeric")
}

func runPut(cmd *cobra.Command, args []string) error {
	client := cmdutil.GetClient()
	name := args[0]

	raw := args[1:]
	if len(raw) == 0 {
		v, err := promptValue(client, name)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
		raw = []string{v}
	}

	v, err := client.PutPV(name, parseValues(raw, putString))
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return cmdutil.Unreachable(err)
	}

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format != output.FormatTable {
		return cmdutil.PrintDetail(os.Stdout, v, nil)
	}
	printer, err := cmdutil.Printer()
	if err != nil {
		return err
	}
	printer.Success(fmt.Sprintf("%s = %s", v.Name, output.FormatValue(v.Value)))
	return nil
}

// parseValues turns command line words into a JSON value: one word is a
// scalar, several an array. Words are numbers unless asString is set or
// one of them does not parse.
func parseValues(words []string, asString bool) any {
	nums := make([]float64, 0, len(words))
	if !asString {
		for _, w := range words {
			f, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
			if err != nil {
				break
			}
			nums = append(nums, f)
		}
	}
	if len(nums) == len(words) {
		if len(nums) == 1 {
			return nums[0]
		}
		return nums
	}
	if len(words) == 1 {
		return words[0]
	}
	return words
}

func promptValue(client *apiclient.Client, name string) (string, error) {
	cur, err := client.GetPV(name)
	if err != nil {
		return "", cmdutil.Unreachable(err)
	}
	if cur.Access != "rw" && cur.Access != "wo" {
		return "", fmt.Errorf("PV %s is not writable (%s)", name, cur.Access)
	}
	if len(cur.EnumStrings) > 0 {
		current, _ := cur.Value.(string)
		return prompt.Select(name, cur.EnumStrings, current)
	}
	return prompt.Input(name, output.FormatValue(cur.Value), nil)
}
