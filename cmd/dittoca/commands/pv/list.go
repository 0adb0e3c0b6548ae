package pv

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/cmd/dittoca/cmdutil"
	"github.com/marmos91/dittoca/pkg/apiclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the hosted PVs",
	Long: `List the PVs the server hosts with their type, element count,
access rights and how many channels and monitors clients hold on them.

Examples:
  dittoca pv list
  dittoca pv list -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// PVList is a list of PVs for table rendering.
type PVList []apiclient.PVInfo

// Headers implements TableRenderer.
func (l PVList) Headers() []string {
	return []string{"NAME", "TYPE", "COUNT", "ACCESS", "CHANNELS", "MONITORS"}
}

// Rows implements TableRenderer.
func (l PVList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, p := range l {
		rows = append(rows, []string{
			p.Name,
			p.Type,
			strconv.FormatUint(uint64(p.Count), 10),
			p.Access,
			strconv.Itoa(p.Channels),
			strconv.Itoa(p.Monitors),
		})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	pvs, err := cmdutil.GetClient().ListPVs()
	if err != nil {
		return cmdutil.Unreachable(err)
	}
	return cmdutil.PrintOutput(os.Stdout, pvs, len(pvs) == 0, "No PVs configured.", PVList(pvs))
}
