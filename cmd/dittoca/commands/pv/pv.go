// Package pv implements the PV subcommands, which inspect and write the
// soft PVs of a running server through its status API.
package pv

import (
	"github.com/spf13/cobra"
)

// Cmd is the pv subcommand.
var Cmd = &cobra.Command{
	Use:     "pv",
	Aliases: []string{"pvs"},
	Short:   "Inspect and write process variables",
	Long: `Inspect and write the PVs of a running DittoCA server.

Subcommands:
  list  List the hosted PVs
  get   Show the value of one or more PVs
  put   Write a PV`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(putCmd)
}
