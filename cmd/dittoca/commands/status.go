package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoca/cmd/dittoca/cmdutil"
	"github.com/marmos91/dittoca/internal/cli/output"
	"github.com/marmos91/dittoca/pkg/apiclient"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the state of a running DittoCA server: its instance ID,
port, uptime, beacon timer, buffer pools and connected clients.

Examples:
  # Status of the local server
  dittoca status

  # Status of a remote server
  dittoca status --server http://ioc1:8080

  # Output as JSON
  dittoca status -o json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := cmdutil.GetClient().Server()
	if err != nil {
		return cmdutil.Unreachable(err)
	}
	return cmdutil.PrintDetail(os.Stdout, st, statusPairs(st))
}

func statusPairs(st *apiclient.ServerStatus) [][2]string {
	return [][2]string{
		{"Server ID", st.ServerID},
		{"Port", strconv.Itoa(st.Port)},
		{"Started", output.FormatTime(st.StartTime)},
		{"Uptime", output.FormatUptime(st.Uptime)},
		{"PVs", strconv.Itoa(st.PVs)},
		{"Clients", strconv.Itoa(len(st.Clients))},
		{"Channels", strconv.Itoa(st.Channels)},
		{"Monitors", strconv.Itoa(st.Monitors)},
		{"Pending ops", strconv.Itoa(st.PendingOps)},
		{"Event queue", strconv.Itoa(st.QueueDepth)},
		{"Beacon", fmt.Sprintf("seq %d every %s (%d sent, %d errors)", st.Beacon.Sequence, st.Beacon.Period, st.Beacon.Sent, st.Beacon.SendErrors)},
		{"Buffers", fmt.Sprintf("%d/%d bytes, %d large in use, %d refused", st.Buffers.SmallSize, st.Buffers.LargeSize, st.Buffers.LargeOutstanding, st.Buffers.Refused)},
	}
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List connected Channel Access clients",
	Long: `List the stream clients connected to the server with their user,
host, protocol version and channel counts.

Examples:
  dittoca clients
  dittoca clients -o yaml`,
	RunE: runClients,
}

// ClientList is a list of clients for table rendering.
type ClientList []apiclient.ClientInfo

// Headers implements TableRenderer.
func (cl ClientList) Headers() []string {
	return []string{"ADDRESS", "USER", "HOST", "VERSION", "STATE", "CHANNELS", "MONITORS", "CONNECTED"}
}

// Rows implements TableRenderer.
func (cl ClientList) Rows() [][]string {
	rows := make([][]string, 0, len(cl))
	for _, c := range cl {
		rows = append(rows, []string{
			c.Address,
			cmdutil.EmptyOr(c.User, "-"),
			cmdutil.EmptyOr(c.Host, "-"),
			fmt.Sprintf("4.%d", c.MinorVersion),
			c.State,
			strconv.Itoa(c.Channels),
			strconv.Itoa(c.Monitors),
			output.FormatTime(c.ConnectedAt),
		})
	}
	return rows
}

func runClients(cmd *cobra.Command, args []string) error {
	clients, err := cmdutil.GetClient().ListClients()
	if err != nil {
		return cmdutil.Unreachable(err)
	}
	return cmdutil.PrintOutput(os.Stdout, clients, len(clients) == 0, "No connected clients.", ClientList(clients))
}
