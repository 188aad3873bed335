package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nfgraph/nfgraph/internal/cliutil"
)

// AgentStatus is the JSON body a running chainagent serves at
// GET /status (wired in run.go's httpapi router) and that this
// command polls over HTTP, since a separate `chainagent status`
// invocation is a different process with no access to the running
// agent's in-memory Counters or ChainState.
type AgentStatus struct {
	Interface string       `json:"interface"`
	Cores     []CoreStatus `json:"cores"`
	NFs       []NFStatus   `json:"nfs"`
}

// CoreStatus mirrors one core's dataplane.Snapshot.
type CoreStatus struct {
	Core         int    `json:"core"`
	Received     uint64 `json:"received"`
	Transmitted  uint64 `json:"transmitted"`
	Dropped      uint64 `json:"dropped"`
	Aborted      uint64 `json:"aborted"`
	Passed       uint64 `json:"passed"`
	Tailcalled   uint64 `json:"tailcalled"`
	Upcalled     uint64 `json:"upcalled"`
	HeadroomDrop uint64 `json:"headroom_drop"`
}

// NFStatus is one installed NF's identity and link kind.
type NFStatus struct {
	ID   string `json:"id"`
	Root bool   `json:"root"`
	Tail bool   `json:"tail"`
}

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a running chainagent's per-core counters and installed NFs",
	Long: `status fetches GET /status from a running chainagent's metrics
HTTP server and renders the per-core packet counters and installed NF
table with tablewriter.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://127.0.0.1:9090", "running chainagent's metrics/status HTTP address")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(statusAddr, "/") + "/status")
	if err != nil {
		return fmt.Errorf("fetch status from %s: %w", statusAddr, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch status from %s: server returned %s", statusAddr, resp.Status)
	}

	var st AgentStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "interface: %s\n\n", st.Interface)

	cores := cliutil.NewTableData("CORE", "RECEIVED", "TRANSMITTED", "DROPPED", "ABORTED", "PASSED", "TAILCALLED", "UPCALLED", "HEADROOM_DROP")
	for _, c := range st.Cores {
		cores.AddRow(
			strconv.Itoa(c.Core),
			strconv.FormatUint(c.Received, 10),
			strconv.FormatUint(c.Transmitted, 10),
			strconv.FormatUint(c.Dropped, 10),
			strconv.FormatUint(c.Aborted, 10),
			strconv.FormatUint(c.Passed, 10),
			strconv.FormatUint(c.Tailcalled, 10),
			strconv.FormatUint(c.Upcalled, 10),
			strconv.FormatUint(c.HeadroomDrop, 10),
		)
	}
	if err := cliutil.PrintTable(cmd.OutOrStdout(), cores); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout())

	nfs := cliutil.NewTableData("NF ID", "ROOT", "TAIL")
	for _, nf := range st.NFs {
		nfs.AddRow(nf.ID, strconv.FormatBool(nf.Root), strconv.FormatBool(nf.Tail))
	}
	return cliutil.PrintTable(cmd.OutOrStdout(), nfs)
}
