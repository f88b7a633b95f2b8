package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/aquasecurity/table"
	"github.com/cuemby/fusiond/pkg/types"
	"github.com/cuemby/fusiond/pkg/wire"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List in-flight tasks known to a running fusiond's asset manager",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("addr", "127.0.0.1:13031", "Asset manager address")
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	netConn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer netConn.Close()

	conn := wire.NewConn(netConn)
	if err := wire.ClientHandshake(conn, 5*time.Second); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	reply, err := conn.SendRequest("GetCurrTasks", nil, 5*time.Second)
	if err != nil {
		return fmt.Errorf("GetCurrTasks: %w", err)
	}
	if reply.Kind == wire.KindException {
		return fmt.Errorf("server: %s", string(reply.Payload))
	}

	var versions []types.AssetVersion
	if err := json.Unmarshal(reply.Payload, &versions); err != nil {
		return fmt.Errorf("decoding reply: %w", err)
	}

	t := table.New(os.Stdout)
	t.SetHeaders("Version", "State", "Task ID", "Progress")
	for _, v := range versions {
		taskID := "-"
		if v.TaskID != nil {
			taskID = fmt.Sprintf("%d", *v.TaskID)
		}
		t.AddRow(v.Ref.String(), string(v.State), taskID, fmt.Sprintf("%.0f%%", v.Progress*100))
	}
	t.Render()

	return nil
}
