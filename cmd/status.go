package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeeftor/qmp-macro/internal/logging"
	"github.com/jeeftor/qmp-macro/internal/styles"
)

// statusCmd checks that a VM's QMP socket answers before a macro is run against it
var statusCmd = &cobra.Command{
	Use:   "status [vmid]",
	Short: "Query VM status",
	Long: `Query the run state of a QEMU virtual machine over QMP. Useful to check the
socket path and that the guest is running before starting a macro.

Examples:
  qmp-macro status 106
  qmp-macro status 106 --socket /tmp/tunnel.sock`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid := args[0]
		timer := logging.StartTimer("status_query", vmid)
		logger := logging.NewContextualLogger(vmid, "status")

		ctx := rootContext()
		client, err := ConnectToVM(ctx, vmid)
		if err != nil {
			timer.StopWithError(err, map[string]interface{}{"stage": "connection"})
			return err
		}

		status, err := client.QueryStatus(ctx)
		if err != nil {
			timer.StopWithError(err, map[string]interface{}{"stage": "status_query"})
			return fmt.Errorf("querying VM status: %w", err)
		}
		logger.Debug("VM status retrieved", "running", status.Running, "status", status.Status)
		timer.Stop(true, map[string]interface{}{"running": status.Running, "status": status.Status})

		w := out(cmd)
		fmt.Fprintf(w, "%s %s\n", styles.KeyStyle.Render("VM:"), vmid)
		fmt.Fprintf(w, "%s %v\n", styles.KeyStyle.Render("Running:"), status.Running)
		fmt.Fprintf(w, "%s %s\n", styles.KeyStyle.Render("Status:"), styles.ForState(status.Status).Render(status.Status))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
