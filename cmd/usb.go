package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jeeftor/qmp-macro/internal/logging"
)

// tabletCmd manages the USB tablet that makes absolute clicks land where they are aimed
var tabletCmd = &cobra.Command{
	Use:   "tablet",
	Short: "Attach or detach a USB tablet",
	Long: `Clicks are sent as absolute pointer events. Guests without an absolute
pointing device ignore them; attaching a usb-tablet fixes that.

Use 'run --add-tablet ID' to attach one only for the duration of a run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var tabletAddCmd = &cobra.Command{
	Use:   "add [vmid] [id]",
	Short: "Attach a usb-tablet device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, id := args[0], args[1]
		ctx := rootContext()
		client, err := ConnectToVM(ctx, vmid)
		if err != nil {
			return err
		}
		return logging.LogOperation("tablet_add", vmid, func() error {
			if err := client.AddTablet(ctx, id); err != nil {
				return err
			}
			logging.Successf("Attached usb-tablet %s to VM %s", id, vmid)
			return nil
		})
	},
}

var tabletRemoveCmd = &cobra.Command{
	Use:   "remove [vmid] [id]",
	Short: "Detach a device by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vmid, id := args[0], args[1]
		ctx := rootContext()
		client, err := ConnectToVM(ctx, vmid)
		if err != nil {
			return err
		}
		return logging.LogOperation("tablet_remove", vmid, func() error {
			if err := client.RemoveDevice(ctx, id); err != nil {
				return err
			}
			logging.Successf("Removed device %s from VM %s", id, vmid)
			return nil
		})
	},
}

func init() {
	tabletCmd.AddCommand(tabletAddCmd)
	tabletCmd.AddCommand(tabletRemoveCmd)
	rootCmd.AddCommand(tabletCmd)
}
