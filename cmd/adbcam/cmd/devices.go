package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"adbcam/internal/adb"
)

var devicesJSON bool

// devicesCmd lists adb-visible devices without starting anything.
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected Android devices",
	Long: `List the devices adb can see, including unauthorized and offline ones.

A device must be in the "device" state to be usable; "unauthorized" means
the debugging prompt on the phone has not been accepted yet.`,
	RunE: runDevices,
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "output devices as JSON")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	client, err := adb.NewClient()
	if err != nil {
		return err
	}

	devices, err := client.Devices(cmd.Context())
	if err != nil {
		return err
	}

	if devicesJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found. Connect a phone with USB debugging enabled.")
		return nil
	}

	for _, d := range devices {
		marker := " "
		if d.Usable() {
			marker = "*"
		}
		fmt.Printf("%s %-24s %s\n", marker, d.Label(), d.State)
	}
	return nil
}
