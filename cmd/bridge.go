package cmd

import (
	"github.com/blackprobe/probecore/pkg/bridge"
	"github.com/spf13/cobra"
)

var (
	bridgeHost       string
	bridgeTCPPort    int
	bridgeSerialPort string
	bridgeBaudRate   int
)

// bridgeCmd runs a TCP-to-serial relay so a host elsewhere on the network
// can reach a probe plugged into this machine's serial port (spec.md §6
// "External interfaces" — the TCP transport is just another Connection in
// front of the same wire protocol).
var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Run a TCP-to-serial relay for a locally attached probe",
	Long: `Listen for TCP connections and relay each framed request to a probe
attached to a local serial port.

Example:
  probecore bridge --serial /dev/ttyUSB0 --baud 115200 --host 0.0.0.0 --tcp-port 2560`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r := bridge.NewRelay(bridgeHost, bridgeTCPPort, bridgeSerialPort, bridgeBaudRate)
		return r.Listen()
	},
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().StringVar(&bridgeHost, "host", "0.0.0.0", "TCP listen host")
	bridgeCmd.Flags().IntVar(&bridgeTCPPort, "tcp-port", 2560, "TCP listen port")
	bridgeCmd.Flags().StringVar(&bridgeSerialPort, "serial", "", "Serial port the probe is attached to")
	bridgeCmd.MarkFlagRequired("serial")
	bridgeCmd.Flags().IntVar(&bridgeBaudRate, "baud", 115200, "Serial baud rate")
}
