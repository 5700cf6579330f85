// Package cmd implements all CLI commands for probecore.
package cmd

import (
	"fmt"
	"os"

	"github.com/blackprobe/probecore/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Global configuration instance
	cfg *config.Config

	// Global flags
	portFlag   string
	boardFlag  string
	quietFlag  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "probecore",
	Short: "probecore - drive an in-circuit debug probe's target abstraction and flash engine",
	Long: `probecore is a command-line tool for attaching to a microcontroller
through a debug probe, inspecting and editing its memory, and erasing or
programming its flash.

It talks to the probe over a serial link or a TCP bridge, using the
wire protocol in pkg/bridge, and dispatches flash operations through the
family driver registered for the board named by --board.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if portFlag != "" {
			cfg.Port = portFlag
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&portFlag, "port", "", "Serial port or TCP address (e.g., COM3, /dev/ttyUSB0, 192.168.1.114:2560)")
	rootCmd.PersistentFlags().StringVar(&boardFlag, "board", "", "Board name (see 'probecore boards' for the list)")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "Suppress informational output")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// validateConnectionFlags checks that a port was specified, either via flag
// or config file.
func validateConnectionFlags() error {
	if cfg.Port == "" && portFlag == "" {
		return fmt.Errorf("no port specified (use --port flag or set in probecore.ini)")
	}
	return nil
}

// printInfo prints output that respects --quiet.
func printInfo(format string, args ...interface{}) {
	if !quietFlag {
		fmt.Printf(format, args...)
	}
}

// printError always prints, regardless of --quiet.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
