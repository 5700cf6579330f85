package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// monitorCmd runs a single driver-registered monitor command by name
// against the attached target (spec.md §6 "Monitor command surface"),
// the same external surface a debugger's qRcmd packet would reach through.
var monitorCmd = &cobra.Command{
	Use:   "monitor <command> [args...]",
	Short: "Run a driver monitor command against the attached target",
	Long: `Run a named monitor command registered by the attached board's
driver, with the remaining arguments passed through verbatim. None of
the boards in pkg/boards registers a monitor command, so with them every
name is reported as unsupported.

Usage:
  probecore monitor <command> [args...] --board <name>`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateConnectionFlags(); err != nil {
			return err
		}

		s, err := openSession(boardFlag, attachEraseStub, attachWriteStub)
		if err != nil {
			return err
		}
		defer s.Close()

		name, argv := args[0], args[1:]
		ok, err := s.t.Run(name, argv)
		if err != nil {
			return fmt.Errorf("monitor %s: %w", name, err)
		}
		if !ok {
			printError("monitor %s failed", name)
			return fmt.Errorf("monitor command failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVar(&attachEraseStub, "erase-stub", "", "Path to the erase algorithm blob (rp2040/lm3s only)")
	monitorCmd.Flags().StringVar(&attachWriteStub, "write-stub", "", "Path to the write algorithm blob (rp2040/lm3s only)")
}
