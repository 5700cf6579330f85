package cmd

import (
	"github.com/blackprobe/probecore/pkg/boards"
	"github.com/blackprobe/probecore/pkg/target"
	"github.com/spf13/cobra"
)

var (
	attachEraseStub string
	attachWriteStub string
)

// boardsCmd lists the known board names (replaces the teacher's
// revision.go single-byte "revision" query — this probe reports the
// driver name and identity it actually attached, not a CPU revision
// code from one specific family).
var boardsCmd = &cobra.Command{
	Use:   "boards",
	Short: "List known board names",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range boards.Names() {
			printInfo("%s\n", name)
		}
		return nil
	},
}

// attachCmd attaches to the target and reports what it found, then
// detaches. This replaces the teacher's cpu.go stop/start pair: rather
// than toggling an F256 stop flag file, attach state now lives on
// target.Target for the life of the process (spec.md §3 "Lifecycle").
var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to the target and report its driver and memory map",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateConnectionFlags(); err != nil {
			return err
		}

		s, err := openSession(boardFlag, attachEraseStub, attachWriteStub)
		if err != nil {
			return err
		}
		defer s.Close()

		printInfo("Attached: driver=%s\n", s.t.Driver)
		for _, r := range s.t.Map.Regions() {
			kind := "RAM"
			if r.Kind == target.KindFlash {
				kind = "Flash"
			}
			printInfo("  [0x%08X, 0x%08X) %s\n", r.Start, r.End(), kind)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(boardsCmd)
	rootCmd.AddCommand(attachCmd)

	attachCmd.Flags().StringVar(&attachEraseStub, "erase-stub", "", "Path to the erase algorithm blob (rp2040/lm3s only)")
	attachCmd.Flags().StringVar(&attachWriteStub, "write-stub", "", "Path to the write algorithm blob (rp2040/lm3s only)")
}
