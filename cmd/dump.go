package cmd

import (
	"fmt"

	"github.com/blackprobe/probecore/pkg/util"
	"github.com/spf13/cobra"
)

var (
	dumpAddress string
	dumpCount   string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read and display memory from the attached target",
	Long: `Read a block of memory from the attached target and display it in hex
dump format.

Example:
  probecore dump --board stm32f103 --address 20000000 --count 100`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateConnectionFlags(); err != nil {
			return err
		}
		if dumpCount == "" {
			dumpCount = "10"
		}

		addr, err := util.ParseHexAddress(dumpAddress)
		if err != nil {
			return fmt.Errorf("invalid address: %w", err)
		}
		count, err := util.ParseHexSize(dumpCount)
		if err != nil {
			return fmt.Errorf("invalid count: %w", err)
		}

		s, err := openSession(boardFlag, attachEraseStub, attachWriteStub)
		if err != nil {
			return err
		}
		defer s.Close()

		data := make([]byte, count)
		if err := s.tp.ReadMem(addr, data); err != nil {
			return fmt.Errorf("failed to read memory: %w", err)
		}

		util.HexDump(data, addr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVar(&dumpAddress, "address", "", "Starting address (hex, e.g., 20000000)")
	dumpCmd.MarkFlagRequired("address")
	dumpCmd.Flags().StringVar(&dumpCount, "count", "10", "Number of bytes to read (hex, e.g., 100)")
	dumpCmd.Flags().StringVar(&attachEraseStub, "erase-stub", "", "Path to the erase algorithm blob (rp2040/lm3s only)")
	dumpCmd.Flags().StringVar(&attachWriteStub, "write-stub", "", "Path to the write algorithm blob (rp2040/lm3s only)")
}
