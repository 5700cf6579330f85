package cmd

import (
	"fmt"

	"github.com/blackprobe/probecore/pkg/loader"
	"github.com/blackprobe/probecore/pkg/util"
	"github.com/spf13/cobra"
)

var uploadAddress string

// uploadCmd uploads an Intel HEX file's records to RAM, each record's own
// address driving where it lands (no single --address flag needed).
var uploadCmd = &cobra.Command{
	Use:   "upload <hexfile>",
	Short: "Upload Intel HEX format file to RAM",
	Long: `Upload a program in Intel HEX format to the target's RAM.

Example:
  probecore upload program.hex --board stm32f103`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return uploadFile(args[0], "intelhex")
	},
}

// uploadSrecCmd is the SREC equivalent of uploadCmd.
var uploadSrecCmd = &cobra.Command{
	Use:   "upload-srec <srecfile>",
	Short: "Upload Motorola SREC format file to RAM",
	Long: `Upload a program in Motorola SREC format to the target's RAM.

Example:
  probecore upload-srec program.srec --board stm32f103`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return uploadFile(args[0], "srec")
	},
}

// binaryCmd uploads a raw binary file to a fixed RAM address.
var binaryCmd = &cobra.Command{
	Use:   "binary <binfile>",
	Short: "Upload raw binary file to RAM",
	Long: `Upload a raw binary file to the target's RAM at --address.

Example:
  probecore binary program.bin --board stm32f103 --address 20000000`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return uploadBinary(args[0])
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(uploadSrecCmd)
	rootCmd.AddCommand(binaryCmd)

	binaryCmd.Flags().StringVar(&uploadAddress, "address", "", "Target RAM address (hex, e.g., 20000000)")
	binaryCmd.MarkFlagRequired("address")

	for _, c := range []*cobra.Command{uploadCmd, uploadSrecCmd, binaryCmd} {
		c.Flags().StringVar(&attachEraseStub, "erase-stub", "", "Path to the erase algorithm blob (rp2040/lm3s only)")
		c.Flags().StringVar(&attachWriteStub, "write-stub", "", "Path to the write algorithm blob (rp2040/lm3s only)")
	}
}

// loaderFor maps a requested input format to the generic loader that
// parses it. flash-write (cmd/flash.go) takes raw binaries directly since
// it targets one known flash region; upload needs Intel HEX / SREC for
// arbitrary RAM images whose own address records pick the destination.
func loaderFor(format string) (loader.ImageLoader, error) {
	switch format {
	case "intelhex":
		return loader.NewIntelHexLoader(), nil
	case "srec":
		return loader.NewSRecLoader(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// uploadFile is the common handler for record-oriented formats (Intel
// HEX, SREC): each record already carries its own target address.
func uploadFile(filename, format string) error {
	if err := validateConnectionFlags(); err != nil {
		return err
	}

	s, err := openSession(boardFlag, attachEraseStub, attachWriteStub)
	if err != nil {
		return err
	}
	defer s.Close()

	ldr, err := loaderFor(format)
	if err != nil {
		return err
	}
	if err := ldr.Open(filename); err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer ldr.Close()

	ldr.SetHandler(func(address uint32, data []byte) error {
		return s.tp.WriteMem(address, data)
	})

	printInfo("Uploading %s...\n", filename)
	if err := ldr.Process(); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	printInfo("Upload complete.\n")
	return nil
}

// uploadBinary writes a raw binary file to a single RAM address.
func uploadBinary(filename string) error {
	if err := validateConnectionFlags(); err != nil {
		return err
	}

	addr, err := util.ParseHexAddress(uploadAddress)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	data, err := util.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	s, err := openSession(boardFlag, attachEraseStub, attachWriteStub)
	if err != nil {
		return err
	}
	defer s.Close()

	printInfo("Uploading %d bytes to 0x%08X...\n", len(data), addr)
	if err := s.tp.WriteMem(addr, data); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	printInfo("Upload complete.\n")
	return nil
}
