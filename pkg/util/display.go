package util

import (
	"fmt"
	"os"
	"strings"
)

const hexDumpWidth = 16

// HexDump prints data as address/hex/ASCII rows, the way memory reads and
// flash verify dumps are reported to the operator.
func HexDump(data []byte, startAddress uint32) {
	for offset := 0; offset < len(data); offset += hexDumpWidth {
		lineEnd := offset + hexDumpWidth
		if lineEnd > len(data) {
			lineEnd = len(data)
		}

		fmt.Printf("%06X: ", startAddress+uint32(offset))
		for i := offset; i < lineEnd; i++ {
			fmt.Printf("%02X ", data[i])
		}
		for i := lineEnd; i < offset+hexDumpWidth; i++ {
			fmt.Print("   ")
		}

		fmt.Print(" | ")
		for i := offset; i < lineEnd; i++ {
			if b := data[i]; b >= 32 && b <= 126 {
				fmt.Printf("%c", b)
			} else {
				fmt.Print(".")
			}
		}
		fmt.Println()
	}
}

// FormatHex renders data as space-separated uppercase hex pairs.
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

func trimAddrPrefix(s string) string {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return strings.TrimPrefix(s, "$")
}

// ParseHexAddress parses a target address given as hex, with an optional
// 0x/$ prefix (e.g. for --address flags).
func ParseHexAddress(s string) (uint32, error) {
	s = trimAddrPrefix(s)
	var addr uint32
	if _, err := fmt.Sscanf(s, "%x", &addr); err != nil {
		return 0, fmt.Errorf("invalid hex address '%s': %w", s, err)
	}
	return addr, nil
}

// ParseHexSize parses a region length given as hex, with an optional 0x/$
// prefix.
func ParseHexSize(s string) (uint16, error) {
	s = trimAddrPrefix(s)
	var size uint16
	if _, err := fmt.Sscanf(s, "%x", &size); err != nil {
		return 0, fmt.Errorf("invalid hex size '%s': %w", s, err)
	}
	return size, nil
}

// ReadFile reads an entire image file into memory.
func ReadFile(filename string) ([]byte, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return data, nil
}
