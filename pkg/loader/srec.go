package loader

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// SRecImage loads Motorola SREC firmware images.
type SRecImage struct {
	baseImage
}

// NewSRecLoader creates an SREC image loader.
func NewSRecLoader() *SRecImage {
	return &SRecImage{}
}

// Open opens a Motorola SREC file.
func (l *SRecImage) Open(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	l.file = file
	return nil
}

// Process reads and parses the SREC file.
// Record layout: S<type><count><address><data><checksum>
// Types: S0=header, S1=16-bit addr, S2=24-bit addr, S3=32-bit addr,
//
//	S7=32-bit start, S8=24-bit start, S9=16-bit start
func (l *SRecImage) Process() error {
	if l.file == nil {
		return fmt.Errorf("file not open")
	}

	if l.handler == nil {
		return fmt.Errorf("handler not set")
	}

	pattern := regexp.MustCompile(`^S([0-9a-fA-F])([0-9a-fA-F]+)`)

	scanner := bufio.NewScanner(l.file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if len(line) == 0 {
			continue
		}

		matches := pattern.FindStringSubmatch(line)
		if matches == nil {
			return fmt.Errorf("invalid SREC format at line %d: %s", lineNum, line)
		}

		recordType, _ := strconv.ParseUint(matches[1], 16, 8)
		hexDigits := matches[2]

		switch recordType {
		case 0: // Header record - ignore
			continue

		case 1: // Data with 16-bit address
			if err := l.parseDataRecord(hexDigits, 2, lineNum); err != nil {
				return err
			}

		case 2: // Data with 24-bit address
			if err := l.parseDataRecord(hexDigits, 3, lineNum); err != nil {
				return err
			}

		case 3: // Data with 32-bit address
			if err := l.parseDataRecord(hexDigits, 4, lineNum); err != nil {
				return err
			}

		case 4: // Reserved
			continue

		case 5, 6: // Record count - ignore
			continue

		case 7, 8, 9: // Start address - ignore (not data)
			continue

		default:
			return fmt.Errorf("unsupported SREC type S%d at line %d", recordType, lineNum)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}

	return nil
}

// parseDataRecord parses an SREC data record.
// addressBytes: 2 for S1, 3 for S2, 4 for S3.
func (l *SRecImage) parseDataRecord(hexDigits string, addressBytes int, lineNum int) error {
	// Format: <count><address><data><checksum>
	if len(hexDigits) < 2+addressBytes*2+2 {
		return fmt.Errorf("SREC record too short at line %d", lineNum)
	}

	// count covers address+data+checksum bytes; not needed once parsed.
	_, _ = strconv.ParseUint(hexDigits[0:2], 16, 8)

	addressHex := hexDigits[2 : 2+addressBytes*2]
	address, _ := strconv.ParseUint(addressHex, 16, 32)

	dataStart := 2 + addressBytes*2
	dataEnd := len(hexDigits) - 2 // exclude checksum
	dataHex := hexDigits[dataStart:dataEnd]

	data, err := hexStringToBytes(dataHex)
	if err != nil {
		return fmt.Errorf("invalid data at line %d: %w", lineNum, err)
	}

	if err := l.handler(uint32(address), data); err != nil {
		return fmt.Errorf("handler failed at line %d: %w", lineNum, err)
	}

	return nil
}
