// Package loader parses record-oriented firmware image formats (Intel HEX,
// Motorola SREC) into address/data blocks suitable for writing to a target's
// RAM or flash over a debug accessor.
package loader

import (
	"fmt"
	"os"
)

// MemWriter receives one parsed (address, data) block at a time. Image
// loaders call it once per record; the caller typically wires it straight
// to a target's WriteMem.
type MemWriter func(address uint32, data []byte) error

// ImageLoader is the interface every record-oriented image format
// implements.
type ImageLoader interface {
	// Open opens the image file for reading.
	Open(filename string) error

	// Close closes the image file.
	Close() error

	// SetHandler sets the callback invoked for each parsed block.
	SetHandler(handler MemWriter)

	// Process reads and parses the file, invoking the handler per block.
	Process() error
}

// baseImage holds the state common to every ImageLoader implementation.
type baseImage struct {
	file    *os.File
	handler MemWriter
}

func (b *baseImage) SetHandler(handler MemWriter) {
	b.handler = handler
}

func (b *baseImage) Close() error {
	if b.file != nil {
		return b.file.Close()
	}
	return nil
}

// hexStringToBytes decodes a run of ASCII hex digits into raw bytes.
func hexStringToBytes(hexStr string) ([]byte, error) {
	if len(hexStr)%2 != 0 {
		return nil, fmt.Errorf("hex string length must be even")
	}

	out := make([]byte, len(hexStr)/2)
	for i := 0; i < len(hexStr); i += 2 {
		var b byte
		_, err := fmt.Sscanf(hexStr[i:i+2], "%02x", &b)
		if err != nil {
			return nil, fmt.Errorf("invalid hex at position %d: %w", i, err)
		}
		out[i/2] = b
	}
	return out, nil
}
