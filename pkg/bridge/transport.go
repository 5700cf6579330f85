package bridge

import (
	"encoding/binary"
	"fmt"

	"github.com/blackprobe/probecore/pkg/connection"
)

// maxSyncAttempts bounds how many stray bytes transfer will discard while
// hunting for the response sync byte before it gives up. The teacher's
// protocol.go looped without a bound; a relay link can desync badly enough
// that unbounded retry just hangs the caller.
const maxSyncAttempts = 256

// Transport implements accessor.CoreControl over a connection.Connection,
// framing every operation the way the teacher's protocol.go framed 68k/6502
// memory commands: a 7-byte request header (sync, command, 3-byte address,
// 2-byte length), an optional data payload, and a trailing LRC byte; the
// response mirrors that shape with a 2-byte status pair in place of the
// address/length fields.
type Transport struct {
	conn     connection.Connection
	status0  byte
	status1  byte
	errSeen  bool
}

// NewTransport wraps an already-open connection.
func NewTransport(conn connection.Connection) *Transport {
	return &Transport{conn: conn}
}

// Close closes the underlying connection.
func (tp *Transport) Close() error { return tp.conn.Close() }

// transfer sends one framed command and returns the response payload.
//
// Request:  [0x55][CMD][ADDR_HI][ADDR_MID][ADDR_LO][LEN_HI][LEN_LO][...DATA...][LRC]
// Response: [0xAA][STATUS0][STATUS1][...DATA...][LRC]
func (tp *Transport) transfer(command byte, address uint32, data []byte, readLength uint16) ([]byte, error) {
	tp.status0 = 0
	tp.status1 = 0

	length := readLength
	if len(data) > 0 {
		length = uint16(len(data))
	}

	header := make([]byte, 7)
	header[0] = requestSyncByte
	header[1] = command
	header[2] = byte(address >> 16)
	header[3] = byte(address >> 8)
	header[4] = byte(address)
	binary.BigEndian.PutUint16(header[5:7], length)

	lrc := calculateLRC(header)
	if len(data) > 0 {
		lrc ^= calculateLRC(data)
	}

	packet := make([]byte, 0, len(header)+len(data)+1)
	packet = append(packet, header...)
	packet = append(packet, data...)
	packet = append(packet, lrc)

	written, err := tp.conn.Write(packet)
	if err != nil {
		tp.errSeen = true
		return nil, fmt.Errorf("bridge: write packet: %w", err)
	}
	if written != len(packet) {
		tp.errSeen = true
		return nil, fmt.Errorf("bridge: incomplete write: wrote %d, expected %d", written, len(packet))
	}

	var sync byte
	for attempt := 0; sync != responseSyncByte; attempt++ {
		if attempt >= maxSyncAttempts {
			tp.errSeen = true
			return nil, fmt.Errorf("bridge: no response sync byte after %d attempts", maxSyncAttempts)
		}
		buf, err := tp.conn.Read(1)
		if err != nil {
			tp.errSeen = true
			return nil, fmt.Errorf("bridge: read sync byte: %w", err)
		}
		sync = buf[0]
	}

	statusBytes, err := tp.conn.Read(2)
	if err != nil {
		tp.errSeen = true
		return nil, fmt.Errorf("bridge: read status bytes: %w", err)
	}
	tp.status0 = statusBytes[0]
	tp.status1 = statusBytes[1]

	var readBytes []byte
	if readLength > 0 {
		readBytes, err = tp.conn.Read(int(readLength))
		if err != nil {
			tp.errSeen = true
			return nil, fmt.Errorf("bridge: read data: %w", err)
		}
	}

	trailer, err := tp.conn.Read(1)
	if err != nil {
		tp.errSeen = true
		return nil, fmt.Errorf("bridge: read LRC: %w", err)
	}

	full := append(append([]byte{responseSyncByte}, statusBytes...), readBytes...)
	full = append(full, trailer[0])
	if !verifyLRC(full) {
		tp.errSeen = true
		return nil, fmt.Errorf("bridge: LRC mismatch in response to command 0x%02X", command)
	}

	if tp.status0 != 0 {
		tp.errSeen = true
		return nil, fmt.Errorf("bridge: probe reported status0=0x%02X status1=0x%02X", tp.status0, tp.status1)
	}

	return readBytes, nil
}

// maxChunk is the largest payload one transfer can carry: the wire
// header's length field is 16 bits. ReadMem/WriteMem split anything larger
// into multiple transfers transparently, the same way the teacher's
// cmd/flash.go chunked uploads against cfg.ChunkSize.
const maxChunk = 4096

// ReadMem reads len(buf) bytes starting at addr into buf.
func (tp *Transport) ReadMem(addr uint32, buf []byte) error {
	for off := 0; off < len(buf); off += maxChunk {
		end := off + maxChunk
		if end > len(buf) {
			end = len(buf)
		}
		got, err := tp.transfer(cmdReadMem, addr+uint32(off), nil, uint16(end-off))
		if err != nil {
			return err
		}
		copy(buf[off:end], got)
	}
	return nil
}

// WriteMem writes buf starting at addr.
func (tp *Transport) WriteMem(addr uint32, buf []byte) error {
	for off := 0; off < len(buf); off += maxChunk {
		end := off + maxChunk
		if end > len(buf) {
			end = len(buf)
		}
		if _, err := tp.transfer(cmdWriteMem, addr+uint32(off), buf[off:end], 0); err != nil {
			return err
		}
	}
	return nil
}

func (tp *Transport) ReadMem32(addr uint32) (uint32, error) {
	buf := make([]byte, 4)
	if err := tp.ReadMem(addr, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (tp *Transport) WriteMem32(addr uint32, v uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return tp.WriteMem(addr, buf)
}

func (tp *Transport) ReadMem16(addr uint32) (uint16, error) {
	buf := make([]byte, 2)
	if err := tp.ReadMem(addr, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

func (tp *Transport) WriteMem16(addr uint32, v uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return tp.WriteMem(addr, buf)
}

func (tp *Transport) ReadMem8(addr uint32) (byte, error) {
	buf := make([]byte, 1)
	if err := tp.ReadMem(addr, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (tp *Transport) WriteMem8(addr uint32, v byte) error {
	return tp.WriteMem(addr, []byte{v})
}

// CheckError reports whether a transfer has failed since the last call,
// then clears the flag.
func (tp *Transport) CheckError() bool {
	seen := tp.errSeen
	tp.errSeen = false
	if !seen {
		// Also ask the probe itself: it may have latched a fault (e.g. a
		// parity error on the target bus) that didn't surface as a local
		// transport error.
		_, err := tp.transfer(cmdCheckError, 0, nil, 1)
		if err == nil && tp.status1 != 0 {
			seen = true
		}
	}
	return seen
}

// Halt stops the core.
func (tp *Transport) Halt() error {
	_, err := tp.transfer(cmdHalt, 0, nil, 0)
	return err
}

// Resume starts the core running from its current PC.
func (tp *Transport) Resume() error {
	_, err := tp.transfer(cmdResume, 0, nil, 0)
	return err
}

// IsHalted reports whether the core is currently halted.
func (tp *Transport) IsHalted() (bool, error) {
	_, err := tp.transfer(cmdIsHalted, 0, nil, 1)
	if err != nil {
		return false, err
	}
	return tp.status1 != 0, nil
}

// ReadPC reads the core's program counter.
func (tp *Transport) ReadPC() (uint32, error) {
	return tp.ReadMem32FromCommand(cmdReadPC)
}

// WritePC sets the core's program counter.
func (tp *Transport) WritePC(pc uint32) error {
	_, err := tp.transfer(cmdWritePC, pc, nil, 0)
	return err
}

// WriteReg stages an argument into the numbered integer register.
func (tp *Transport) WriteReg(n int, v uint32) error {
	_, err := tp.transfer(cmdWriteReg, uint32(n), encode32(v), 0)
	return err
}

// ReadReg reads back the numbered integer register.
func (tp *Transport) ReadReg(n int) (uint32, error) {
	got, err := tp.transfer(cmdReadReg, uint32(n), nil, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(got), nil
}

// ReadMem32FromCommand issues a zero-address transfer for commands that
// return a single 32-bit value with no addressable target (PC, status).
func (tp *Transport) ReadMem32FromCommand(command byte) (uint32, error) {
	got, err := tp.transfer(command, 0, nil, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(got), nil
}

func encode32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return buf
}
