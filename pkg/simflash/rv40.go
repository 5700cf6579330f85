package simflash

import "github.com/blackprobe/probecore/pkg/target"

// RV40 simulates a Renesas RA-style RV40 flash macro: a single Flash
// Access Command Interface (FACI) command-area register that consumes a
// multi-write command stream (spec.md §4.H "a separate FENTRYR handshake
// ... command register" family), plus a status register with a lock-until-
// cleared CMDLK bit set by FORCED_STOP (0xB3).
type RV40 struct {
	FlashBase uint32
	PageSize  uint32
	CtrlBase  uint32

	ErasedByte byte

	flash []byte

	state rv40State
	addr  uint32
	want  int
	data  []byte

	cmdlk   bool
	ilglerr bool
	ersprg  bool // ERSERR/PRGERR, reported as the same bit here

	EraseBusyCycles   int
	ProgramBusyCycles int
	busyCycles        int
}

type rv40State int

const (
	rv40Idle rv40State = iota
	rv40EraseWantLatch
	rv40ProgWantAddr
	rv40ProgWantCount
	rv40ProgWantData
	rv40ProgWantLatch
)

const (
	rv40CmdArea = 0x00 // 2-byte command/argument stream register
	rv40FSTATR  = 0x08 // 4-byte status register

	rv40CmdErase      = 0x20
	rv40CmdLatch      = 0xD0
	rv40CmdProgram    = 0xE8
	rv40CmdForcedStop = 0xB3

	fstatrFRDY       = 1 << 6
	fstatrERSERR     = 1 << 2
	fstatrPRGERR     = 1 << 1
	fstatrCMDLK      = 1 << 4
	fstatrILGLCMDERR = 1 << 3
)

// NewRV40 builds an RV40 controller with a flash array of size bytes at
// flashBase, freshly erased to erasedByte.
func NewRV40(flashBase, size, pageSize, ctrlBase uint32, erasedByte byte) *RV40 {
	r := &RV40{
		FlashBase:         flashBase,
		PageSize:          pageSize,
		CtrlBase:          ctrlBase,
		ErasedByte:        erasedByte,
		flash:             make([]byte, size),
		EraseBusyCycles:   1,
		ProgramBusyCycles: 1,
	}
	for i := range r.flash {
		r.flash[i] = erasedByte
	}
	return r
}

// ClearLock clears CMDLK, the only way out of a FORCED_STOP lockout
// (spec.md "command register: ... CMDLK/FORCED_STOP 0xB3").
func (r *RV40) ClearLock() {
	r.cmdlk = false
	r.ilglerr = false
	r.state = rv40Idle
}

func (r *RV40) FlashBytes() []byte { return r.flash }

func (r *RV40) inFlash(addr uint32) bool {
	return addr >= r.FlashBase && addr < r.FlashBase+uint32(len(r.flash))
}

func (r *RV40) inCtrl(addr uint32) bool {
	return addr >= r.CtrlBase && addr < r.CtrlBase+0x0C
}

func (r *RV40) ReadMem(addr uint32, buf []byte) error {
	for i := range buf {
		b, err := r.readByte(addr + uint32(i))
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

func (r *RV40) readByte(addr uint32) (byte, error) {
	if r.inFlash(addr) {
		return r.flash[addr-r.FlashBase], nil
	}
	if r.inCtrl(addr) {
		word := r.readReg(addr - addr%4)
		return byte(word >> (8 * (addr % 4))), nil
	}
	return 0, target.NewFault(target.ErrCommLost, nil)
}

func (r *RV40) readReg(base uint32) uint32 {
	if base-r.CtrlBase != rv40FSTATR {
		return 0
	}
	var v uint32
	if r.busyCycles > 0 {
		r.busyCycles--
	} else {
		v |= fstatrFRDY
	}
	if r.ersprg {
		v |= fstatrERSERR | fstatrPRGERR
	}
	if r.cmdlk {
		v |= fstatrCMDLK
	}
	if r.ilglerr {
		v |= fstatrILGLCMDERR
	}
	return v
}

func (r *RV40) WriteMem(addr uint32, buf []byte) error {
	if r.inFlash(addr) {
		// The FACI owns all flash writes; direct stores bypass the
		// command sequencer and are rejected as locked.
		return target.NewFault(target.ErrFlashLocked, nil)
	}
	for i := 0; i < len(buf); i += 2 {
		n := len(buf) - i
		if n > 2 {
			n = 2
		}
		var v uint16
		for j := 0; j < n; j++ {
			v |= uint16(buf[i+j]) << (8 * j)
		}
		if err := r.writeReg(addr+uint32(i), v); err != nil {
			return err
		}
	}
	return nil
}

// writeReg drives the FACI command-area state machine one 16-bit word at a
// time. Every non-command-area register in this model is read-only.
func (r *RV40) writeReg(addr uint32, v uint16) error {
	if addr-r.CtrlBase != rv40CmdArea {
		return nil
	}
	if r.cmdlk {
		return nil
	}

	switch r.state {
	case rv40Idle:
		switch v {
		case rv40CmdErase:
			r.state = rv40ProgWantAddr // address step is shared with erase below
			r.want = -1                // sentinel: erase, not program
		case rv40CmdProgram:
			r.state = rv40ProgWantAddr
			r.want = 0
		case rv40CmdForcedStop:
			r.cmdlk = true
		default:
			r.ilglerr = true
		}

	case rv40ProgWantAddr:
		r.addr = r.FlashBase + uint32(v)
		if r.want == -1 {
			r.state = rv40EraseWantLatch
		} else {
			r.state = rv40ProgWantCount
		}

	case rv40EraseWantLatch:
		if v == rv40CmdLatch {
			r.erasePage(r.addr)
			r.busyCycles = r.EraseBusyCycles
		} else {
			r.ilglerr = true
		}
		r.state = rv40Idle

	case rv40ProgWantCount:
		r.want = int(v)
		r.data = make([]byte, 0, r.want*2)
		r.state = rv40ProgWantData

	case rv40ProgWantData:
		r.data = append(r.data, byte(v), byte(v>>8))
		if len(r.data) >= r.want*2 {
			r.state = rv40ProgWantLatch
		}

	case rv40ProgWantLatch:
		if v == rv40CmdLatch {
			r.programAt(r.addr, r.data)
			r.busyCycles = r.ProgramBusyCycles
		} else {
			r.ilglerr = true
		}
		r.state = rv40Idle
	}
	return nil
}

func (r *RV40) erasePage(addr uint32) {
	page := (addr - r.FlashBase) / r.PageSize
	start := page * r.PageSize
	for i := uint32(0); i < r.PageSize; i++ {
		r.flash[start+i] = r.ErasedByte
	}
}

func (r *RV40) programAt(addr uint32, data []byte) {
	off := addr - r.FlashBase
	for i, b := range data {
		r.flash[off+uint32(i)] &= b
	}
}

func (r *RV40) ReadMem32(addr uint32) (uint32, error) {
	var buf [4]byte
	if err := r.ReadMem(addr, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func (r *RV40) WriteMem32(addr uint32, v uint32) error {
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return r.WriteMem(addr, buf)
}

func (r *RV40) ReadMem16(addr uint32) (uint16, error) {
	var buf [2]byte
	if err := r.ReadMem(addr, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

func (r *RV40) WriteMem16(addr uint32, v uint16) error {
	return r.WriteMem(addr, []byte{byte(v), byte(v >> 8)})
}

func (r *RV40) ReadMem8(addr uint32) (byte, error) {
	return r.readByte(addr)
}

func (r *RV40) WriteMem8(addr uint32, v byte) error {
	return r.WriteMem(addr, []byte{v})
}

func (r *RV40) CheckError() bool {
	return r.ilglerr || r.ersprg
}
