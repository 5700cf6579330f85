// Package simflash provides simulated on-chip Flash controllers standing in
// for silicon in tests (spec.md §8: "a simulated flash controller standing
// in for silicon, exercised via the debug-accessor abstraction"). Each
// simulated controller implements accessor.DebugAccessor over a single
// flat address space covering both its register window and its backing
// Flash array, so driver code under test pokes it exactly the way it would
// poke real hardware.
package simflash

import "github.com/blackprobe/probecore/pkg/target"

// FPEC simulates an STM32-like "simple FPEC" controller (spec.md §4.H):
// a KEYR unlock sequence, a CR/SR pair with PG/PER/MER/STRT/LOCK and
// BSY/EOP/PGERR/WRPRTERR bits, and word-wise programming that obeys real
// flash physics (a program can only clear bits, never set them).
type FPEC struct {
	FlashBase uint32
	PageSize  uint32
	CtrlBase  uint32

	ErasedByte byte

	flash     []byte
	protected map[uint32]bool // page index -> write-protected

	keySeq      int
	unlocked    bool
	permaLocked bool

	cr, sr, ar uint32

	// OptionBase/OptionSize, set by EnableOptionBytes, carve out a second
	// simulated region gated by its own OPTKEYR unlock sequence, for
	// AT32-style option-byte programming (spec.md §8 S5).
	OptionBase uint32
	OptionSize uint32

	optionBytes []byte
	optKeySeq   int
	optUnlocked bool

	// OptionProgramFailAfter, if positive, makes the Nth option-byte
	// program call (1-indexed) report a program error instead of
	// succeeding, simulating a part that fails partway through an atomic
	// option rewrite (spec.md §8 S5).
	OptionProgramFailAfter int
	optionProgramCount     int

	// BusyCycles is how many status reads report BSY before an operation
	// completes. Tests raise these to exercise progress polling (spec.md
	// §8 S4); production drivers never see the field.
	EraseBusyCycles   int
	MassBusyCycles    int
	ProgramBusyCycles int

	busyCycles int
}

const (
	fpecKEYR    = 0x04
	fpecOPTKEYR = 0x08
	fpecSR      = 0x0C
	fpecCR      = 0x10
	fpecAR      = 0x14

	fpecKEY1 = 0x45670123
	fpecKEY2 = 0xCDEF89AB

	crPG    = 1 << 0
	crPER   = 1 << 1
	crMER   = 1 << 2
	crOPTPG = 1 << 4
	crOPTER = 1 << 5
	crSTRT  = 1 << 6
	crLOCK  = 1 << 7
	srBSY   = 1 << 0
	srPGERR = 1 << 2
	srWRPRT = 1 << 4
	srEOP   = 1 << 5
)

// NewFPEC builds an FPEC controller with a flash array of size bytes at
// flashBase, freshly erased to erasedByte, locked.
func NewFPEC(flashBase, size, pageSize, ctrlBase uint32, erasedByte byte) *FPEC {
	f := &FPEC{
		FlashBase:         flashBase,
		PageSize:          pageSize,
		CtrlBase:          ctrlBase,
		ErasedByte:        erasedByte,
		flash:             make([]byte, size),
		protected:         make(map[uint32]bool),
		cr:                crLOCK,
		EraseBusyCycles:   1,
		MassBusyCycles:    1,
		ProgramBusyCycles: 1,
	}
	for i := range f.flash {
		f.flash[i] = erasedByte
	}
	return f
}

// Protect marks the page containing addr as write-protected, simulating an
// option-byte-configured protected region (spec.md §8 property 6).
func (f *FPEC) Protect(addr uint32) {
	f.protected[(addr-f.FlashBase)/f.PageSize] = true
}

// Reset clears the permanently-locked KEYR state, simulating a core reset.
func (f *FPEC) Reset() {
	f.keySeq = 0
	f.unlocked = false
	f.permaLocked = false
	f.optKeySeq = 0
	f.optUnlocked = false
	f.cr = crLOCK
	f.sr = 0
	f.busyCycles = 0
}

// FlashBytes returns the live backing array for test assertions. Callers
// must not retain it past the controller's lifetime.
func (f *FPEC) FlashBytes() []byte { return f.flash }

// EnableOptionBytes carves out a simulated option-byte region of size
// bytes at base, freshly erased to 0xFF, gated by its own OPTKEYR unlock
// sequence independent of the main flash KEYR (spec.md §8 S5).
func (f *FPEC) EnableOptionBytes(base, size uint32) {
	f.OptionBase = base
	f.OptionSize = size
	f.optionBytes = make([]byte, size)
	for i := range f.optionBytes {
		f.optionBytes[i] = 0xFF
	}
}

// OptionBytes returns the live option-byte backing array for test
// assertions. Callers must not retain it past the controller's lifetime.
func (f *FPEC) OptionBytes() []byte { return f.optionBytes }

func (f *FPEC) inFlash(addr uint32) bool {
	return addr >= f.FlashBase && addr < f.FlashBase+uint32(len(f.flash))
}

func (f *FPEC) inOption(addr uint32) bool {
	return f.OptionSize > 0 && addr >= f.OptionBase && addr < f.OptionBase+f.OptionSize
}

func (f *FPEC) inCtrl(addr uint32) bool {
	return addr >= f.CtrlBase && addr < f.CtrlBase+0x18
}

func (f *FPEC) ReadMem(addr uint32, buf []byte) error {
	for i := range buf {
		b, err := f.readByte(addr + uint32(i))
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

func (f *FPEC) readByte(addr uint32) (byte, error) {
	if f.inFlash(addr) {
		return f.flash[addr-f.FlashBase], nil
	}
	if f.inOption(addr) {
		return f.optionBytes[addr-f.OptionBase], nil
	}
	if f.inCtrl(addr) {
		word := f.readReg(addr - addr%4)
		return byte(word >> (8 * (addr % 4))), nil
	}
	return 0, target.NewFault(target.ErrCommLost, nil)
}

func (f *FPEC) readReg(base uint32) uint32 {
	switch base - f.CtrlBase {
	case fpecKEYR:
		return 0
	case fpecSR:
		sr := f.sr
		if f.busyCycles > 0 {
			f.busyCycles--
			sr |= srBSY
		} else {
			sr |= srEOP
		}
		return sr
	case fpecCR:
		cr := f.cr &^ crSTRT
		if !f.unlocked {
			cr |= crLOCK
		}
		return cr
	case fpecAR:
		return f.ar
	default:
		return 0
	}
}

func (f *FPEC) WriteMem(addr uint32, buf []byte) error {
	if f.inFlash(addr) {
		return f.writeFlash(addr, buf)
	}
	if f.inOption(addr) {
		return f.writeOption(addr, buf)
	}
	for i := 0; i < len(buf); i += 4 {
		n := len(buf) - i
		if n > 4 {
			n = 4
		}
		var v uint32
		for j := 0; j < n; j++ {
			v |= uint32(buf[i+j]) << (8 * j)
		}
		if err := f.writeReg(addr+uint32(i), v); err != nil {
			return err
		}
	}
	return nil
}

func (f *FPEC) writeFlash(addr uint32, buf []byte) error {
	if f.cr&crPG == 0 {
		return target.NewFault(target.ErrFlashLocked, nil)
	}
	page := (addr - f.FlashBase) / f.PageSize
	if f.protected[page] {
		f.sr |= srWRPRT
		f.busyCycles = f.ProgramBusyCycles
		return nil
	}
	off := addr - f.FlashBase
	for i, b := range buf {
		// Real NAND/NOR flash program can only clear bits; it never sets
		// one back to 1 without an erase.
		f.flash[off+uint32(i)] &= b
	}
	f.busyCycles = f.ProgramBusyCycles
	return nil
}

func (f *FPEC) writeReg(addr uint32, v uint32) error {
	switch addr - f.CtrlBase {
	case fpecKEYR:
		f.handleKey(v)
	case fpecOPTKEYR:
		f.handleOptKey(v)
	case fpecAR:
		f.ar = v
	case fpecCR:
		f.handleCR(v)
	}
	return nil
}

func (f *FPEC) handleKey(v uint32) {
	if f.permaLocked {
		return
	}
	switch f.keySeq {
	case 0:
		if v == fpecKEY1 {
			f.keySeq = 1
		} else {
			f.permaLocked = true
		}
	case 1:
		if v == fpecKEY2 {
			f.unlocked = true
			f.cr &^= crLOCK
			f.keySeq = 0
		} else {
			f.permaLocked = true
			f.keySeq = 0
		}
	}
}

// handleOptKey runs the OPTKEYR unlock sequence, independent of the main
// KEYR lock (spec.md §8 S5: option-byte programming needs its own unlock).
func (f *FPEC) handleOptKey(v uint32) {
	switch f.optKeySeq {
	case 0:
		if v == fpecKEY1 {
			f.optKeySeq = 1
		}
	case 1:
		if v == fpecKEY2 {
			f.optUnlocked = true
		}
		f.optKeySeq = 0
	}
}

func (f *FPEC) handleCR(v uint32) {
	if v&crLOCK != 0 {
		f.unlocked = false
		f.keySeq = 0
		f.cr = crLOCK
		return
	}
	f.cr = v &^ crLOCK
	if v&crSTRT == 0 {
		return
	}
	if v&crOPTER != 0 {
		if !f.optUnlocked {
			f.sr |= srWRPRT
			return
		}
		for i := range f.optionBytes {
			f.optionBytes[i] = 0xFF
		}
		f.busyCycles = f.EraseBusyCycles
		return
	}
	if !f.unlocked {
		f.sr |= srWRPRT
		return
	}
	switch {
	case v&crPER != 0:
		f.erasePage(f.ar)
		f.busyCycles = f.EraseBusyCycles
	case v&crMER != 0:
		for i := range f.flash {
			f.flash[i] = f.ErasedByte
		}
		f.busyCycles = f.MassBusyCycles
	}
}

// writeOption programs buf into the option-byte region, gated by OPTPG the
// same way writeFlash is gated by PG, and honouring the same AND-only
// physical write semantics.
func (f *FPEC) writeOption(addr uint32, buf []byte) error {
	if f.cr&crOPTPG == 0 {
		return target.NewFault(target.ErrFlashLocked, nil)
	}
	f.optionProgramCount++
	if f.OptionProgramFailAfter > 0 && f.optionProgramCount >= f.OptionProgramFailAfter {
		f.sr |= srPGERR
		f.busyCycles = f.ProgramBusyCycles
		return nil
	}
	off := addr - f.OptionBase
	for i, b := range buf {
		f.optionBytes[off+uint32(i)] &= b
	}
	f.busyCycles = f.ProgramBusyCycles
	return nil
}

func (f *FPEC) erasePage(addr uint32) {
	page := (addr - f.FlashBase) / f.PageSize
	if f.protected[page] {
		f.sr |= srWRPRT
		return
	}
	start := page * f.PageSize
	for i := uint32(0); i < f.PageSize; i++ {
		f.flash[start+i] = f.ErasedByte
	}
}

func (f *FPEC) ReadMem32(addr uint32) (uint32, error) {
	// An aligned word read of a control register is one status read, so it
	// consumes one busy cycle rather than one per byte.
	if f.inCtrl(addr) && addr%4 == 0 {
		return f.readReg(addr), nil
	}
	var buf [4]byte
	if err := f.ReadMem(addr, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func (f *FPEC) WriteMem32(addr uint32, v uint32) error {
	buf := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	return f.WriteMem(addr, buf)
}

func (f *FPEC) ReadMem16(addr uint32) (uint16, error) {
	var buf [2]byte
	if err := f.ReadMem(addr, buf[:]); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

func (f *FPEC) WriteMem16(addr uint32, v uint16) error {
	return f.WriteMem(addr, []byte{byte(v), byte(v >> 8)})
}

func (f *FPEC) ReadMem8(addr uint32) (byte, error) {
	return f.readByte(addr)
}

func (f *FPEC) WriteMem8(addr uint32, v byte) error {
	return f.WriteMem(addr, []byte{v})
}

func (f *FPEC) CheckError() bool { return false }
