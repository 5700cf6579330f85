package simflash

import "github.com/blackprobe/probecore/pkg/target"

// Core simulates a halted/running CPU core over a flat RAM image, for
// testing the stub runner (spec.md §8 S6) without real silicon. It
// implements accessor.CoreControl. Writes to the address range
// [FlashBase, FlashBase+len(flash)) are redirected to the given flash
// array so a stub's copy loop can "program" it, honouring the same
// AND-only physical write semantics the register-level controllers use.
type Core struct {
	RAM   []byte
	Base  uint32 // address RAM[0] corresponds to
	Flash *FPEC  // optional; nil if the stub under test never touches flash

	regs    [16]uint32
	pc      uint32
	halted  bool
	checked bool

	// ExitStatus is what Resume writes into StatusReg when it halts the
	// core. Tests set it before Resume, or OnRun sets it during Resume;
	// zero is a successful exit.
	ExitStatus uint32
	// AutoComplete is not consulted: Resume always halts the core at
	// Sentinel at once with ExitStatus staged, simulating the RAM stub
	// running to completion instantly, since this package never executes
	// real target code.
	AutoComplete bool
	Sentinel     uint32
	StatusReg    int
	// OnRun, if set, is invoked by Resume before halting at the sentinel;
	// tests use it to perform the copy the real stub would have done and
	// to set ExitStatus.
	OnRun func(core *Core)
}

func NewCore(base uint32, size uint32) *Core {
	return &Core{RAM: make([]byte, size), Base: base, halted: true}
}

func (c *Core) inRAM(addr uint32) bool {
	return addr >= c.Base && addr < c.Base+uint32(len(c.RAM))
}

func (c *Core) ReadMem(addr uint32, buf []byte) error {
	if c.Flash != nil && c.Flash.inFlash(addr) {
		return c.Flash.ReadMem(addr, buf)
	}
	if !c.inRAM(addr) || !c.inRAM(addr+uint32(len(buf))-1) {
		return target.NewFault(target.ErrCommLost, nil)
	}
	copy(buf, c.RAM[addr-c.Base:])
	return nil
}

func (c *Core) WriteMem(addr uint32, buf []byte) error {
	if c.Flash != nil && c.Flash.inFlash(addr) {
		return c.Flash.WriteMem(addr, buf)
	}
	if !c.inRAM(addr) || !c.inRAM(addr+uint32(len(buf))-1) {
		return target.NewFault(target.ErrCommLost, nil)
	}
	copy(c.RAM[addr-c.Base:], buf)
	return nil
}

func (c *Core) ReadMem32(addr uint32) (uint32, error) {
	var b [4]byte
	if err := c.ReadMem(addr, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (c *Core) WriteMem32(addr uint32, v uint32) error {
	return c.WriteMem(addr, []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func (c *Core) ReadMem16(addr uint32) (uint16, error) {
	var b [2]byte
	if err := c.ReadMem(addr, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (c *Core) WriteMem16(addr uint32, v uint16) error {
	return c.WriteMem(addr, []byte{byte(v), byte(v >> 8)})
}

func (c *Core) ReadMem8(addr uint32) (byte, error) {
	var b [1]byte
	if err := c.ReadMem(addr, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Core) WriteMem8(addr uint32, v byte) error {
	return c.WriteMem(addr, []byte{v})
}

func (c *Core) CheckError() bool { return c.checked }

func (c *Core) Halt() error   { c.halted = true; return nil }
func (c *Core) IsHalted() (bool, error) { return c.halted, nil }

// Resume simulates running the downloaded stub to completion in one step:
// it runs OnRun (if set) to perform whatever memory side effects the real
// stub would have, then halts at Sentinel with ExitStatus staged into
// StatusReg.
func (c *Core) Resume() error {
	c.halted = false
	if c.OnRun != nil {
		c.OnRun(c)
	}
	c.pc = c.Sentinel
	c.regs[c.StatusReg] = c.ExitStatus
	c.halted = true
	return nil
}

func (c *Core) ReadPC() (uint32, error)  { return c.pc, nil }
func (c *Core) WritePC(pc uint32) error  { c.pc = pc; return nil }

func (c *Core) WriteReg(n int, v uint32) error {
	if n < 0 || n >= len(c.regs) {
		return target.NewFault(target.ErrCommLost, nil)
	}
	c.regs[n] = v
	return nil
}

func (c *Core) ReadReg(n int) (uint32, error) {
	if n < 0 || n >= len(c.regs) {
		return 0, target.NewFault(target.ErrCommLost, nil)
	}
	return c.regs[n], nil
}
