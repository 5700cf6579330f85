// Package accessor defines the narrow "debug memory access" interface the
// core consumes from the debug transport (SWD/JTAG/ADIv5 — out of scope for
// this module, spec.md §6). Every driver and the flash dispatcher talk to
// the target exclusively through this interface.
package accessor

// DebugAccessor reads and writes the target's address space. All methods
// are synchronous; widths must match the region descriptor or the caller
// gets ErrUnaligned back from the region dispatcher before an accessor
// method is even invoked.
type DebugAccessor interface {
	// ReadMem reads len(buf) bytes starting at addr into buf.
	ReadMem(addr uint32, buf []byte) error
	// WriteMem writes buf starting at addr.
	WriteMem(addr uint32, buf []byte) error

	ReadMem32(addr uint32) (uint32, error)
	WriteMem32(addr uint32, v uint32) error
	ReadMem16(addr uint32) (uint16, error)
	WriteMem16(addr uint32, v uint16) error
	ReadMem8(addr uint32) (byte, error)
	WriteMem8(addr uint32, v byte) error

	// CheckError reports whether the transport has seen a fault since the
	// last call to CheckError, and clears the flag.
	CheckError() bool
}

// CoreControl is the subset of debug-transport operations the stub runner
// needs beyond plain memory access: halting, resuming, and reading/writing
// the core's integer registers and program counter (spec.md §4.F).
type CoreControl interface {
	DebugAccessor

	// Halt stops the core.
	Halt() error
	// Resume starts the core running from its current PC.
	Resume() error
	// IsHalted reports whether the core is currently halted.
	IsHalted() (bool, error)
	// ReadPC / WritePC access the core's program counter.
	ReadPC() (uint32, error)
	WritePC(pc uint32) error
	// WriteReg stages an argument into the numbered integer argument
	// register (0-based: arg 0, arg 1, ...).
	WriteReg(n int, v uint32) error
	// ReadReg reads back the numbered integer register (used to read the
	// stub's exit status out of its designated return register).
	ReadReg(n int) (uint32, error)
}
