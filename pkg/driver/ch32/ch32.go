// Package ch32 implements the CH32F1 "fast mode" flash family driver
// (spec.md §4.H): 128-byte pages loaded as eight 16-byte sub-pages, each
// latched with BUF_LOAD before the final START strobe commits the whole
// page. It also carries the vendor-undocumented MAGIC(addr) sequence,
// gated behind an explicit capability flag rather than run unconditionally
// (spec.md §9 design notes).
package ch32

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/target"
)

const (
	regKEYR = 0x04
	regSR   = 0x0C
	regCR   = 0x10
	regAR   = 0x14
	regMF   = 0x1C // vendor-undocumented "magic" register

	key1 = 0x45670123
	key2 = 0xCDEF89AB

	crPG    = 1 << 0
	crPER   = 1 << 1
	crMER   = 1 << 2
	crFTPG  = 1 << 4 // fast-program mode
	crBUFLD = 1 << 5 // latch one 16-byte sub-page into the page buffer
	crSTRT  = 1 << 6
	crLOCK  = 1 << 7

	srBSY   = 1 << 0
	srPGERR = 1 << 2
	srWRPRT = 1 << 4

	fastPageSize = 128
	subPageSize  = 16
)

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := target.KindOf(err); ok {
		return err
	}
	return target.NewFault(target.ErrCommLost, err)
}

// FPEC is the FlashOps implementation for one CH32F1 fast-mode instance.
type FPEC struct {
	Acc      accessor.DebugAccessor
	CtrlBase uint32
	PageSize uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	Progress       target.ProgressFunc

	// EnableUndocumentedMagic gates MagicSequence. Off by default; a
	// caller that knows it wants the vendor-undocumented MAGIC(addr)
	// behaviour must opt in explicitly.
	EnableUndocumentedMagic bool
}

func (f *FPEC) Prepare() error {
	if err := f.Acc.WriteMem32(f.CtrlBase+regKEYR, key1); err != nil {
		return wrap(err)
	}
	if err := f.Acc.WriteMem32(f.CtrlBase+regKEYR, key2); err != nil {
		return wrap(err)
	}
	cr, err := f.Acc.ReadMem32(f.CtrlBase + regCR)
	if err != nil {
		return wrap(err)
	}
	if cr&crLOCK != 0 {
		return target.NewFault(target.ErrFlashLocked, nil)
	}
	return nil
}

func (f *FPEC) Erase(addr, length uint32) error {
	for off := uint32(0); off < length; off += f.PageSize {
		if err := f.erasePage(addr + off); err != nil {
			return err
		}
	}
	return nil
}

func (f *FPEC) erasePage(pageAddr uint32) error {
	if err := f.Acc.WriteMem32(f.CtrlBase+regAR, pageAddr); err != nil {
		return wrap(err)
	}
	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crPER); err != nil {
		return wrap(err)
	}
	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crPER|crSTRT); err != nil {
		return wrap(err)
	}
	if err := f.pollSR(f.EraseTimeout, "erasing", pageAddr, f.PageSize); err != nil {
		return err
	}
	return f.Acc.WriteMem32(f.CtrlBase+regCR, 0)
}

// Write loads buf (exactly 128 bytes, the region's WriteSize) as eight
// 16-byte sub-pages via BUF_LOAD, then strobes START once to commit the
// whole page.
func (f *FPEC) Write(addr uint32, buf []byte) error {
	if len(buf) != fastPageSize {
		return target.NewRangeFault(target.ErrUnalignedAccess, addr, uint32(len(buf)), nil)
	}

	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crFTPG); err != nil {
		return wrap(err)
	}
	for i := 0; i < fastPageSize; i += subPageSize {
		sub := buf[i : i+subPageSize]
		if err := f.Acc.WriteMem(addr+uint32(i), sub); err != nil {
			return wrap(err)
		}
		if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crFTPG|crBUFLD); err != nil {
			return wrap(err)
		}
		if err := f.pollSR(f.ProgramTimeout, "loading sub-page", addr+uint32(i), subPageSize); err != nil {
			return err
		}
	}

	if err := f.Acc.WriteMem32(f.CtrlBase+regAR, addr); err != nil {
		return wrap(err)
	}
	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crFTPG|crSTRT); err != nil {
		return wrap(err)
	}
	if err := f.pollSR(f.ProgramTimeout, "programming", addr, fastPageSize); err != nil {
		return err
	}
	return f.Acc.WriteMem32(f.CtrlBase+regCR, 0)
}

func (f *FPEC) pollSR(timeout time.Duration, message string, addr, length uint32) error {
	tk := driver.NewTimeoutTicker(timeout, f.Progress)
	return driver.PollBusy(tk, message, func() (bool, error) {
		sr, err := f.Acc.ReadMem32(f.CtrlBase + regSR)
		if err != nil {
			return false, wrap(err)
		}
		if sr&srWRPRT != 0 {
			return false, target.NewRangeFault(target.ErrWriteProtected, addr, length, nil)
		}
		if sr&srPGERR != 0 {
			return false, target.NewRangeFault(target.ErrProgramError, addr, length, nil)
		}
		return sr&srBSY != 0, nil
	})
}

func (f *FPEC) Done() error {
	return wrap(f.Acc.WriteMem32(f.CtrlBase+regCR, crLOCK))
}

func (f *FPEC) MassErase(progress target.ProgressFunc) error {
	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crMER); err != nil {
		return wrap(err)
	}
	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crMER|crSTRT); err != nil {
		return wrap(err)
	}
	tk := driver.NewTimeoutTicker(f.EraseTimeout, progress)
	if err := driver.PollBusy(tk, "mass erasing", func() (bool, error) {
		sr, err := f.Acc.ReadMem32(f.CtrlBase + regSR)
		if err != nil {
			return false, wrap(err)
		}
		return sr&srBSY != 0, nil
	}); err != nil {
		return err
	}
	return f.Acc.WriteMem32(f.CtrlBase+regCR, 0)
}

// MagicSequence reproduces the vendor-undocumented MAGIC(addr) behaviour
// verbatim: read the flash word at addr, XOR it with 0x100, and write the
// result back into the magic register. It runs only when
// EnableUndocumentedMagic is set.
func (f *FPEC) MagicSequence(addr uint32) error {
	if !f.EnableUndocumentedMagic {
		return target.NewFault(target.ErrUnsupported, nil)
	}
	v, err := f.Acc.ReadMem32(addr)
	if err != nil {
		return wrap(err)
	}
	return wrap(f.Acc.WriteMem32(f.CtrlBase+regMF, v^0x100))
}

// Layout describes one CH32F1 fast-mode instance's memory map and
// timeouts.
type Layout struct {
	FlashBase, FlashSize uint32
	PageSize             uint32
	ErasedByte           byte
	CtrlBase             uint32

	EraseTimeout            time.Duration
	ProgramTimeout          time.Duration
	EnableUndocumentedMagic bool
}

// NewProbe builds a probe claiming targets match accepts, with WriteSize
// fixed at 128 bytes (fast-mode's sub-page page size).
func NewProbe(name string, match func(target.Identity) bool, layout Layout) driver.ProbeFunc {
	return func(t *target.Target) (bool, error) {
		if !match(t.Identity) {
			return false, nil
		}
		ops := &FPEC{
			Acc:                     t.Accessor,
			CtrlBase:                layout.CtrlBase,
			PageSize:                layout.PageSize,
			EraseTimeout:            layout.EraseTimeout,
			ProgramTimeout:          layout.ProgramTimeout,
			EnableUndocumentedMagic: layout.EnableUndocumentedMagic,
		}
		if err := t.AddFlash(layout.FlashBase, layout.FlashSize, layout.PageSize, fastPageSize, layout.ErasedByte, ops); err != nil {
			return false, err
		}
		t.Driver = name
		return true, nil
	}
}
