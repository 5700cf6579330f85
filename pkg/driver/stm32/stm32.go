// Package stm32 implements the STM32-like "simple FPEC" family driver
// (spec.md §4.H): KEY1/KEY2 unlock, page erase, word-wise program, status
// bits cleared by write-1-to-clear.
package stm32

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

	key1 = 0x45670123
	key2 = 0xCDEF89AB

	crPG   = 1 << 0
	crPER  = 1 << 1
	crMER  = 1 << 2
	crSTRT = 1 << 6
	crLOCK = 1 << 7

	srBSY   = 1 << 0
	srPGERR = 1 << 2
	srWRPRT = 1 << 4
)

// FPEC is the FlashOps implementation for one FPEC-style controller
// instance. A target with a single bank has one FPEC shared by all of its
// Flash regions.
type FPEC struct {
	Acc      accessor.DebugAccessor
	CtrlBase uint32
	PageSize uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	MassTimeout    time.Duration
	Progress       target.ProgressFunc
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := target.KindOf(err); ok {
		return err
	}
	return target.NewFault(target.ErrCommLost, err)
}

// Prepare runs the KEY1/KEY2 unlock sequence. A rejected sequence
// permanently re-locks the controller until reset — the caller gets
// ErrFlashLocked back either way since there is no useful retry here.
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

// Erase strobes a page erase for each PageSize-aligned page covering
// [addr, addr+length).
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

	tk := driver.NewTimeoutTicker(f.EraseTimeout, f.Progress)
	if err := driver.PollBusy(tk, "erasing", func() (bool, error) {
		sr, err := f.Acc.ReadMem32(f.CtrlBase + regSR)
		if err != nil {
			return false, wrap(err)
		}
		if sr&srWRPRT != 0 {
			return false, target.NewRangeFault(target.ErrWriteProtected, pageAddr, f.PageSize, nil)
		}
		if sr&srPGERR != 0 {
			return false, target.NewRangeFault(target.ErrProgramError, pageAddr, f.PageSize, nil)
		}
		return sr&srBSY != 0, nil
	}); err != nil {
		return err
	}
	return f.Acc.WriteMem32(f.CtrlBase+regCR, 0)
}

// Write programs buf word by word; callers (pkg/flashsvc) guarantee addr
// and len(buf) are WriteSize (4-byte) aligned.
func (f *FPEC) Write(addr uint32, buf []byte) error {
	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crPG); err != nil {
		return wrap(err)
	}
	for i := 0; i+4 <= len(buf); i += 4 {
		word := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
		if err := f.Acc.WriteMem32(addr+uint32(i), word); err != nil {
			return wrap(err)
		}

		wordAddr := addr + uint32(i)
		tk := driver.NewTimeoutTicker(f.ProgramTimeout, f.Progress)
		if err := driver.PollBusy(tk, "programming", func() (bool, error) {
			sr, err := f.Acc.ReadMem32(f.CtrlBase + regSR)
			if err != nil {
				return false, wrap(err)
			}
			if sr&srWRPRT != 0 {
				return false, target.NewRangeFault(target.ErrWriteProtected, wordAddr, 4, nil)
			}
			if sr&srPGERR != 0 {
				return false, target.NewRangeFault(target.ErrProgramError, wordAddr, 4, nil)
			}
			return sr&srBSY != 0, nil
		}); err != nil {
			return err
		}
	}
	return f.Acc.WriteMem32(f.CtrlBase+regCR, 0)
}

// Done sets LOCK, leaving P/E mode.
func (f *FPEC) Done() error {
	return wrap(f.Acc.WriteMem32(f.CtrlBase+regCR, crLOCK))
}

// MassErase strobes MER+STRT and polls to completion, satisfying
// target.MassEraser.
func (f *FPEC) MassErase(progress target.ProgressFunc) error {
	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crMER); err != nil {
		return wrap(err)
	}
	if err := f.Acc.WriteMem32(f.CtrlBase+regCR, crMER|crSTRT); err != nil {
		return wrap(err)
	}
	tk := driver.NewTimeoutTicker(f.MassTimeout, progress)
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

// Layout describes the memory map and timeouts for one FPEC instance.
type Layout struct {
	FlashBase, FlashSize uint32
	PageSize, WriteSize  uint32
	ErasedByte           byte
	CtrlBase             uint32
	RAMBase, RAMSize     uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	MassTimeout    time.Duration
}

// NewProbe builds a probe that claims a target when match accepts its
// Identity, then populates the memory map and installs the FPEC ops.
func NewProbe(name string, match func(target.Identity) bool, layout Layout) driver.ProbeFunc {
	return func(t *target.Target) (bool, error) {
		if !match(t.Identity) {
			return false, nil
		}
		ops := &FPEC{
			Acc:            t.Accessor,
			CtrlBase:       layout.CtrlBase,
			PageSize:       layout.PageSize,
			EraseTimeout:   layout.EraseTimeout,
			ProgramTimeout: layout.ProgramTimeout,
			MassTimeout:    layout.MassTimeout,
		}
		if err := t.AddFlash(layout.FlashBase, layout.FlashSize, layout.PageSize, layout.WriteSize, layout.ErasedByte, ops); err != nil {
			return false, err
		}
		if layout.RAMSize > 0 {
			if err := t.AddRAM(layout.RAMBase, layout.RAMSize, target.Width32); err != nil {
				return false, err
			}
		}
		t.Driver = name
		return true, nil
	}
}
