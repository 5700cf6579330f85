// Package renesas implements the Renesas RA / RV40 flash macro family
// driver (spec.md §4.H): FENTRYR handshake, FACI command-area protocol
// (0x20/0xD0 erase, 0xE8+halfword-stream+0xD0 program), CMDLK lockout on
// FORCED_STOP (0xB3).
package renesas

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/target"
)

const (
	regFENTRYR = 0x00
	regCmdArea = 0x04
	regFSTATR  = 0x0C

	fentryKey    = 0xAA00
	fentryPEMode = 0x0001

	cmdErase      = 0x20
	cmdLatch      = 0xD0
	cmdProgram    = 0xE8
	cmdForcedStop = 0xB3

	fstatrFRDY       = 1 << 6
	fstatrERSERR     = 1 << 2
	fstatrPRGERR     = 1 << 1
	fstatrCMDLK      = 1 << 4
	fstatrILGLCMDERR = 1 << 3
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

// RV40 is the FlashOps implementation for one RV40 macro instance.
type RV40 struct {
	Acc      accessor.DebugAccessor
	CtrlBase uint32
	PageSize uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	Progress       target.ProgressFunc
}

// Prepare runs the FENTRYR handshake that enters P/E mode: one keyed write
// of the P/E-mode bit, then a read-back; if the bit did not stick the
// controller is reported locked (spec.md §4.H "a second flash mode entry
// protection register").
func (r *RV40) Prepare() error {
	if err := r.Acc.WriteMem16(r.CtrlBase+regFENTRYR, fentryKey|fentryPEMode); err != nil {
		return wrap(err)
	}
	v, err := r.Acc.ReadMem16(r.CtrlBase + regFENTRYR)
	if err != nil {
		return wrap(err)
	}
	if v&fentryPEMode == 0 {
		return target.NewFault(target.ErrFlashLocked, nil)
	}
	return nil
}

func (r *RV40) Erase(addr, length uint32) error {
	for off := uint32(0); off < length; off += r.PageSize {
		if err := r.erasePage(addr + off); err != nil {
			return err
		}
	}
	return nil
}

func (r *RV40) erasePage(pageAddr uint32) error {
	if err := r.Acc.WriteMem16(r.CtrlBase+regCmdArea, cmdErase); err != nil {
		return wrap(err)
	}
	if err := r.Acc.WriteMem16(r.CtrlBase+regCmdArea, uint16(pageAddr)); err != nil {
		return wrap(err)
	}
	if err := r.Acc.WriteMem16(r.CtrlBase+regCmdArea, cmdLatch); err != nil {
		return wrap(err)
	}
	return r.pollDone(r.EraseTimeout, "erasing", pageAddr, r.PageSize)
}

// Write issues one 0xE8 program command per call, streaming buf as
// halfwords; callers guarantee WriteSize alignment.
func (r *RV40) Write(addr uint32, buf []byte) error {
	if err := r.Acc.WriteMem16(r.CtrlBase+regCmdArea, cmdProgram); err != nil {
		return wrap(err)
	}
	if err := r.Acc.WriteMem16(r.CtrlBase+regCmdArea, uint16(addr)); err != nil {
		return wrap(err)
	}
	count := len(buf) / 2
	if err := r.Acc.WriteMem16(r.CtrlBase+regCmdArea, uint16(count)); err != nil {
		return wrap(err)
	}
	for i := 0; i+2 <= len(buf); i += 2 {
		hw := uint16(buf[i]) | uint16(buf[i+1])<<8
		if err := r.Acc.WriteMem16(r.CtrlBase+regCmdArea, hw); err != nil {
			return wrap(err)
		}
	}
	if err := r.Acc.WriteMem16(r.CtrlBase+regCmdArea, cmdLatch); err != nil {
		return wrap(err)
	}
	return r.pollDone(r.ProgramTimeout, "programming", addr, uint32(len(buf)))
}

func (r *RV40) pollDone(timeout time.Duration, message string, addr, length uint32) error {
	tk := driver.NewTimeoutTicker(timeout, r.Progress)
	return driver.PollBusy(tk, message, func() (bool, error) {
		v, err := r.Acc.ReadMem32(r.CtrlBase + regFSTATR)
		if err != nil {
			return false, wrap(err)
		}
		if v&fstatrCMDLK != 0 {
			return false, target.NewRangeFault(target.ErrFlashLocked, addr, length, nil)
		}
		if v&fstatrILGLCMDERR != 0 {
			return false, target.NewRangeFault(target.ErrProgramError, addr, length, nil)
		}
		if v&(fstatrERSERR|fstatrPRGERR) != 0 {
			return false, target.NewRangeFault(target.ErrProgramError, addr, length, nil)
		}
		return v&fstatrFRDY == 0, nil
	})
}

// Done drops P/E mode via FENTRYR.
func (r *RV40) Done() error {
	return wrap(r.Acc.WriteMem16(r.CtrlBase+regFENTRYR, fentryKey))
}

// Layout describes one RV40 instance's memory map and timeouts.
type Layout struct {
	FlashBase, FlashSize uint32
	PageSize, WriteSize  uint32
	ErasedByte           byte
	CtrlBase             uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
}

// NewProbe builds a probe claiming targets match accepts.
func NewProbe(name string, match func(target.Identity) bool, layout Layout) driver.ProbeFunc {
	return func(t *target.Target) (bool, error) {
		if !match(t.Identity) {
			return false, nil
		}
		ops := &RV40{
			Acc:            t.Accessor,
			CtrlBase:       layout.CtrlBase,
			PageSize:       layout.PageSize,
			EraseTimeout:   layout.EraseTimeout,
			ProgramTimeout: layout.ProgramTimeout,
		}
		if err := t.AddFlash(layout.FlashBase, layout.FlashSize, layout.PageSize, layout.WriteSize, layout.ErasedByte, ops); err != nil {
			return false, err
		}
		t.Driver = name
		return true, nil
	}
}
