// Package xmega implements the AVR XMEGA NVM controller family driver
// (spec.md §4.H): page-buffer programming with a CCP (configuration change
// protection) unlock sequence required before every privileged CTRLA
// strobe, and 8-bit-width RAM/Flash access throughout since this is an AVR
// core rather than a Cortex-M.
package xmega

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/target"
)

const (
	regCCP    = 0x04
	regCMD    = 0x0A
	regCTRLA  = 0x0B
	regSTATUS = 0x0F

	ccpSPMChange = 0x9D

	cmdEraseWritePage = 0x2E
	cmdErasePage      = 0x2B
	cmdLoadPageBuffer = 0x23

	ctrlaStart = 1 << 0

	statusBusy = 1 << 0
	statusErr  = 1 << 1
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

// FlashOps is the FlashOps implementation for one XMEGA NVM controller.
type FlashOps struct {
	Acc            accessor.DebugAccessor
	CtrlBase       uint32
	PageSize       uint32
	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	Progress       target.ProgressFunc
}

func (f *FlashOps) Prepare() error {
	_, err := f.Acc.ReadMem8(f.CtrlBase + regSTATUS)
	return wrap(err)
}

// strobe performs the CCP-unlock-then-CTRLA idiom every privileged NVM
// command needs: the unlock only holds for the instruction immediately
// following it, so strobe writes CMD first, then the CCP key, then CTRLA.
func (f *FlashOps) strobe(cmd byte) error {
	if err := f.Acc.WriteMem8(f.CtrlBase+regCMD, cmd); err != nil {
		return wrap(err)
	}
	if err := f.Acc.WriteMem8(f.CtrlBase+regCCP, ccpSPMChange); err != nil {
		return wrap(err)
	}
	return wrap(f.Acc.WriteMem8(f.CtrlBase+regCTRLA, ctrlaStart))
}

func (f *FlashOps) poll(timeout time.Duration, message string, addr, length uint32) error {
	tk := driver.NewTimeoutTicker(timeout, f.Progress)
	return driver.PollBusy(tk, message, func() (bool, error) {
		v, err := f.Acc.ReadMem8(f.CtrlBase + regSTATUS)
		if err != nil {
			return false, wrap(err)
		}
		if v&statusErr != 0 {
			return false, target.NewRangeFault(target.ErrProgramError, addr, length, nil)
		}
		return v&statusBusy != 0, nil
	})
}

func (f *FlashOps) Erase(addr, length uint32) error {
	for off := uint32(0); off < length; off += f.PageSize {
		pageAddr := addr + off
		if err := f.strobe(cmdErasePage); err != nil {
			return err
		}
		if err := f.poll(f.EraseTimeout, "erasing", pageAddr, f.PageSize); err != nil {
			return err
		}
	}
	return nil
}

// Write loads buf into the page buffer byte by byte (the XMEGA page
// buffer has no word-wide port) then strobes an erase-and-write-page
// command, which also serves as the page's implicit re-erase.
func (f *FlashOps) Write(addr uint32, buf []byte) error {
	for i, b := range buf {
		if err := f.Acc.WriteMem8(addr+uint32(i), b); err != nil {
			return wrap(err)
		}
		if err := f.strobe(cmdLoadPageBuffer); err != nil {
			return err
		}
	}
	if err := f.strobe(cmdEraseWritePage); err != nil {
		return err
	}
	return f.poll(f.ProgramTimeout, "programming", addr, uint32(len(buf)))
}

func (f *FlashOps) Done() error { return nil }

// Layout describes one XMEGA instance.
type Layout struct {
	FlashBase, FlashSize uint32
	PageSize, WriteSize  uint32
	ErasedByte           byte
	CtrlBase             uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
}

// NewProbe builds a probe for one XMEGA instance.
func NewProbe(name string, match func(target.Identity) bool, layout Layout) driver.ProbeFunc {
	return func(t *target.Target) (bool, error) {
		if !match(t.Identity) {
			return false, nil
		}
		ops := &FlashOps{
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
