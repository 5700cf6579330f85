// Package mspm0 implements the TI MSPM0 family driver (spec.md §4.H): a
// single command register and execute strobe, no KEYR unlock sequence —
// the NVM controller accepts commands directly while the debugger holds
// the core halted.
package mspm0

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/target"
)

const (
	regCMD    = 0x00
	regCMDEXEC = 0x04
	regSTATUS = 0x08

	cmdErase   = 0x2
	cmdProgram = 0x1
	cmdMass    = 0x3

	execStart = 1

	statusBusy  = 1 << 0
	statusFail  = 1 << 1
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

// FlashOps is the FlashOps implementation for one MSPM0 NVM controller.
type FlashOps struct {
	Acc            accessor.DebugAccessor
	CtrlBase       uint32
	SectorSize     uint32
	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	MassTimeout    time.Duration
	Progress       target.ProgressFunc
}

func (f *FlashOps) Prepare() error {
	_, err := f.Acc.ReadMem32(f.CtrlBase + regSTATUS)
	return wrap(err)
}

func (f *FlashOps) execute(cmd uint32, addr, length uint32, timeout time.Duration, message string) error {
	if err := f.Acc.WriteMem32(f.CtrlBase+regCMD, cmd); err != nil {
		return wrap(err)
	}
	if err := f.Acc.WriteMem32(f.CtrlBase+regCMDEXEC, execStart); err != nil {
		return wrap(err)
	}
	tk := driver.NewTimeoutTicker(timeout, f.Progress)
	return driver.PollBusy(tk, message, func() (bool, error) {
		v, err := f.Acc.ReadMem32(f.CtrlBase + regSTATUS)
		if err != nil {
			return false, wrap(err)
		}
		if v&statusFail != 0 {
			return false, target.NewRangeFault(target.ErrProgramError, addr, length, nil)
		}
		return v&statusBusy != 0, nil
	})
}

func (f *FlashOps) Erase(addr, length uint32) error {
	for off := uint32(0); off < length; off += f.SectorSize {
		if err := f.execute(cmdErase, addr+off, f.SectorSize, f.EraseTimeout, "erasing"); err != nil {
			return err
		}
	}
	return nil
}

func (f *FlashOps) Write(addr uint32, buf []byte) error {
	for i := 0; i+4 <= len(buf); i += 4 {
		word := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
		if err := f.Acc.WriteMem32(addr+uint32(i), word); err != nil {
			return wrap(err)
		}
		if err := f.execute(cmdProgram, addr+uint32(i), 4, f.ProgramTimeout, "programming"); err != nil {
			return err
		}
	}
	return nil
}

func (f *FlashOps) Done() error { return nil }

func (f *FlashOps) MassErase(progress target.ProgressFunc) error {
	saved := f.Progress
	f.Progress = progress
	defer func() { f.Progress = saved }()
	return f.execute(cmdMass, 0, 0, f.MassTimeout, "mass erasing")
}

// Layout describes one MSPM0 instance.
type Layout struct {
	FlashBase, FlashSize uint32
	SectorSize, WriteSize uint32
	ErasedByte           byte
	CtrlBase             uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	MassTimeout    time.Duration
}

// NewProbe builds a probe for one MSPM0 instance.
func NewProbe(name string, match func(target.Identity) bool, layout Layout) driver.ProbeFunc {
	return func(t *target.Target) (bool, error) {
		if !match(t.Identity) {
			return false, nil
		}
		ops := &FlashOps{
			Acc:            t.Accessor,
			CtrlBase:       layout.CtrlBase,
			SectorSize:     layout.SectorSize,
			EraseTimeout:   layout.EraseTimeout,
			ProgramTimeout: layout.ProgramTimeout,
			MassTimeout:    layout.MassTimeout,
		}
		if err := t.AddFlash(layout.FlashBase, layout.FlashSize, layout.SectorSize, layout.WriteSize, layout.ErasedByte, ops); err != nil {
			return false, err
		}
		t.Driver = name
		return true, nil
	}
}
