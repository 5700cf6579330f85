// Package lmi implements the LMI/Stellaris family driver (spec.md §4.H): a
// FMC-style register controller for erase, and a RAM stub for program,
// since the original firmware copies a small word-copy routine into SRAM
// to write flash on these parts. The write stub is the caller-supplied
// blob; this driver stages only its dest/src/length arguments and does not
// set or check the stub's copy-loop counter.
package lmi

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/stub"
	"github.com/blackprobe/probecore/pkg/target"
)

const (
	regFMA = 0x00
	regFMC = 0x04
	regFMD = 0x08 // wait a 4-byte hold register used during register-level program

	fmcWRKEY = 0xA4420000
	fmcERASE = 1 << 1
	fmcWRITE = 1 << 0
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

// FlashOps erases directly through the FMA/FMC/FMD registers and programs
// through the stub runner — the split the original firmware itself uses.
type FlashOps struct {
	Acc          accessor.DebugAccessor
	CtrlBase     uint32
	PageSize     uint32
	EraseTimeout time.Duration
	Progress     target.ProgressFunc

	Runner    *stub.Runner
	StageBase uint32
	WriteBlob stub.Blob
}

func (f *FlashOps) Prepare() error { return nil }

func (f *FlashOps) Erase(addr, length uint32) error {
	for off := uint32(0); off < length; off += f.PageSize {
		pageAddr := addr + off
		if err := f.Acc.WriteMem32(f.CtrlBase+regFMA, pageAddr); err != nil {
			return wrap(err)
		}
		if err := f.Acc.WriteMem32(f.CtrlBase+regFMC, fmcWRKEY|fmcERASE); err != nil {
			return wrap(err)
		}
		tk := driver.NewTimeoutTicker(f.EraseTimeout, f.Progress)
		if err := driver.PollBusy(tk, "erasing", func() (bool, error) {
			v, err := f.Acc.ReadMem32(f.CtrlBase + regFMC)
			if err != nil {
				return false, wrap(err)
			}
			return v&fmcERASE != 0, nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// Write stages buf into RAM and invokes the copy-loop stub with dest, src
// and length in its argument registers. The stub's loop counter is not
// set here; its starting value is whatever the supplied blob gives it.
func (f *FlashOps) Write(addr uint32, buf []byte) error {
	if err := f.Runner.Core.WriteMem(f.StageBase, buf); err != nil {
		return target.NewFault(target.ErrCommLost, err)
	}
	return f.Runner.Run(f.WriteBlob, stub.Call{Dest: addr, Src: f.StageBase, Length: uint32(len(buf))})
}

func (f *FlashOps) Done() error { return nil }

// Layout describes one LMI instance's memory map, registers, and stub.
type Layout struct {
	FlashBase, FlashSize uint32
	PageSize, WriteSize  uint32
	ErasedByte           byte
	CtrlBase             uint32

	StubRAMBase  uint32
	StageBase    uint32
	Sentinel     uint32
	Timeout      time.Duration
	PollInterval time.Duration
	WriteBlob    stub.Blob

	EraseTimeout time.Duration
}

// NewProbe builds a probe for one LMI instance.
func NewProbe(name string, match func(target.Identity) bool, core accessor.CoreControl, layout Layout) driver.ProbeFunc {
	return func(t *target.Target) (bool, error) {
		if !match(t.Identity) {
			return false, nil
		}
		runner := &stub.Runner{
			Core:         core,
			RAMBase:      layout.StubRAMBase,
			Sentinel:     layout.Sentinel,
			Timeout:      layout.Timeout,
			PollInterval: layout.PollInterval,
		}
		ops := &FlashOps{
			Acc:          t.Accessor,
			CtrlBase:     layout.CtrlBase,
			PageSize:     layout.PageSize,
			EraseTimeout: layout.EraseTimeout,
			Runner:       runner,
			StageBase:    layout.StageBase,
			WriteBlob:    layout.WriteBlob,
		}
		if err := t.AddFlash(layout.FlashBase, layout.FlashSize, layout.PageSize, layout.WriteSize, layout.ErasedByte, ops); err != nil {
			return false, err
		}
		t.Driver = name
		return true, nil
	}
}
