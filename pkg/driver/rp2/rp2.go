// Package rp2 implements the RP2040/RP2350 family driver (spec.md §4.H):
// flash lives behind an external QSPI controller in XIP mode and is
// programmed through the stub runner rather than direct register pokes,
// since erase/program on these parts is a boot-ROM call a tiny RAM stub
// invokes on the core's behalf.
package rp2

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/stub"
	"github.com/blackprobe/probecore/pkg/target"
)

// FlashOps is the stub-backed FlashOps implementation for one RP2 XIP
// flash region.
type FlashOps struct {
	Runner    *stub.Runner
	StageBase uint32 // RAM scratch address data is staged into before a write call

	EraseBlob stub.Blob
	WriteBlob stub.Blob
}

func (f *FlashOps) Prepare() error { return nil }

func (f *FlashOps) Erase(addr, length uint32) error {
	return f.Runner.Run(f.EraseBlob, stub.Call{Dest: addr, Length: length})
}

func (f *FlashOps) Write(addr uint32, buf []byte) error {
	if err := f.Runner.Core.WriteMem(f.StageBase, buf); err != nil {
		return target.NewFault(target.ErrCommLost, err)
	}
	return f.Runner.Run(f.WriteBlob, stub.Call{Dest: addr, Src: f.StageBase, Length: uint32(len(buf))})
}

func (f *FlashOps) Done() error { return nil }

// Layout describes one RP2 instance's stub blobs and memory map.
type Layout struct {
	FlashBase, FlashSize uint32
	BlockSize, WriteSize uint32
	ErasedByte           byte

	RAMBase, RAMSize uint32
	StubRAMBase      uint32
	StageBase        uint32
	Sentinel         uint32
	Timeout          time.Duration
	PollInterval     time.Duration

	EraseBlob stub.Blob
	WriteBlob stub.Blob
}

// NewProbe builds a probe registering a stub-backed flash region. core is
// passed separately from the target's Accessor since the stub runner needs
// halt/resume/register access beyond plain memory reads and writes.
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
			Runner:    runner,
			StageBase: layout.StageBase,
			EraseBlob: layout.EraseBlob,
			WriteBlob: layout.WriteBlob,
		}
		if err := t.AddFlash(layout.FlashBase, layout.FlashSize, layout.BlockSize, layout.WriteSize, layout.ErasedByte, ops); err != nil {
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
