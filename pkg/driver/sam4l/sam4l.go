// Package sam4l implements the Atmel/Microchip SAM4L flash controller
// family driver (spec.md §4.H): a command register (key byte + command +
// page number) driving a page-buffer SRAM window, and an extended-reset
// hook that clears the CPU-hold-reset latch through the access port
// (spec.md §4.C) since SAM4L needs the debug link alive across reset to do
// that bookkeeping.
package sam4l

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/target"
)

const (
	regFCMD = 0x04
	regFSR  = 0x08

	cmdKey  = 0xA5
	cmdWP   = 0x01 // write page buffer into flash
	cmdEP   = 0x02 // erase page
	cmdCPB  = 0x03 // clear page buffer
	cmdUP   = 0x05 // unlock page

	fsrFRDY  = 1 << 0
	fsrLOCKE = 1 << 2
	fsrPROGE = 1 << 3
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

// FlashController is the FlashOps implementation for one SAM4L flash
// controller instance.
type FlashController struct {
	Acc            accessor.DebugAccessor
	CtrlBase       uint32
	PageBufferBase uint32
	FlashBase      uint32
	PageSize       uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	Progress       target.ProgressFunc
}

func (c *FlashController) pageOf(addr uint32) uint32 {
	return (addr - c.FlashBase) / c.PageSize
}

func (c *FlashController) command(cmd uint32, page uint32) error {
	return wrap(c.Acc.WriteMem32(c.CtrlBase+regFCMD, cmdKey<<24|cmd|page<<8))
}

func (c *FlashController) poll(timeout time.Duration, message string, addr, length uint32) error {
	tk := driver.NewTimeoutTicker(timeout, c.Progress)
	return driver.PollBusy(tk, message, func() (bool, error) {
		sr, err := c.Acc.ReadMem32(c.CtrlBase + regFSR)
		if err != nil {
			return false, wrap(err)
		}
		if sr&fsrLOCKE != 0 {
			return false, target.NewRangeFault(target.ErrWriteProtected, addr, length, nil)
		}
		if sr&fsrPROGE != 0 {
			return false, target.NewRangeFault(target.ErrProgramError, addr, length, nil)
		}
		return sr&fsrFRDY == 0, nil
	})
}

// Prepare drains any error flags left over from a previous session.
func (c *FlashController) Prepare() error {
	_, err := c.Acc.ReadMem32(c.CtrlBase + regFSR)
	return wrap(err)
}

func (c *FlashController) Erase(addr, length uint32) error {
	for off := uint32(0); off < length; off += c.PageSize {
		pageAddr := addr + off
		page := c.pageOf(pageAddr)
		if err := c.command(cmdUP, page); err != nil {
			return err
		}
		if err := c.poll(c.EraseTimeout, "unlocking page", pageAddr, c.PageSize); err != nil {
			return err
		}
		if err := c.command(cmdEP, page); err != nil {
			return err
		}
		if err := c.poll(c.EraseTimeout, "erasing", pageAddr, c.PageSize); err != nil {
			return err
		}
	}
	return nil
}

// Write loads the page buffer and commits it with WP. The page buffer is
// always filled with full 32-bit stores, including the final partial word
// of a short write — the likely root cause of the original's wrong tail
// bytes on even pages was byte-wide stores racing the buffer's internal
// write-pointer auto-increment; word-wide stores sidestep it entirely.
func (c *FlashController) Write(addr uint32, buf []byte) error {
	page := c.pageOf(addr)
	if err := c.command(cmdCPB, page); err != nil {
		return err
	}
	if err := c.poll(c.ProgramTimeout, "clearing page buffer", addr, uint32(len(buf))); err != nil {
		return err
	}

	bufAddr := c.PageBufferBase + (addr-c.FlashBase)%c.PageSize
	for i := 0; i < len(buf); i += 4 {
		word := make([]byte, 4)
		copy(word, buf[i:])
		if len(buf)-i < 4 {
			for j := len(buf) - i; j < 4; j++ {
				word[j] = 0xFF
			}
		}
		if err := c.Acc.WriteMem32(bufAddr+uint32(i), uint32(word[0])|uint32(word[1])<<8|uint32(word[2])<<16|uint32(word[3])<<24); err != nil {
			return wrap(err)
		}
	}

	if err := c.command(cmdWP, page); err != nil {
		return err
	}
	return c.poll(c.ProgramTimeout, "programming", addr, uint32(len(buf)))
}

// Done is a no-op: SAM4L's per-page lock state is managed by Erase/Write
// via explicit unlock-page commands, not a single session-wide lock bit.
func (c *FlashController) Done() error { return nil }

// Kind installs SAM4L's extended-reset hook: clearing the CPU-hold-reset
// latch through the access port before the core is controllable again.
type Kind struct {
	Acc              accessor.DebugAccessor
	ResetReleaseAddr uint32
}

func (Kind) Attach(t *target.Target) error { return nil }
func (Kind) Detach(t *target.Target) error { return nil }
func (Kind) Reset(t *target.Target) error  { return nil }

func (k Kind) ExtendedReset(t *target.Target) error {
	return wrap(t.Accessor.WriteMem32(k.ResetReleaseAddr, 1))
}

func (Kind) MassErase(t *target.Target, _ target.ProgressFunc) (bool, error) {
	return false, nil
}

// Layout describes one SAM4L instance's memory map and timeouts.
type Layout struct {
	FlashBase, FlashSize uint32
	PageBufferBase       uint32
	PageSize, WriteSize  uint32
	ErasedByte           byte
	CtrlBase             uint32
	ResetReleaseAddr     uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
}

// NewProbe builds a probe claiming targets match accepts.
func NewProbe(name string, match func(target.Identity) bool, layout Layout) driver.ProbeFunc {
	return func(t *target.Target) (bool, error) {
		if !match(t.Identity) {
			return false, nil
		}
		ops := &FlashController{
			Acc:            t.Accessor,
			CtrlBase:       layout.CtrlBase,
			PageBufferBase: layout.PageBufferBase,
			FlashBase:      layout.FlashBase,
			PageSize:       layout.PageSize,
			EraseTimeout:   layout.EraseTimeout,
			ProgramTimeout: layout.ProgramTimeout,
		}
		if err := t.AddFlash(layout.FlashBase, layout.FlashSize, layout.PageSize, layout.WriteSize, layout.ErasedByte, ops); err != nil {
			return false, err
		}
		t.Kind = Kind{Acc: t.Accessor, ResetReleaseAddr: layout.ResetReleaseAddr}
		t.ExtendedResetRequired = true
		t.Driver = name
		return true, nil
	}
}
