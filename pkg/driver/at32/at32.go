// Package at32 implements the AT32F43x dual-bank flash family driver
// (spec.md §4.H "AT32F43x dual-bank"): two FPEC-style bank controllers
// sharing one FlashOps instance so a straddling erase routes each page to
// its own bank (a Write uses the bank owning its start address), plus
// option-byte programming with a
// configurable option-erase timeout (spec.md §9: the original hard-codes
// 250 ms, too short for a fully-populated part; this is surfaced as a
// per-driver setting instead of re-inherited silently).
package at32

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/target"
)

const (
	regKEYR    = 0x04
	regOPTKEYR = 0x08
	regSR      = 0x0C
	regCR      = 0x10
	regAR      = 0x14

	key1 = 0x45670123
	key2 = 0xCDEF89AB

	crPG    = 1 << 0
	crPER   = 1 << 1
	crMER   = 1 << 2
	crOPTPG = 1 << 4
	crOPTER = 1 << 5
	crSTRT  = 1 << 6
	crLOCK  = 1 << 7

	srBSY   = 1 << 0
	srPGERR = 1 << 2
	srWRPRT = 1 << 4
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

// Bank is one physical flash bank's controller window.
type Bank struct {
	CtrlBase  uint32
	FlashBase uint32
	FlashSize uint32
}

// DualBank is the FlashOps implementation shared by both of an AT32F43x
// part's banks; both Regions registered against the target point at the
// same instance so the dispatcher treats them as one owner for
// prepare/done bookkeeping (spec.md §8 property 1).
type DualBank struct {
	Acc      accessor.DebugAccessor
	Banks    [2]Bank
	PageSize uint32

	OptionBase uint32
	OptionSize uint32

	EraseTimeout       time.Duration
	ProgramTimeout     time.Duration
	MassTimeout        time.Duration
	OptionEraseTimeout time.Duration
	Progress           target.ProgressFunc
}

func (d *DualBank) bankFor(addr uint32) (Bank, bool) {
	for _, b := range d.Banks {
		if addr >= b.FlashBase && addr < b.FlashBase+b.FlashSize {
			return b, true
		}
	}
	return Bank{}, false
}

func (d *DualBank) Prepare() error {
	for _, b := range d.Banks {
		if err := d.Acc.WriteMem32(b.CtrlBase+regKEYR, key1); err != nil {
			return wrap(err)
		}
		if err := d.Acc.WriteMem32(b.CtrlBase+regKEYR, key2); err != nil {
			return wrap(err)
		}
		cr, err := d.Acc.ReadMem32(b.CtrlBase + regCR)
		if err != nil {
			return wrap(err)
		}
		if cr&crLOCK != 0 {
			return target.NewFault(target.ErrFlashLocked, nil)
		}
	}
	if err := d.Acc.WriteMem32(d.Banks[0].CtrlBase+regOPTKEYR, key1); err != nil {
		return wrap(err)
	}
	return wrap(d.Acc.WriteMem32(d.Banks[0].CtrlBase+regOPTKEYR, key2))
}

// Erase erases each PageSize-aligned page in [addr, addr+length), routing
// each page to whichever bank owns it — the dispatcher may call this once
// per bank-side segment of a straddling erase (spec.md §8 S2), or once
// with a range already confined to one bank.
func (d *DualBank) Erase(addr, length uint32) error {
	for off := uint32(0); off < length; off += d.PageSize {
		pageAddr := addr + off
		bank, ok := d.bankFor(pageAddr)
		if !ok {
			return target.NewRangeFault(target.ErrCrossRegion, pageAddr, d.PageSize, nil)
		}
		if err := d.erasePage(bank, pageAddr); err != nil {
			return err
		}
	}
	return nil
}

func (d *DualBank) erasePage(bank Bank, pageAddr uint32) error {
	if err := d.Acc.WriteMem32(bank.CtrlBase+regAR, pageAddr); err != nil {
		return wrap(err)
	}
	if err := d.Acc.WriteMem32(bank.CtrlBase+regCR, crPER); err != nil {
		return wrap(err)
	}
	if err := d.Acc.WriteMem32(bank.CtrlBase+regCR, crPER|crSTRT); err != nil {
		return wrap(err)
	}
	if err := d.pollSR(bank, d.EraseTimeout, "erasing", pageAddr, d.PageSize); err != nil {
		return err
	}
	return d.Acc.WriteMem32(bank.CtrlBase+regCR, 0)
}

func (d *DualBank) Write(addr uint32, buf []byte) error {
	bank, ok := d.bankFor(addr)
	if !ok {
		return target.NewRangeFault(target.ErrCrossRegion, addr, uint32(len(buf)), nil)
	}
	if err := d.Acc.WriteMem32(bank.CtrlBase+regCR, crPG); err != nil {
		return wrap(err)
	}
	for i := 0; i+4 <= len(buf); i += 4 {
		word := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
		if err := d.Acc.WriteMem32(addr+uint32(i), word); err != nil {
			return wrap(err)
		}
		if err := d.pollSR(bank, d.ProgramTimeout, "programming", addr+uint32(i), 4); err != nil {
			return err
		}
	}
	return d.Acc.WriteMem32(bank.CtrlBase+regCR, 0)
}

func (d *DualBank) pollSR(bank Bank, timeout time.Duration, message string, addr, length uint32) error {
	tk := driver.NewTimeoutTicker(timeout, d.Progress)
	return driver.PollBusy(tk, message, func() (bool, error) {
		sr, err := d.Acc.ReadMem32(bank.CtrlBase + regSR)
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

func (d *DualBank) Done() error {
	var first error
	for _, b := range d.Banks {
		if err := d.Acc.WriteMem32(b.CtrlBase+regCR, crLOCK); err != nil && first == nil {
			first = wrap(err)
		}
	}
	return first
}

// MassErase strobes MER on both banks, ticking progress across the whole
// operation (spec.md §8 S4: "periodic progress calls ... at least one per
// 500 ms").
func (d *DualBank) MassErase(progress target.ProgressFunc) error {
	for _, b := range d.Banks {
		if err := d.Acc.WriteMem32(b.CtrlBase+regCR, crMER); err != nil {
			return wrap(err)
		}
		if err := d.Acc.WriteMem32(b.CtrlBase+regCR, crMER|crSTRT); err != nil {
			return wrap(err)
		}
	}
	tk := driver.NewTimeoutTicker(d.MassTimeout, progress)
	for _, b := range d.Banks {
		if err := driver.PollBusy(tk, "mass erasing", func() (bool, error) {
			sr, err := d.Acc.ReadMem32(b.CtrlBase + regSR)
			if err != nil {
				return false, wrap(err)
			}
			return sr&srBSY != 0, nil
		}); err != nil {
			return err
		}
	}
	for _, b := range d.Banks {
		if err := d.Acc.WriteMem32(b.CtrlBase+regCR, 0); err != nil {
			return wrap(err)
		}
	}
	return nil
}

// WriteOptionByte programs a single option byte at cellOffset within the
// option region. If the cell's containing 16-bit word is already erased
// (0xFFFF) it is programmed directly; otherwise the whole option region is
// snapshotted, erased with OptionEraseTimeout, and rewritten cell by cell,
// skipping cells that were already erased (spec.md §8 S5). A program
// failure partway through the rewrite is reported as ErrProgramError, and
// the cells not yet reached stay at their erased value — an honest partial
// failure rather than a silently recovered one.
func (d *DualBank) WriteOptionByte(cellOffset uint32, value byte) error {
	wordOffset := cellOffset &^ 1
	cur, err := d.Acc.ReadMem16(d.OptionBase + wordOffset)
	if err != nil {
		return wrap(err)
	}

	if cur == 0xFFFF {
		return d.programOptionByte(d.OptionBase+cellOffset, value)
	}

	snapshot := make([]byte, d.OptionSize)
	if err := d.Acc.ReadMem(d.OptionBase, snapshot); err != nil {
		return wrap(err)
	}
	snapshot[cellOffset] = value

	if err := d.eraseOptionRegion(); err != nil {
		return err
	}

	for i := uint32(0); i+1 < d.OptionSize; i += 2 {
		word := uint16(snapshot[i]) | uint16(snapshot[i+1])<<8
		if word == 0xFFFF {
			continue
		}
		if err := d.programOptionByte(d.OptionBase+i, snapshot[i]); err != nil {
			return target.NewRangeFault(target.ErrProgramError, d.OptionBase, d.OptionSize, err)
		}
		if err := d.programOptionByte(d.OptionBase+i+1, snapshot[i+1]); err != nil {
			return target.NewRangeFault(target.ErrProgramError, d.OptionBase, d.OptionSize, err)
		}
	}
	return nil
}

func (d *DualBank) eraseOptionRegion() error {
	bank := d.Banks[0]
	if err := d.Acc.WriteMem32(bank.CtrlBase+regCR, crOPTER); err != nil {
		return wrap(err)
	}
	if err := d.Acc.WriteMem32(bank.CtrlBase+regCR, crOPTER|crSTRT); err != nil {
		return wrap(err)
	}
	if err := d.pollSR(bank, d.OptionEraseTimeout, "erasing option bytes", d.OptionBase, d.OptionSize); err != nil {
		return err
	}
	return d.Acc.WriteMem32(bank.CtrlBase+regCR, 0)
}

func (d *DualBank) programOptionByte(addr uint32, value byte) error {
	bank := d.Banks[0]
	if err := d.Acc.WriteMem32(bank.CtrlBase+regCR, crOPTPG); err != nil {
		return wrap(err)
	}
	if err := d.Acc.WriteMem8(addr, value); err != nil {
		return wrap(err)
	}
	if err := d.pollSR(bank, d.ProgramTimeout, "programming option byte", addr, 1); err != nil {
		return err
	}
	return d.Acc.WriteMem32(bank.CtrlBase+regCR, 0)
}

// Layout describes an AT32F43x dual-bank instance.
type Layout struct {
	Banks              [2]Bank
	PageSize, WriteSize uint32
	ErasedByte         byte
	OptionBase         uint32
	OptionSize         uint32

	EraseTimeout   time.Duration
	ProgramTimeout time.Duration
	MassTimeout    time.Duration
	// OptionEraseTimeout defaults to 20s if zero — long enough for a
	// fully-populated part's option erase, unlike the 250 ms the
	// original firmware hard-codes.
	OptionEraseTimeout time.Duration
}

// NewProbe builds a probe registering both banks as contiguous, adjacent
// regions sharing one DualBank owner.
func NewProbe(name string, match func(target.Identity) bool, layout Layout) driver.ProbeFunc {
	return func(t *target.Target) (bool, error) {
		if !match(t.Identity) {
			return false, nil
		}
		optTimeout := layout.OptionEraseTimeout
		if optTimeout == 0 {
			optTimeout = 20 * time.Second
		}
		ops := &DualBank{
			Acc:                t.Accessor,
			Banks:              layout.Banks,
			PageSize:           layout.PageSize,
			OptionBase:         layout.OptionBase,
			OptionSize:         layout.OptionSize,
			EraseTimeout:       layout.EraseTimeout,
			ProgramTimeout:     layout.ProgramTimeout,
			MassTimeout:        layout.MassTimeout,
			OptionEraseTimeout: optTimeout,
		}
		for _, b := range layout.Banks {
			if err := t.AddFlash(b.FlashBase, b.FlashSize, layout.PageSize, layout.WriteSize, layout.ErasedByte, ops); err != nil {
				return false, err
			}
		}
		t.Driver = name
		return true, nil
	}
}
