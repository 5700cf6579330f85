package at32

import (
	"testing"
	"time"

	"github.com/blackprobe/probecore/pkg/simflash"
	"github.com/blackprobe/probecore/pkg/target"
)

const testCtrlBase = 0x40022000

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// TestMassEraseProgressCadence is scenario S4: a mass erase long enough to
// cross the 500ms progress interval must fire at least one progress
// callback, not just a single one at completion.
func TestMassEraseProgressCadence(t *testing.T) {
	sim := simflash.NewFPEC(0x08000000, 2*2048, 1024, testCtrlBase, 0xFF)
	// driver.PollBusy sleeps 1ms per busy check; 600 cycles comfortably
	// clears the 500ms tick interval without making the test slow.
	sim.MassBusyCycles = 600

	dual := &DualBank{
		Acc: sim,
		Banks: [2]Bank{
			{CtrlBase: testCtrlBase, FlashBase: 0x08000000, FlashSize: 2048},
			{CtrlBase: testCtrlBase, FlashBase: 0x08000800, FlashSize: 2048},
		},
		PageSize:           1024,
		EraseTimeout:       time.Second,
		ProgramTimeout:     time.Second,
		MassTimeout:        5 * time.Second,
		OptionEraseTimeout: time.Second,
	}
	for i := range sim.FlashBytes() {
		sim.FlashBytes()[i] = 0x00
	}
	must(t, dual.Prepare())

	var calls int
	if err := dual.MassErase(func(string) { calls++ }); err != nil {
		t.Fatalf("MassErase: %v", err)
	}
	if calls < 1 {
		t.Fatalf("expected at least one progress callback over a >500ms mass erase, got %d", calls)
	}
	for i, b := range sim.FlashBytes() {
		if b != 0xFF {
			t.Fatalf("byte %d = 0x%02X after mass erase, want 0xFF", i, b)
		}
	}
}

func newOptionDualBank(sim *simflash.FPEC) *DualBank {
	return &DualBank{
		Acc: sim,
		Banks: [2]Bank{
			{CtrlBase: testCtrlBase, FlashBase: 0x08000000, FlashSize: 512},
			{CtrlBase: testCtrlBase, FlashBase: 0x08000200, FlashSize: 512},
		},
		PageSize:           512,
		OptionBase:         0x1FFFF800,
		OptionSize:         4,
		EraseTimeout:       time.Second,
		ProgramTimeout:     time.Second,
		MassTimeout:        time.Second,
		OptionEraseTimeout: time.Second,
	}
}

// TestWriteOptionByteAtomicRewrite is scenario S5: writing a byte whose
// containing word is already programmed forces a snapshot/erase/rewrite,
// and bytes elsewhere in the option region survive untouched.
func TestWriteOptionByteAtomicRewrite(t *testing.T) {
	sim := simflash.NewFPEC(0x08000000, 1024, 512, testCtrlBase, 0xFF)
	sim.EnableOptionBytes(0x1FFFF800, 4)
	dual := newOptionDualBank(sim)
	must(t, dual.Prepare())

	if err := dual.WriteOptionByte(0, 0xAB); err != nil {
		t.Fatalf("WriteOptionByte cell 0 (direct): %v", err)
	}
	if got := sim.OptionBytes()[0]; got != 0xAB {
		t.Fatalf("cell 0 = 0x%02X, want 0xAB", got)
	}

	if err := dual.WriteOptionByte(2, 0xCD); err != nil {
		t.Fatalf("WriteOptionByte cell 2 (direct): %v", err)
	}
	if err := dual.WriteOptionByte(2, 0xEF); err != nil {
		t.Fatalf("WriteOptionByte cell 2 (forced rewrite): %v", err)
	}
	if got := sim.OptionBytes()[2]; got != 0xEF {
		t.Fatalf("cell 2 = 0x%02X, want 0xEF", got)
	}
	if got := sim.OptionBytes()[0]; got != 0xAB {
		t.Fatalf("cell 0 clobbered by the rewrite of cell 2: got 0x%02X, want 0xAB", got)
	}
}

// TestWriteOptionByteHonestPartialFailure is S5's failure path: a program
// error partway through the rewrite reports ErrProgramError, and the
// cells the rewrite never reached stay at their erased value rather than
// being silently restored to their pre-erase contents.
func TestWriteOptionByteHonestPartialFailure(t *testing.T) {
	sim := simflash.NewFPEC(0x08000000, 1024, 512, testCtrlBase, 0xFF)
	sim.EnableOptionBytes(0x1FFFF800, 4)
	dual := newOptionDualBank(sim)
	must(t, dual.Prepare())

	must(t, dual.WriteOptionByte(0, 0x11))
	// The direct write above is program call 1; fail the rewrite's first
	// program call (call 2).
	sim.OptionProgramFailAfter = 2

	err := dual.WriteOptionByte(0, 0x22)
	if err == nil {
		t.Fatal("expected a program error from the induced failure")
	}
	if kind, ok := target.KindOf(err); !ok || kind != target.ErrProgramError {
		t.Fatalf("got %v, want ErrProgramError", err)
	}

	for i, b := range sim.OptionBytes() {
		if b != 0xFF {
			t.Fatalf("option byte %d = 0x%02X after a failed rewrite, want 0xFF (erased, not silently recovered)", i, b)
		}
	}
}
