package flashsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/blackprobe/probecore/pkg/driver/at32"
	"github.com/blackprobe/probecore/pkg/driver/stm32"
	"github.com/blackprobe/probecore/pkg/simflash"
	"github.com/blackprobe/probecore/pkg/stub"
	"github.com/blackprobe/probecore/pkg/target"
)

const (
	testCtrlBase = 0x40022000
	testPageSize = 1024
)

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// newSTM32 builds a target with a single flash region backed by a
// simulated FPEC controller standing in for an STM32-like part (spec.md
// §8 S1).
func newSTM32(t *testing.T, writeSize uint32) (*target.Target, *simflash.FPEC, *stm32.FPEC) {
	t.Helper()
	sim := simflash.NewFPEC(0x08000000, 4*testPageSize, testPageSize, testCtrlBase, 0xFF)
	tr := target.New(sim)
	ops := &stm32.FPEC{
		Acc:            sim,
		CtrlBase:       testCtrlBase,
		PageSize:       testPageSize,
		EraseTimeout:   time.Second,
		ProgramTimeout: time.Second,
		MassTimeout:    time.Second,
	}
	must(t, tr.AddFlash(0x08000000, 4*testPageSize, testPageSize, writeSize, 0xFF, ops))
	return tr, sim, ops
}

// countingOps wraps a FlashOps to count Prepare/Done calls, proving the
// dispatcher dedups by owner rather than by region (spec.md §8 property 1).
type countingOps struct {
	target.FlashOps
	prepares, dones int
}

func (c *countingOps) Prepare() error { c.prepares++; return c.FlashOps.Prepare() }
func (c *countingOps) Done() error    { c.dones++; return c.FlashOps.Done() }

func TestBeginFlashPreparesEachOwnerOnce(t *testing.T) {
	sim := simflash.NewFPEC(0x08000000, 2*testPageSize, testPageSize, testCtrlBase, 0xFF)
	tr := target.New(sim)
	base := &stm32.FPEC{
		Acc: sim, CtrlBase: testCtrlBase, PageSize: testPageSize,
		EraseTimeout: time.Second, ProgramTimeout: time.Second, MassTimeout: time.Second,
	}
	ops := &countingOps{FlashOps: base}
	must(t, tr.AddFlash(0x08000000, testPageSize, testPageSize, 4, 0xFF, ops))
	must(t, tr.AddFlash(0x08000000+testPageSize, testPageSize, testPageSize, 4, 0xFF, ops))

	s := NewSession(tr)
	must(t, s.BeginFlash())
	if ops.prepares != 1 {
		t.Fatalf("Prepare called %d times for two regions sharing one owner, want 1", ops.prepares)
	}
	must(t, s.EndFlash())
	if ops.dones != 1 {
		t.Fatalf("Done called %d times, want 1", ops.dones)
	}
}

// TestRoundTripEraseWriteRead covers property 2 and scenario S1: a single
// STM32-like block, erased then written then read back exactly.
func TestRoundTripEraseWriteRead(t *testing.T) {
	tr, sim, _ := newSTM32(t, 4)
	s := NewSession(tr)
	must(t, s.BeginFlash())
	must(t, s.FlashErase(0x08000000, testPageSize))

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	must(t, s.FlashWrite(0x08000000, data))
	must(t, s.EndFlash())

	got := make([]byte, len(data))
	must(t, sim.ReadMem(0x08000000, got))
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch:\n got  %v\n want %v", got, data)
	}
}

// TestBufferedWriteEquivalence covers property 3: writing the same bytes
// one at a time through the write buffer must land identically to writing
// them in one call.
func TestBufferedWriteEquivalence(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(200 - i)
	}

	tr1, sim1, _ := newSTM32(t, 4)
	s1 := NewSession(tr1)
	must(t, s1.BeginFlash())
	must(t, s1.FlashErase(0x08000000, testPageSize))
	must(t, s1.FlashWrite(0x08000000, data))
	must(t, s1.EndFlash())
	whole := make([]byte, len(data))
	must(t, sim1.ReadMem(0x08000000, whole))

	tr2, sim2, _ := newSTM32(t, 4)
	s2 := NewSession(tr2)
	must(t, s2.BeginFlash())
	must(t, s2.FlashErase(0x08000000, testPageSize))
	addr := uint32(0x08000000)
	for _, b := range data {
		must(t, s2.FlashWrite(addr, []byte{b}))
		addr++
	}
	must(t, s2.EndFlash())
	piecewise := make([]byte, len(data))
	must(t, sim2.ReadMem(0x08000000, piecewise))

	if !bytes.Equal(whole, piecewise) {
		t.Fatalf("buffered byte-at-a-time write diverged from a single write:\n whole     %v\n piecewise %v", whole, piecewise)
	}
}

// TestFlushPadsPartialWriteWithErasedByte covers property 4: a short write
// that never fills a whole write-unit is padded out with the region's
// erased byte when the session ends.
func TestFlushPadsPartialWriteWithErasedByte(t *testing.T) {
	tr, sim, _ := newSTM32(t, 4)
	s := NewSession(tr)
	must(t, s.BeginFlash())
	must(t, s.FlashErase(0x08000000, testPageSize))
	must(t, s.FlashWrite(0x08000000, []byte{0x11, 0x22, 0x33}))
	must(t, s.EndFlash())

	got := make([]byte, 4)
	must(t, sim.ReadMem(0x08000000, got))
	want := []byte{0x11, 0x22, 0x33, 0xFF}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestWriteSize128OneBytePad is scenario S3: a 128-byte write unit given
// one byte short of a full unit, padded with a single erased byte.
func TestWriteSize128OneBytePad(t *testing.T) {
	tr, sim, _ := newSTM32(t, 128)
	s := NewSession(tr)
	must(t, s.BeginFlash())
	must(t, s.FlashErase(0x08000000, testPageSize))

	data := make([]byte, 127)
	for i := range data {
		data[i] = byte(i + 1)
	}
	must(t, s.FlashWrite(0x08000000, data))
	must(t, s.EndFlash())

	got := make([]byte, 128)
	must(t, sim.ReadMem(0x08000000, got))
	if !bytes.Equal(got[:127], data) {
		t.Fatalf("payload mismatch:\n got  %v\n want %v", got[:127], data)
	}
	if got[127] != 0xFF {
		t.Fatalf("pad byte = 0x%02X, want 0xFF", got[127])
	}
}

// TestDualBankStraddleErase is property 5 and scenario S2: an erase
// range straddling the boundary between two banks sharing one owner.
func TestDualBankStraddleErase(t *testing.T) {
	const (
		bank0Base = 0x08000000
		bankSize  = 2048
		bank1Base = bank0Base + bankSize
	)
	sim := simflash.NewFPEC(bank0Base, 2*bankSize, testPageSize, testCtrlBase, 0xFF)
	tr := target.New(sim)
	dual := &at32.DualBank{
		Acc: sim,
		Banks: [2]at32.Bank{
			{CtrlBase: testCtrlBase, FlashBase: bank0Base, FlashSize: bankSize},
			{CtrlBase: testCtrlBase, FlashBase: bank1Base, FlashSize: bankSize},
		},
		PageSize:           testPageSize,
		EraseTimeout:       time.Second,
		ProgramTimeout:     time.Second,
		MassTimeout:        time.Second,
		OptionEraseTimeout: time.Second,
	}
	must(t, tr.AddFlash(bank0Base, bankSize, testPageSize, 4, 0xFF, dual))
	must(t, tr.AddFlash(bank1Base, bankSize, testPageSize, 4, 0xFF, dual))

	for i := range sim.FlashBytes() {
		sim.FlashBytes()[i] = 0x00
	}

	s := NewSession(tr)
	must(t, s.BeginFlash())
	straddleStart := uint32(bank0Base + testPageSize)
	if err := s.FlashErase(straddleStart, 2*testPageSize); err != nil {
		t.Fatalf("straddling erase: %v", err)
	}
	must(t, s.EndFlash())

	flash := sim.FlashBytes()
	for i := testPageSize; i < 3*testPageSize; i++ {
		if flash[i] != 0xFF {
			t.Fatalf("byte at flash offset %d = 0x%02X, want 0xFF (erased)", i, flash[i])
		}
	}
	for i := 0; i < testPageSize; i++ {
		if flash[i] != 0x00 {
			t.Fatalf("byte at flash offset %d = 0x%02X, want untouched 0x00", i, flash[i])
		}
	}
	for i := 3 * testPageSize; i < 4*testPageSize; i++ {
		if flash[i] != 0x00 {
			t.Fatalf("byte at flash offset %d = 0x%02X, want untouched 0x00", i, flash[i])
		}
	}
}

// TestLockedPageReportsWriteProtected covers property 6: a page marked
// write-protected surfaces ErrWriteProtected instead of silently
// succeeding or aborting with something else.
func TestLockedPageReportsWriteProtected(t *testing.T) {
	tr, sim, _ := newSTM32(t, 4)
	sim.Protect(0x08000000)

	s := NewSession(tr)
	must(t, s.BeginFlash())
	err := s.FlashErase(0x08000000, testPageSize)
	if kind, ok := target.KindOf(err); !ok || kind != target.ErrWriteProtected {
		t.Fatalf("got %v, want ErrWriteProtected", err)
	}
	must(t, s.EndFlash())
}

// TestTimeoutThenRelock covers property 7: a poll that exceeds its
// deadline reports ErrTimeout, and the controller is still lockable
// afterward rather than left wedged.
func TestTimeoutThenRelock(t *testing.T) {
	tr, sim, ops := newSTM32(t, 4)
	ops.EraseTimeout = 5 * time.Millisecond
	sim.EraseBusyCycles = 1_000_000

	s := NewSession(tr)
	must(t, s.BeginFlash())
	err := s.FlashErase(0x08000000, testPageSize)
	if kind, ok := target.KindOf(err); !ok || kind != target.ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}

	if err := s.EndFlash(); err != nil {
		t.Fatalf("EndFlash after a timed-out erase: %v", err)
	}
	cr, err := sim.ReadMem32(testCtrlBase + 0x10)
	must(t, err)
	if cr&0x80 == 0 {
		t.Fatalf("LOCK bit not set after Done following a timeout, CR=0x%X", cr)
	}
}

// TestStubRunnerRoundTrip is scenario S6: the stub runner downloads a
// blob, runs it, and the simulated copy it performs lands correctly.
func TestStubRunnerRoundTrip(t *testing.T) {
	const (
		keyr1 = 0x45670123
		keyr2 = 0xCDEF89AB
		crPG  = 0x01
	)
	flash := simflash.NewFPEC(0x08000000, 1024, 1024, testCtrlBase, 0xFF)
	must(t, flash.WriteMem32(testCtrlBase+0x04, keyr1))
	must(t, flash.WriteMem32(testCtrlBase+0x04, keyr2))
	must(t, flash.WriteMem32(testCtrlBase+0x10, crPG))

	core := simflash.NewCore(0x20000000, 256)
	core.Flash = flash
	core.Sentinel = 0x20000100
	core.StatusReg = 0

	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	must(t, core.WriteMem(0x20000080, payload))

	core.OnRun = func(c *simflash.Core) {
		dest, _ := c.ReadReg(0)
		src, _ := c.ReadReg(1)
		length, _ := c.ReadReg(2)
		buf := make([]byte, length)
		if err := c.ReadMem(src, buf); err != nil {
			return
		}
		_ = c.WriteMem(dest, buf)
	}

	runner := &stub.Runner{
		Core:         core,
		RAMBase:      0x20000010,
		Sentinel:     core.Sentinel,
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	}
	blob := stub.Blob{Code: []byte{0xDE, 0xAD, 0xBE, 0xEF}, ReturnReg: 14, StatusReg: 0}
	call := stub.Call{Dest: 0x08000000, Src: 0x20000080, Length: uint32(len(payload))}

	must(t, runner.Run(blob, call))

	got := make([]byte, len(payload))
	must(t, flash.ReadMem(0x08000000, got))
	if !bytes.Equal(got, payload) {
		t.Fatalf("stub copy mismatch: got %v, want %v", got, payload)
	}
}

// TestStubRunnerFailureThenRecovers is S6's failure path: a nonzero exit
// status is reported as ErrStubFailed, and the runner still works for a
// subsequent call rather than staying wedged.
func TestStubRunnerFailureThenRecovers(t *testing.T) {
	core := simflash.NewCore(0x20000000, 64)
	core.Sentinel = 0x20000040
	core.StatusReg = 1

	runner := &stub.Runner{
		Core:         core,
		RAMBase:      0x20000000,
		Sentinel:     core.Sentinel,
		Timeout:      time.Second,
		PollInterval: time.Millisecond,
	}
	blob := stub.Blob{Code: []byte{1, 2, 3, 4}, ReturnReg: 14, StatusReg: 1}

	core.ExitStatus = 1
	err := runner.Run(blob, stub.Call{})
	if kind, ok := target.KindOf(err); !ok || kind != target.ErrStubFailed {
		t.Fatalf("got %v, want ErrStubFailed", err)
	}

	core.ExitStatus = 0
	if err := runner.Run(blob, stub.Call{}); err != nil {
		t.Fatalf("run after a reported failure: %v", err)
	}
}
