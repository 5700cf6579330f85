// Package stub implements the flash stub runner (spec.md §4.F): it
// downloads a tiny position-independent code payload into target RAM,
// stages the stub's (dest, src, length[, controller_base]) argument
// convention into core registers, arms a breakpoint sentinel as the return
// address, resumes the core, and polls halt state with a timeout and
// progress callback until the stub reports success or failure.
package stub

import (
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/status"
	"github.com/blackprobe/probecore/pkg/target"
	"github.com/blackprobe/probecore/pkg/util"
)

// Blob is a position-independent flash-stub binary (spec.md "Flash-stub
// binary format"). EntryOffset is normally 0 — the stub's first
// instruction is its entry. ReturnReg and StatusReg are register indices
// within the Core's integer register file: ReturnReg is where the stub
// expects its return address staged before it starts, StatusReg is where
// it leaves its exit code (0 = ok, nonzero = error) before the final
// breakpoint.
type Blob struct {
	Code        []byte
	EntryOffset uint32
	ReturnReg   int
	StatusReg   int
}

// Call is one invocation's arguments, following the stub's
// (dest, src, length[, controller_base]) register convention.
type Call struct {
	Dest              uint32
	Src               uint32
	Length            uint32
	ControllerBase    uint32
	HasControllerBase bool
}

// Runner downloads a Blob to a fixed RAM base and drives one Call through a
// resume/halt cycle. A Runner is reused across calls within a driver; it
// holds no per-call state.
type Runner struct {
	Core         accessor.CoreControl
	RAMBase      uint32
	Sentinel     uint32 // breakpoint address the stub is staged to return to
	Timeout      time.Duration
	PollInterval time.Duration
	Progress     target.ProgressFunc
}

// Run downloads blob, stages call, and resumes the core, returning once the
// stub halts at the sentinel with a zero status register, or a Fault
// (ErrTimeout, ErrStubFailed, ErrCommLost) otherwise.
func (r *Runner) Run(blob Blob, call Call) error {
	if err := r.Core.WriteMem(r.RAMBase, blob.Code); err != nil {
		return wrapComm(err)
	}

	// Read the download back and checksum it before trusting the target
	// core to execute it; a corrupted transfer must never be resumed into.
	readback := make([]byte, len(blob.Code))
	if err := r.Core.ReadMem(r.RAMBase, readback); err != nil {
		return wrapComm(err)
	}
	if util.CalculateCRC32(readback) != util.CalculateCRC32(blob.Code) {
		return target.NewFault(target.ErrStubFailed, nil)
	}

	if err := r.Core.WriteReg(0, call.Dest); err != nil {
		return wrapComm(err)
	}
	if err := r.Core.WriteReg(1, call.Src); err != nil {
		return wrapComm(err)
	}
	if err := r.Core.WriteReg(2, call.Length); err != nil {
		return wrapComm(err)
	}
	if call.HasControllerBase {
		if err := r.Core.WriteReg(3, call.ControllerBase); err != nil {
			return wrapComm(err)
		}
	}
	if err := r.Core.WriteReg(blob.ReturnReg, r.Sentinel); err != nil {
		return wrapComm(err)
	}
	if err := r.Core.WritePC(r.RAMBase + blob.EntryOffset); err != nil {
		return wrapComm(err)
	}
	if err := r.Core.Resume(); err != nil {
		return wrapComm(err)
	}

	tk := status.NewTicker(r.Timeout, r.PollInterval, func(msg string) {
		if r.Progress != nil {
			r.Progress(msg)
		}
	})
	for {
		halted, err := r.Core.IsHalted()
		if err != nil {
			return wrapComm(err)
		}
		if halted {
			break
		}
		if tk.Expired() {
			return target.NewFault(target.ErrTimeout, nil)
		}
		tk.Tick("waiting for flash stub")
	}

	pc, err := r.Core.ReadPC()
	if err != nil {
		return wrapComm(err)
	}
	if pc != r.Sentinel {
		return target.NewFault(target.ErrStubFailed, nil)
	}

	exitStatus, err := r.Core.ReadReg(blob.StatusReg)
	if err != nil {
		return wrapComm(err)
	}
	if exitStatus != 0 {
		return target.NewFault(target.ErrStubFailed, nil)
	}
	return nil
}

func wrapComm(err error) error {
	if _, ok := target.KindOf(err); ok {
		return err
	}
	return target.NewFault(target.ErrCommLost, err)
}
