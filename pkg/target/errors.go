// Package target implements the core object model described by the probe's
// target abstraction: a discovered CPU's identity, its memory map, its
// driver vtable, and the lifecycle that binds them together.
package target

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of failures the core can report. Kinds
// never nest — a Fault always carries exactly one.
type ErrorKind int

const (
	// ErrCommLost means the debug accessor reported a transport fault.
	ErrCommLost ErrorKind = iota
	// ErrUnalignedAccess means the caller-supplied address or length
	// violates the region's alignment requirements.
	ErrUnalignedAccess
	// ErrCrossRegion means a range crosses a region boundary.
	ErrCrossRegion
	// ErrFlashLocked means the unlock sequence failed; KEYR refused.
	ErrFlashLocked
	// ErrFlashBusy means a previous operation has not completed, or the
	// controller is in an unexpected state.
	ErrFlashBusy
	// ErrProgramError collapses PGSERR/PROGERR/WRPERR/PGAERR/SIZERR and
	// similar controller-reported program/erase failures.
	ErrProgramError
	// ErrWriteProtected means region lock bits forbid the operation.
	ErrWriteProtected
	// ErrTimeout means a poll exceeded its deadline.
	ErrTimeout
	// ErrStubFailed means the RAM stub returned a nonzero status or timed
	// out.
	ErrStubFailed
	// ErrUnsupported means the operation isn't implemented by the owning
	// driver.
	ErrUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrCommLost:
		return "CommLost"
	case ErrUnalignedAccess:
		return "UnalignedAccess"
	case ErrCrossRegion:
		return "CrossRegion"
	case ErrFlashLocked:
		return "FlashLocked"
	case ErrFlashBusy:
		return "FlashBusy"
	case ErrProgramError:
		return "ProgramError"
	case ErrWriteProtected:
		return "WriteProtected"
	case ErrTimeout:
		return "Timeout"
	case ErrStubFailed:
		return "StubFailed"
	case ErrUnsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Fault is the error type every core operation returns on failure. It names
// one ErrorKind, optionally wraps a lower-level cause, and optionally names
// the target address range the error occurred against.
type Fault struct {
	Kind  ErrorKind
	Addr  uint32
	Len   uint32
	cause error
}

func (f *Fault) Error() string {
	if f.Len > 0 {
		if f.cause != nil {
			return fmt.Sprintf("%s at 0x%08X..0x%08X: %v", f.Kind, f.Addr, f.Addr+f.Len, f.cause)
		}
		return fmt.Sprintf("%s at 0x%08X..0x%08X", f.Kind, f.Addr, f.Addr+f.Len)
	}
	if f.cause != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.cause)
	}
	return f.Kind.String()
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (f *Fault) Unwrap() error { return f.cause }

// NewFault builds a Fault with no address range attached.
func NewFault(kind ErrorKind, cause error) *Fault {
	return &Fault{Kind: kind, cause: cause}
}

// NewRangeFault builds a Fault naming the offending address range.
func NewRangeFault(kind ErrorKind, addr, length uint32, cause error) *Fault {
	return &Fault{Kind: kind, Addr: addr, Len: length, cause: cause}
}

// KindOf reports the ErrorKind of err if it is (or wraps) a *Fault, and
// false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}
