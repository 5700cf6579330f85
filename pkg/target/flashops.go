package target

// ProgressFunc is invoked periodically during a long-running operation
// (mass erase, multi-block erase) to report a human-readable status line.
type ProgressFunc func(message string)

// FlashOps is the per-region flash driver contract (spec.md §3 "Flash
// driver vtable"). One FlashOps instance is shared by every Region that
// belongs to the same physical bank or controller.
type FlashOps interface {
	// Prepare unlocks the controller and enters P/E mode. Called once per
	// host flash session, before any Erase/Write against this region.
	Prepare() error

	// Erase erases exactly length bytes starting at addr. addr is aligned
	// to the region's BlockSize and length is a multiple of it; the driver
	// may loop internally over blocks.
	Erase(addr, length uint32) error

	// Write programs length bytes from buf starting at addr. addr and
	// length are aligned to the region's WriteSize.
	Write(addr uint32, buf []byte) error

	// Done locks the controller and leaves P/E mode. Called once per
	// session, even when the session failed.
	Done() error
}

// MassEraser is an optional capability a FlashOps may implement for a
// whole-device erase faster than looping sectors.
type MassEraser interface {
	MassErase(progress ProgressFunc) error
}

// Kind is the target-level capability vtable a driver installs pieces of
// during probe (spec.md §4.C/§4.G). New installs DefaultKind, in which
// every hook is a no-op and MassErase reports that it did not handle the
// erase.
type Kind interface {
	Attach(t *Target) error
	Detach(t *Target) error
	// Reset triggers the driver's soft-reset sequence. Most drivers can
	// rely on the debug accessor's own reset; a driver only needs to
	// implement this when it has extra bookkeeping to do around reset.
	Reset(t *Target) error
	// ExtendedReset runs after Reset when Target.ExtendedResetRequired is
	// set — e.g. SAM4L must clear the CPU-hold-reset latch through the
	// access port before control is possible again.
	ExtendedReset(t *Target) error
	// MassErase is the target-level mass erase hook consulted by
	// pkg/flashsvc before falling back to per-region Erase loops.
	MassErase(t *Target, progress ProgressFunc) (ok bool, err error)
}

// DefaultKind is the vtable installed on a freshly created Target before
// any driver probe runs. Every hook is a harmless default; a driver
// overrides only the hooks it cares about by wrapping or replacing this
// value (spec.md §4.G: "installs vtable entries ... leaves the rest").
type DefaultKind struct{}

func (DefaultKind) Attach(t *Target) error              { return nil }
func (DefaultKind) Detach(t *Target) error              { return nil }
func (DefaultKind) Reset(t *Target) error               { return nil }
func (DefaultKind) ExtendedReset(t *Target) error       { return nil }
func (DefaultKind) MassErase(t *Target, _ ProgressFunc) (bool, error) {
	return false, nil
}
