package target

import "github.com/blackprobe/probecore/pkg/accessor"

// Identity is the tentative target identity a probe function inspects
// before deciding whether it owns this part (spec.md §3 "Identity").
type Identity struct {
	Core   string // e.g. "M0", "M3", "M4", "M7", "A9"
	CPUID  uint32
	PartID uint32
}

// Target is the single rendezvous point for every subsystem that operates
// on a discovered CPU: its identity, its memory map, its driver vtable, and
// whatever driver-private state the successful probe attached (spec.md
// §4.C). It is created by New before any probe runs; the probe that claims
// it fills in its memory map and driver state.
type Target struct {
	Identity Identity

	Accessor accessor.DebugAccessor
	Map      MemoryMap

	// Driver is the display name the successful probe installed.
	Driver string
	Kind   Kind

	// InhibitNRST forbids the host from asserting the external reset line;
	// some drivers need the debug link alive across reset to do bookkeeping.
	InhibitNRST bool
	// ExtendedResetRequired means Reset must invoke Kind.ExtendedReset
	// after the ordinary reset sequence.
	ExtendedResetRequired bool

	// Private is the opaque, driver-owned state the probe attaches. It is
	// typed per driver (spec.md §9: "an owned, typed payload inside the
	// target object rather than an untyped pointer").
	Private any

	commands []Command
	attached bool
}

// New creates a fresh target bound to a debug accessor, with no memory map
// and no driver (spec.md §4.C target_new).
func New(acc accessor.DebugAccessor) *Target {
	return &Target{
		Accessor: acc,
		Kind:     DefaultKind{},
	}
}

// AddRAM registers a RAM region, rejecting overlap with any region already
// present.
func (t *Target) AddRAM(start, length uint32, width Width) error {
	return t.Map.Add(Region{
		Kind:     KindRAM,
		Start:    start,
		Length:   length,
		RAMWidth: width,
	})
}

// AddFlash registers a Flash region owned by ops, rejecting overlap.
func (t *Target) AddFlash(start, length, blockSize, writeSize uint32, erasedByte byte, ops FlashOps) error {
	return t.Map.Add(Region{
		Kind:       KindFlash,
		Start:      start,
		Length:     length,
		BlockSize:  blockSize,
		WriteSize:  writeSize,
		ErasedByte: erasedByte,
		Owner:      ops,
	})
}

// AddCommands registers driver monitor commands under the given group
// label (spec.md §4.C target_add_commands). The label is informational,
// used only when listing commands by group.
func (t *Target) AddCommands(group string, cmds []Command) {
	for _, c := range cmds {
		c.Group = group
		t.commands = append(t.commands, c)
	}
}

// Commands returns every monitor command registered against this target.
func (t *Target) Commands() []Command { return t.commands }

// Attach invokes the driver's attach hook if present (default: a no-op,
// i.e. "just attach the core" — spec.md §4.C). On failure the target is
// left unattached. Attach is idempotent: calling it again while already
// attached re-runs the hook, which drivers must themselves make idempotent
// (spec.md §8 property 8).
func (t *Target) Attach() error {
	if err := t.Kind.Attach(t); err != nil {
		return err
	}
	t.attached = true
	return nil
}

// Detach invokes the driver's detach hook, reversing Attach.
func (t *Target) Detach() error {
	if err := t.Kind.Detach(t); err != nil {
		return err
	}
	t.attached = false
	return nil
}

// Attached reports whether Attach has succeeded without an intervening
// Detach.
func (t *Target) Attached() bool { return t.attached }

// Reset triggers a soft reset, running the driver's extended-reset hook
// when ExtendedResetRequired is set (spec.md §4.C target_reset).
func (t *Target) Reset() error {
	if err := t.Kind.Reset(t); err != nil {
		return err
	}
	if t.ExtendedResetRequired {
		return t.Kind.ExtendedReset(t)
	}
	return nil
}
