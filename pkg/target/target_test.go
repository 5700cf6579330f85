package target

import "testing"

// countingKind counts Attach/Detach calls and records the attached state,
// so the test can check that redundant calls are harmless (spec.md §8
// property 8).
type countingKind struct {
	DefaultKind
	attached    bool
	attachCalls int
	detachCalls int
}

func (k *countingKind) Attach(t *Target) error {
	k.attachCalls++
	k.attached = true
	return nil
}

func (k *countingKind) Detach(t *Target) error {
	k.detachCalls++
	k.attached = false
	return nil
}

func TestAttachDetachIdempotent(t *testing.T) {
	k := &countingKind{}
	tr := New(nil)
	tr.Kind = k

	if tr.Attached() {
		t.Fatal("freshly created target reports Attached before Attach")
	}

	if err := tr.Attach(); err != nil {
		t.Fatalf("first Attach: %v", err)
	}
	if !tr.Attached() {
		t.Fatal("Attached() false after a successful Attach")
	}

	// Calling Attach again while already attached must not error and must
	// still leave the target attached.
	if err := tr.Attach(); err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if !tr.Attached() {
		t.Fatal("Attached() false after a redundant Attach")
	}
	if k.attachCalls != 2 {
		t.Fatalf("expected the driver hook to run both times, got %d calls", k.attachCalls)
	}

	if err := tr.Detach(); err != nil {
		t.Fatalf("first Detach: %v", err)
	}
	if tr.Attached() {
		t.Fatal("Attached() true after Detach")
	}

	// A second Detach on an already-detached target must also be harmless.
	if err := tr.Detach(); err != nil {
		t.Fatalf("second Detach: %v", err)
	}
	if tr.Attached() {
		t.Fatal("Attached() true after a redundant Detach")
	}
	if k.detachCalls != 2 {
		t.Fatalf("expected the driver hook to run both times, got %d calls", k.detachCalls)
	}
}

func TestAddRegionRejectsOverlap(t *testing.T) {
	tr := New(nil)
	if err := tr.AddRAM(0x20000000, 0x1000, Width32); err != nil {
		t.Fatalf("AddRAM: %v", err)
	}
	if err := tr.AddRAM(0x20000800, 0x1000, Width32); err == nil {
		t.Fatal("expected an error registering an overlapping region")
	}
}
