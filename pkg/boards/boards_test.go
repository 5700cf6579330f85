package boards

import (
	"sort"
	"testing"
	"time"

	"github.com/blackprobe/probecore/pkg/config"
	"github.com/blackprobe/probecore/pkg/driver/stm32"
	"github.com/blackprobe/probecore/pkg/target"
)

func TestNamesSorted(t *testing.T) {
	names := Names()
	if len(names) == 0 {
		t.Fatal("expected at least one registered board")
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("Names() not sorted: %v", names)
	}

	want := map[string]bool{
		"stm32f103": true, "stm32f4": true, "ra4": true, "ch32f103": true,
		"at32f437": true, "sam4l": true, "mspm0": true, "xmega128a1": true,
		"rp2040": true, "lm3s": true,
	}
	if len(names) != len(want) {
		t.Fatalf("got %d boards, want %d", len(names), len(want))
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected board name %q", n)
		}
	}
}

func TestBuildUnknownBoard(t *testing.T) {
	tr := target.New(nil)
	err := Build(tr, "no-such-board", nil, Stubs{}, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown board name")
	}
}

func TestBuildNilConfigUsesDefaults(t *testing.T) {
	for _, name := range Names() {
		tr := target.New(nil)
		if err := Build(tr, name, nil, Stubs{}, nil); err != nil {
			t.Errorf("Build(%q, nil cfg) failed: %v", name, err)
		}
	}
}

func TestBuildHonorsTimeoutOverride(t *testing.T) {
	cfg := &config.Config{EraseTimeout: 7 * time.Second}
	tr := target.New(nil)
	if err := Build(tr, "stm32f103", nil, Stubs{}, cfg); err != nil {
		t.Fatalf("Build: %v", err)
	}
	ops, ok := tr.Map.Regions()[0].Owner.(*stm32.FPEC)
	if !ok {
		t.Fatalf("region owner is %T, want *stm32.FPEC", tr.Map.Regions()[0].Owner)
	}
	if ops.EraseTimeout != 7*time.Second {
		t.Errorf("EraseTimeout = %v, want 7s (override wins over the 2s board default)", ops.EraseTimeout)
	}
}

func TestPick(t *testing.T) {
	if got := pick(5, 0); got != 5 {
		t.Errorf("pick(5, 0) = %v, want 5 (default wins on zero override)", got)
	}
	if got := pick(5, 9); got != 9 {
		t.Errorf("pick(5, 9) = %v, want 9 (override wins when set)", got)
	}
}
