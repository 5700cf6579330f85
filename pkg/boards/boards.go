// Package boards maps a human-chosen board name to the family driver probe
// that knows how to attach to it. Real auto-identification (reading a
// CPUID/part-id register and matching it against target.Identity, spec.md
// §3 "Identity") needs a register convention this module doesn't standardize
// across families, so attachment here is always by explicit name; each
// board's Identity matcher is an always-true stub, documented in DESIGN.md
// as an accepted Open Question decision rather than a shortcut taken
// silently.
package boards

import (
	"fmt"
	"sort"
	"time"

	"github.com/blackprobe/probecore/pkg/accessor"
	"github.com/blackprobe/probecore/pkg/config"
	"github.com/blackprobe/probecore/pkg/driver"
	"github.com/blackprobe/probecore/pkg/driver/at32"
	"github.com/blackprobe/probecore/pkg/driver/ch32"
	"github.com/blackprobe/probecore/pkg/driver/lmi"
	"github.com/blackprobe/probecore/pkg/driver/mspm0"
	"github.com/blackprobe/probecore/pkg/driver/renesas"
	"github.com/blackprobe/probecore/pkg/driver/rp2"
	"github.com/blackprobe/probecore/pkg/driver/sam4l"
	"github.com/blackprobe/probecore/pkg/driver/stm32"
	"github.com/blackprobe/probecore/pkg/driver/xmega"
	"github.com/blackprobe/probecore/pkg/stub"
	"github.com/blackprobe/probecore/pkg/target"
)

func always(target.Identity) bool { return true }

// pick returns override if it's set (non-zero), else def — the pattern
// every factory below uses to let probecore.ini's per-driver timeout
// overrides win over a board's built-in default.
func pick(def, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return def
}

// Stubs bundles the two RAM-resident algorithm blobs a stub-backed board
// (rp2, lmi) needs. Production tooling loads these from per-chip algorithm
// files; the CLI accepts them as raw byte slices read from disk by the
// caller (cmd/session.go) rather than this package fabricating machine code.
type Stubs struct {
	Erase stub.Blob
	Write stub.Blob
}

// Factory builds the probe for one board. core is only consulted by
// stub-backed families; register-only families ignore it. cfg supplies
// probecore.ini's per-driver timeout overrides and the CH32F1 magic-sequence
// gate. cfg is never nil here: Build substitutes an empty Config, whose
// zero overrides leave every board on its built-in defaults.
type Factory func(core accessor.CoreControl, stubs Stubs, cfg *config.Config) driver.ProbeFunc

var registry = map[string]Factory{
	"stm32f103": func(_ accessor.CoreControl, _ Stubs, cfg *config.Config) driver.ProbeFunc {
		return stm32.NewProbe("stm32f103", always, stm32.Layout{
			FlashBase: 0x08000000, FlashSize: 128 * 1024,
			PageSize: 1024, WriteSize: 4,
			ErasedByte: 0xFF, CtrlBase: 0x40022000,
			EraseTimeout:   pick(2*time.Second, cfg.EraseTimeout),
			ProgramTimeout: pick(100*time.Millisecond, cfg.ProgramTimeout),
			MassTimeout:    pick(30*time.Second, cfg.MassEraseTimeout),
		})
	},
	"stm32f4": func(_ accessor.CoreControl, _ Stubs, cfg *config.Config) driver.ProbeFunc {
		return stm32.NewProbe("stm32f4", always, stm32.Layout{
			FlashBase: 0x08000000, FlashSize: 1024 * 1024,
			PageSize: 16 * 1024, WriteSize: 4,
			ErasedByte: 0xFF, CtrlBase: 0x40023C00,
			EraseTimeout:   pick(4*time.Second, cfg.EraseTimeout),
			ProgramTimeout: pick(100*time.Millisecond, cfg.ProgramTimeout),
			MassTimeout:    pick(20*time.Second, cfg.MassEraseTimeout),
		})
	},
	"ra4": func(_ accessor.CoreControl, _ Stubs, cfg *config.Config) driver.ProbeFunc {
		return renesas.NewProbe("ra4", always, renesas.Layout{
			FlashBase: 0x00000000, FlashSize: 512 * 1024,
			PageSize: 2 * 1024, WriteSize: 2,
			ErasedByte: 0xFF, CtrlBase: 0x407FE000,
			EraseTimeout:   pick(1*time.Second, cfg.EraseTimeout),
			ProgramTimeout: pick(50*time.Millisecond, cfg.ProgramTimeout),
		})
	},
	"ch32f103": func(_ accessor.CoreControl, _ Stubs, cfg *config.Config) driver.ProbeFunc {
		return ch32.NewProbe("ch32f103", always, ch32.Layout{
			FlashBase: 0x08000000, FlashSize: 64 * 1024,
			PageSize: 1024, ErasedByte: 0xFF, CtrlBase: 0x40022000,
			EraseTimeout:            pick(2*time.Second, cfg.EraseTimeout),
			ProgramTimeout:          pick(100*time.Millisecond, cfg.ProgramTimeout),
			EnableUndocumentedMagic: cfg.EnableUndocumentedMagic,
		})
	},
	"at32f437": func(_ accessor.CoreControl, _ Stubs, cfg *config.Config) driver.ProbeFunc {
		return at32.NewProbe("at32f437", always, at32.Layout{
			Banks: [2]at32.Bank{
				{CtrlBase: 0x40022000, FlashBase: 0x08000000, FlashSize: 1024 * 1024},
				{CtrlBase: 0x40022000, FlashBase: 0x08100000, FlashSize: 1024 * 1024},
			},
			PageSize: 2 * 1024, WriteSize: 4, ErasedByte: 0xFF,
			OptionBase: 0x1FFFC000, OptionSize: 32,
			EraseTimeout:       pick(4*time.Second, cfg.EraseTimeout),
			ProgramTimeout:     pick(100*time.Millisecond, cfg.ProgramTimeout),
			MassTimeout:        pick(40*time.Second, cfg.MassEraseTimeout),
			OptionEraseTimeout: pick(20*time.Second, cfg.AT32OptionErase),
		})
	},
	"sam4l": func(_ accessor.CoreControl, _ Stubs, cfg *config.Config) driver.ProbeFunc {
		return sam4l.NewProbe("sam4l", always, sam4l.Layout{
			FlashBase: 0x00000000, FlashSize: 512 * 1024,
			PageBufferBase: 0x00000000, PageSize: 512, WriteSize: 4,
			ErasedByte: 0xFF, CtrlBase: 0x400A0000,
			ResetReleaseAddr: 0x400E1400,
			EraseTimeout:     pick(100*time.Millisecond, cfg.EraseTimeout),
			ProgramTimeout:   pick(20*time.Millisecond, cfg.ProgramTimeout),
		})
	},
	"mspm0": func(_ accessor.CoreControl, _ Stubs, cfg *config.Config) driver.ProbeFunc {
		return mspm0.NewProbe("mspm0", always, mspm0.Layout{
			FlashBase: 0x00000000, FlashSize: 128 * 1024,
			SectorSize: 1024, WriteSize: 8, ErasedByte: 0xFF,
			CtrlBase:       0x400CD000,
			EraseTimeout:   pick(1*time.Second, cfg.EraseTimeout),
			ProgramTimeout: pick(50*time.Millisecond, cfg.ProgramTimeout),
			MassTimeout:    pick(10*time.Second, cfg.MassEraseTimeout),
		})
	},
	"xmega128a1": func(_ accessor.CoreControl, _ Stubs, cfg *config.Config) driver.ProbeFunc {
		return xmega.NewProbe("xmega128a1", always, xmega.Layout{
			FlashBase: 0x000000, FlashSize: 128 * 1024,
			PageSize: 256, WriteSize: 256, ErasedByte: 0xFF,
			CtrlBase:       0x01C0,
			EraseTimeout:   pick(100*time.Millisecond, cfg.EraseTimeout),
			ProgramTimeout: pick(20*time.Millisecond, cfg.ProgramTimeout),
		})
	},
	"rp2040": func(core accessor.CoreControl, stubs Stubs, cfg *config.Config) driver.ProbeFunc {
		return rp2.NewProbe("rp2040", always, core, rp2.Layout{
			FlashBase: 0x10000000, FlashSize: 2 * 1024 * 1024,
			BlockSize: 4096, WriteSize: 256, ErasedByte: 0xFF,
			StubRAMBase: 0x20000000, StageBase: 0x20010000,
			Sentinel:     0x20000000,
			Timeout:      pick(5*time.Second, cfg.StubTimeout),
			PollInterval: 10 * time.Millisecond,
			EraseBlob:    stubs.Erase, WriteBlob: stubs.Write,
		})
	},
	"lm3s": func(core accessor.CoreControl, stubs Stubs, cfg *config.Config) driver.ProbeFunc {
		return lmi.NewProbe("lm3s", always, core, lmi.Layout{
			FlashBase: 0x00000000, FlashSize: 256 * 1024,
			PageSize: 1024, WriteSize: 4, ErasedByte: 0xFF,
			CtrlBase:     0x400FD000,
			StubRAMBase:  0x20000000, StageBase: 0x20004000,
			Sentinel:     0x20000000,
			Timeout:      pick(5*time.Second, cfg.StubTimeout),
			PollInterval: 10 * time.Millisecond,
			WriteBlob:    stubs.Write,
			EraseTimeout: pick(1*time.Second, cfg.EraseTimeout),
		})
	},
}

// Names returns every known board name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build attaches the named board's probe to t, using core for stub-backed
// families and stubs for their RAM algorithm blobs. cfg may be nil, in
// which case every board uses its built-in timeout defaults. It fails if
// name isn't a known board.
func Build(t *target.Target, name string, core accessor.CoreControl, stubs Stubs, cfg *config.Config) error {
	factory, ok := registry[name]
	if !ok {
		return fmt.Errorf("unknown board %q (known boards: %v)", name, Names())
	}
	if cfg == nil {
		cfg = &config.Config{}
	}
	probe := factory(core, stubs, cfg)
	ok, err := probe(t)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("board %q probe declined to attach", name)
	}
	return nil
}
