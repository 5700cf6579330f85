// Package driver implements the target driver framework (spec.md §4.G): an
// ordered probe registry, run against a tentative target until one probe
// claims it, installs the target's vtable and memory map, and registers
// any monitor commands.
package driver

import "github.com/blackprobe/probecore/pkg/target"

// ProbeFunc inspects t's Identity (already populated by the debug link
// with CPUID/part-id) and, if it recognizes the part, populates the memory
// map, installs the Kind vtable, registers monitor commands, and returns
// true. A probe must be side-effect-free on a miss: no writes to target
// memory, no state left behind (spec.md §4.G).
type ProbeFunc func(t *target.Target) (bool, error)

// Registry is the ordered list of probes consulted after the debug
// transport reads out a tentative identity.
type Registry struct {
	probes []namedProbe
}

type namedProbe struct {
	name string
	fn   ProbeFunc
}

// Register appends a probe under a display name, used only for
// diagnostics when no probe claims a target.
func (r *Registry) Register(name string, fn ProbeFunc) {
	r.probes = append(r.probes, namedProbe{name, fn})
}

// Probe runs every registered probe in registration order against t,
// stopping at the first one that claims it.
func (r *Registry) Probe(t *target.Target) (bool, error) {
	for _, p := range r.probes {
		ok, err := p.fn(t)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Names returns every registered probe's display name, in registration
// order, for diagnostics when a probe attempt finds nothing.
func (r *Registry) Names() []string {
	names := make([]string, len(r.probes))
	for i, p := range r.probes {
		names[i] = p.name
	}
	return names
}
