// Package flashsvc implements the Flash region dispatcher (spec.md §4.E):
// it walks a target's memory map, aligns and splits host-supplied erase and
// write requests onto the owning Flash region(s), and aggregates small
// writes into the region's write-unit size before handing them to a
// driver's FlashOps.
package flashsvc

import (
	"sort"

	"github.com/blackprobe/probecore/pkg/target"
)

// Session is a single begin_flash/end_flash scoped flash programming
// session against one target (spec.md §3 "Flash session state").
type Session struct {
	t        *target.Target
	active   bool
	prepared []target.FlashOps
	buf      writeBuffer
}

// NewSession creates a dispatcher session bound to t. A session has no
// in-progress operation until BeginFlash succeeds.
func NewSession(t *target.Target) *Session {
	return &Session{t: t}
}

// BeginFlash walks every Flash region's distinct owner and calls Prepare
// once per owner (drivers that split banks register multiple regions
// sharing one owner, so the owner — not the region — is the unit of
// prepare/done, matching spec.md §3's "Called once per host flash
// session"). On failure it rolls back by calling Done on every owner that
// had already been prepared.
func (s *Session) BeginFlash() error {
	if s.active {
		return target.NewFault(target.ErrFlashBusy, nil)
	}

	seen := make(map[target.FlashOps]bool)
	var prepared []target.FlashOps
	for _, r := range s.t.Map.FlashRegions() {
		if r.Owner == nil || seen[r.Owner] {
			continue
		}
		seen[r.Owner] = true
		if err := r.Owner.Prepare(); err != nil {
			for _, p := range prepared {
				_ = p.Done()
			}
			return err
		}
		prepared = append(prepared, r.Owner)
	}

	s.prepared = prepared
	s.active = true
	s.buf.reset()
	return nil
}

// FlashErase erases [addr, addr+length). The range must be covered by one
// region, or by a contiguous run of adjacent Flash regions such as a split
// bank registers (spec.md §8 S2); anything else is ErrCrossRegion. Owners
// and write sizes of the run are not compared. Both ends are rounded
// to each covered region's BlockSize — erase, unlike write, is allowed to
// extend past the caller's range in both directions (spec.md §4.E "Tie-
// break on alignment"). length == 0 is tolerated silently (spec.md §7).
func (s *Session) FlashErase(addr, length uint32) error {
	if length == 0 {
		return nil
	}
	if !s.active {
		return target.NewFault(target.ErrFlashBusy, nil)
	}

	regions, err := coveringRegions(&s.t.Map, addr, length)
	if err != nil {
		return err
	}

	// An erase that overlaps the live write buffer's region must flush
	// first, so a subsequent write never lands on stale buffered bytes.
	if err := s.flushBuffer(); err != nil {
		return err
	}

	end := addr + length
	for _, r := range regions {
		segStart, segEnd := addr, end
		if r.Start > segStart {
			segStart = r.Start
		}
		if r.End() < segEnd {
			segEnd = r.End()
		}

		alignedStart := alignDown(segStart, r.BlockSize)
		if alignedStart < r.Start {
			alignedStart = r.Start
		}
		alignedEnd := alignUp(segEnd, r.BlockSize)
		if alignedEnd > r.End() {
			alignedEnd = r.End()
		}

		if err := r.Owner.Erase(alignedStart, alignedEnd-alignedStart); err != nil {
			return err
		}
	}
	return nil
}

// FlashWrite buffers and programs data, aggregating partial writes up to
// the owning region's WriteSize (spec.md §4.E). The full range must lie
// within a single region.
func (s *Session) FlashWrite(addr uint32, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if !s.active {
		return target.NewFault(target.ErrFlashBusy, nil)
	}

	region, err := s.t.Map.LookupRange(addr, uint32(len(buf)))
	if err != nil {
		return err
	}
	if region.Kind != target.KindFlash || region.Owner == nil {
		return target.NewRangeFault(target.ErrUnsupported, addr, uint32(len(buf)), nil)
	}

	if !s.buf.sameStream(region, addr) {
		if err := s.flushBuffer(); err != nil {
			return err
		}
		s.buf.open(region, addr)
	}
	s.buf.append(buf)

	for uint32(len(s.buf.data)) >= s.buf.region.WriteSize {
		ws := s.buf.region.WriteSize
		chunk := s.buf.data[:ws]
		if err := s.buf.region.Owner.Write(s.buf.base, chunk); err != nil {
			return err
		}
		s.buf.base += ws
		s.buf.data = s.buf.data[ws:]
	}
	if len(s.buf.data) == 0 {
		s.buf.reset()
	}
	return nil
}

// flushBuffer programs whatever partial write-unit is outstanding,
// padding the unfilled tail with the region's ErasedByte (spec.md §4.E
// step 2, §8 property 4).
func (s *Session) flushBuffer() error {
	if s.buf.empty() {
		return nil
	}
	if len(s.buf.data) == 0 {
		s.buf.reset()
		return nil
	}

	ws := s.buf.region.WriteSize
	padded := s.buf.data
	if uint32(len(padded)) < ws {
		padded = append(append([]byte{}, s.buf.data...), fill(ws-uint32(len(padded)), s.buf.region.ErasedByte)...)
	}

	err := s.buf.region.Owner.Write(s.buf.base, padded)
	s.buf.reset()
	return err
}

// EndFlash flushes any partial buffer, then calls Done on every prepared
// owner regardless of earlier failures, returning the first non-nil error
// encountered (spec.md §4.E, §7 "propagation policy").
func (s *Session) EndFlash() error {
	if !s.active {
		return nil
	}

	var first error
	if err := s.flushBuffer(); err != nil {
		first = err
	}
	for _, p := range s.prepared {
		if err := p.Done(); err != nil && first == nil {
			first = err
		}
	}

	s.prepared = nil
	s.active = false
	return first
}

// MassErase prefers the target's own mass_erase hook (spec.md §4.C Kind);
// failing that, it falls back to looping every Flash region's Erase over
// its full extent, or MassErase on regions whose owner implements it
// (spec.md §4.E "otherwise loop over all Flash regions").
func (s *Session) MassErase(progress target.ProgressFunc) error {
	if ok, err := s.t.Kind.MassErase(s.t, progress); ok {
		return err
	}

	seen := make(map[target.FlashOps]bool)
	for _, r := range s.t.Map.FlashRegions() {
		if r.Owner == nil {
			continue
		}
		if me, ok := r.Owner.(target.MassEraser); ok {
			if seen[r.Owner] {
				continue
			}
			seen[r.Owner] = true
			if err := me.MassErase(progress); err != nil {
				return err
			}
			continue
		}
		if err := r.Owner.Erase(r.Start, r.Length); err != nil {
			return err
		}
	}
	return nil
}

// coveringRegions returns, in address order, the contiguous run of Flash
// regions that together cover [addr, addr+length) in full. It fails with
// ErrCrossRegion if no such contiguous run exists.
func coveringRegions(m *target.MemoryMap, addr, length uint32) ([]target.Region, error) {
	end := addr + length
	var covering []target.Region
	for _, r := range m.FlashRegions() {
		if r.End() <= addr || r.Start >= end {
			continue
		}
		covering = append(covering, r)
	}
	if len(covering) == 0 {
		return nil, target.NewRangeFault(target.ErrCrossRegion, addr, length, nil)
	}

	sort.Slice(covering, func(i, j int) bool { return covering[i].Start < covering[j].Start })

	if covering[0].Start > addr || covering[len(covering)-1].End() < end {
		return nil, target.NewRangeFault(target.ErrCrossRegion, addr, length, nil)
	}
	for i := 1; i < len(covering); i++ {
		if covering[i].Start != covering[i-1].End() {
			return nil, target.NewRangeFault(target.ErrCrossRegion, addr, length, nil)
		}
	}
	return covering, nil
}

func alignDown(x, block uint32) uint32 {
	if block == 0 {
		return x
	}
	return x - x%block
}

func alignUp(x, block uint32) uint32 {
	if block == 0 {
		return x
	}
	if r := x % block; r != 0 {
		return x + (block - r)
	}
	return x
}

func fill(n uint32, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
