package flashsvc

import "github.com/blackprobe/probecore/pkg/target"

// bufferState is the write buffer's tagged state (spec.md §9 describes
// Empty | Partial | Full). Only two states are stored: FlashWrite hands
// each complete WriteSize unit to the driver as soon as it forms, so a
// full buffer never persists as a state of its own.
type bufferState int

const (
	bufEmpty bufferState = iota
	bufPartial
)

// writeBuffer accumulates a partial Flash write until it reaches the
// region's WriteSize, at which point the dispatcher flushes it with one
// call to region.Owner.Write (spec.md §3 "Flash session state", §4.E).
type writeBuffer struct {
	state  bufferState
	region target.Region
	base   uint32 // target address the buffered bytes start at
	data   []byte // filled bytes so far, len(data) <= region.WriteSize
}

func (b *writeBuffer) empty() bool { return b.state == bufEmpty }

// sameStream reports whether an incoming write at addr into region
// continues the buffer in place (same region, directly contiguous).
func (b *writeBuffer) sameStream(region target.Region, addr uint32) bool {
	return b.state == bufPartial &&
		b.region.Owner == region.Owner &&
		b.region.Start == region.Start &&
		addr == b.base+uint32(len(b.data))
}

func (b *writeBuffer) open(region target.Region, addr uint32) {
	b.state = bufPartial
	b.region = region
	b.base = addr
	b.data = b.data[:0]
}

func (b *writeBuffer) append(buf []byte) {
	b.data = append(b.data, buf...)
}

// full reports whether the buffer holds at least one full write-unit.
func (b *writeBuffer) full() bool {
	return b.state == bufPartial && uint32(len(b.data)) >= b.region.WriteSize
}

func (b *writeBuffer) reset() {
	b.state = bufEmpty
	b.data = b.data[:0]
}
