// Package arena carves a single caller-provided buffer into aligned,
// bounds-checked regions. It is the backing store for channel and call
// stacks: one Arena per stack, regions handed out in construction order.
package arena

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/rpc-stack/internal/layout"
)

// Region is a handle to a byte range inside an Arena. The zero value is
// an empty region at offset 0.
type Region struct {
	Off  int
	Size int
}

// Arena tracks a buffer and an allocation cursor. Every region it hands
// out starts at a multiple of layout.MaxAlign; the cursor advances by the
// aligned size so the next region starts aligned too.
type Arena struct {
	buf []byte
	off int
}

// New wraps buf. The arena never grows the buffer; a carve past its end
// panics, since buffer sizes are precomputed and a mismatch is a defect.
func New(buf []byte) Arena {
	return Arena{buf: buf}
}

// Alloc carves the next region of exactly size bytes. The cursor advances
// by the size rounded up to layout.MaxAlign; the padding belongs to no
// region.
func (a *Arena) Alloc(size int) Region {
	if size < 0 {
		panic(fmt.Sprintf("arena: negative region size %d", size))
	}
	padded := layout.AlignUp(size, layout.MaxAlign)
	if padded < size || a.off+padded < a.off || a.off+padded > len(a.buf) {
		panic(fmt.Sprintf("arena: region of %d bytes at offset %d exceeds %d byte buffer", size, a.off, len(a.buf)))
	}
	r := Region{Off: a.off, Size: size}
	a.off += padded
	return r
}

// Bytes returns the region's backing slice, capacity-clamped so appends
// cannot bleed into neighboring regions. Zero-size regions yield an empty
// slice at the region offset.
func (a *Arena) Bytes(r Region) []byte {
	if r.Off < 0 || r.Size < 0 || r.Off+r.Size < r.Off || r.Off+r.Size > len(a.buf) {
		panic(fmt.Sprintf("arena: region [%d:%d) out of range of %d byte buffer", r.Off, r.Off+r.Size, len(a.buf)))
	}
	return a.buf[r.Off : r.Off+r.Size : r.Off+r.Size]
}

// PutU32 writes v little-endian at off.
func (a *Arena) PutU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(a.buf[off:off+4], v)
}

// U32 reads a little-endian u32 at off.
func (a *Arena) U32(off int) uint32 {
	return binary.LittleEndian.Uint32(a.buf[off : off+4])
}

// Offset reports the allocation cursor: the total aligned bytes carved so
// far. After stack construction this must equal the precomputed buffer
// size.
func (a *Arena) Offset() int {
	return a.off
}

// Len reports the buffer size.
func (a *Arena) Len() int {
	return len(a.buf)
}
