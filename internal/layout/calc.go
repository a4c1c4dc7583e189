// Package layout computes the exact byte layout of channel and call stack
// buffers: a packed header, a packed element record table, then one data
// region per filter, every boundary rounded up to MaxAlign.
package layout

import (
	"fmt"
	"math"
)

// MaxAlign is the maximum alignment requirement any filter data region may
// assume. Region boundaries are multiples of this, so filters can place
// any host type at the start of their region.
const MaxAlign = 16

// Packed sizes of the little-endian u32 fields at the head of each buffer
// and in each element record. Channel and call stacks keep parallel but
// distinct layouts.
const (
	ChannelHeaderSize = 8  // count, callStackSize
	CallHeaderSize    = 4  // count
	ChannelElemSize   = 12 // filterIndex, dataOff, dataLen
	CallElemSize      = 12 // filterIndex, dataOff, dataLen
)

// MaxStackSize caps a single stack buffer at 1 GB. Offsets and lengths are
// packed as u32, and no sane filter set comes anywhere near this.
const MaxStackSize = 1 << 30

// AlignUp rounds n up to the next multiple of align. align must be a
// power of two; anything else is a defect, not a runtime condition.
func AlignUp(n, align int) int {
	if align <= 0 || align&(align-1) != 0 {
		panic(fmt.Sprintf("layout: alignment %d is not a power of two", align))
	}
	return (n + align - 1) &^ (align - 1)
}

// SafeAdd reports a+b and whether it stayed in range.
func SafeAdd(a, b int) (int, bool) {
	if a > math.MaxInt-b {
		return 0, false
	}
	return a + b, true
}

// SafeMul reports a*b and whether it stayed in range.
func SafeMul(a, b int) (int, bool) {
	if b != 0 && a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}

// ChannelElemOff returns the buffer offset of channel element record i.
func ChannelElemOff(i int) int {
	return AlignUp(ChannelHeaderSize, MaxAlign) + i*ChannelElemSize
}

// CallElemOff returns the buffer offset of call element record i.
func CallElemOff(i int) int {
	return AlignUp(CallHeaderSize, MaxAlign) + i*CallElemSize
}

// ChannelTotal returns the exact buffer size for a channel stack whose
// filters declare the given channel data sizes. Negative or overflowing
// sizes panic: they mean a broken filter declaration, which construction
// must never paper over.
func ChannelTotal(dataSizes []int) int {
	return total(ChannelHeaderSize, ChannelElemSize, dataSizes)
}

// CallTotal returns the exact buffer size for a call stack whose filters
// declare the given call data sizes.
func CallTotal(dataSizes []int) int {
	return total(CallHeaderSize, CallElemSize, dataSizes)
}

func total(headerSize, elemSize int, dataSizes []int) int {
	table, ok := SafeMul(len(dataSizes), elemSize)
	if !ok || table > MaxStackSize {
		panic(fmt.Sprintf("layout: element table for %d filters exceeds the stack size cap", len(dataSizes)))
	}
	size := AlignUp(headerSize, MaxAlign) + AlignUp(table, MaxAlign)
	for i, ds := range dataSizes {
		if ds < 0 {
			panic(fmt.Sprintf("layout: filter %d declares negative data size %d", i, ds))
		}
		if ds > MaxStackSize {
			panic(fmt.Sprintf("layout: filter %d declares %d byte data region, above the stack size cap", i, ds))
		}
		size, ok = SafeAdd(size, AlignUp(ds, MaxAlign))
		if !ok || size > MaxStackSize {
			panic(fmt.Sprintf("layout: stack size overflows the cap at filter %d", i))
		}
	}
	return size
}
