package rpcstack

import "github.com/wippyai/rpc-stack/internal/layout"

// RegionInfo describes one region of a stack buffer: its name, its offset
// and declared size, and the padding that aligns the next region.
type RegionInfo struct {
	Name string
	Off  int
	Size int
	Pad  int
}

// End returns the first offset past the region and its padding.
func (r RegionInfo) End() int {
	return r.Off + r.Size + r.Pad
}

// Layout lists the stack buffer's regions in offset order: the header,
// the element record table, then one region per filter. Sizes come from
// the records written at initialization.
func (c *ChannelStack) Layout() []RegionInfo {
	regs := fixedRegions(layout.ChannelHeaderSize, len(c.elems), layout.ChannelElemSize)
	for i := range c.elems {
		rec := layout.ChannelElemOff(i)
		regs = append(regs, RegionInfo{
			Name: c.elems[i].filter.Name(),
			Off:  int(c.arena.U32(rec + 4)),
			Size: int(c.arena.U32(rec + 8)),
			Pad:  pad(int(c.arena.U32(rec + 8))),
		})
	}
	return regs
}

// Layout lists the call buffer's regions in offset order, mirroring
// ChannelStack.Layout.
func (s *CallStack) Layout() []RegionInfo {
	regs := fixedRegions(layout.CallHeaderSize, len(s.elems), layout.CallElemSize)
	for i := range s.elems {
		rec := layout.CallElemOff(i)
		regs = append(regs, RegionInfo{
			Name: s.elems[i].filter.Name(),
			Off:  int(s.arena.U32(rec + 4)),
			Size: int(s.arena.U32(rec + 8)),
			Pad:  pad(int(s.arena.U32(rec + 8))),
		})
	}
	return regs
}

func fixedRegions(headerSize, count, recSize int) []RegionInfo {
	regs := make([]RegionInfo, 0, 2+count)
	regs = append(regs, RegionInfo{
		Name: "header",
		Off:  0,
		Size: headerSize,
		Pad:  pad(headerSize),
	})
	tbl := count * recSize
	regs = append(regs, RegionInfo{
		Name: "elements",
		Off:  layout.AlignUp(headerSize, layout.MaxAlign),
		Size: tbl,
		Pad:  pad(tbl),
	})
	return regs
}

func pad(size int) int {
	return layout.AlignUp(size, layout.MaxAlign) - size
}
