package rpcstack

import (
	"fmt"
	"sync"

	"github.com/wippyai/rpc-stack/internal/arena"
	"github.com/wippyai/rpc-stack/internal/layout"
	"go.uber.org/zap"
)

// ChannelStackSize computes the exact buffer size in bytes that
// InitChannelStack requires for the given filter list. It panics if a
// filter is nil, reports a negative size, or the combined layout exceeds
// the size cap. Builder.Build checks the same conditions and returns
// errors instead.
func ChannelStackSize(filters []Filter) int {
	sizes := make([]int, len(filters))
	for i, f := range filters {
		if f == nil {
			panic(fmt.Sprintf("rpcstack: filter at index %d is nil", i))
		}
		sizes[i] = f.ChannelDataSize()
	}
	return layout.ChannelTotal(sizes)
}

// ChannelStack is a channel's instantiated filter pipeline, laid out in a
// single caller-provided buffer. Element 0 sits at the application edge
// and the last element at the transport edge.
type ChannelStack struct {
	arena         arena.Arena
	elems         []ChannelElement
	callStackSize int
	logger        *zap.Logger
	callPool      sync.Pool
}

// InitChannelStack lays a channel stack out in buf and runs every
// filter's channel init hook in application-to-transport order. buf must
// be exactly ChannelStackSize(filters) bytes long; any other length
// panics. A nil logger disables logging.
//
// The stack borrows buf for its lifetime. The caller must not reuse the
// buffer until after Destroy returns.
func InitChannelStack(buf []byte, filters []Filter, cfg *ChannelArgs, meta any, logger *zap.Logger) *ChannelStack {
	if logger == nil {
		logger = zap.NewNop()
	}
	want := ChannelStackSize(filters)
	if len(buf) != want {
		panic(fmt.Sprintf("rpcstack: channel buffer is %d bytes, layout requires %d", len(buf), want))
	}

	c := &ChannelStack{
		arena:  arena.New(buf),
		elems:  make([]ChannelElement, len(filters)),
		logger: logger,
	}
	c.callPool.New = func() any {
		return &callFrame{
			buf:   make([]byte, c.callStackSize),
			elems: make([]CallElement, len(c.elems)),
		}
	}

	header := c.arena.Alloc(layout.ChannelHeaderSize)
	// Reserve the element record table; records are written at the
	// offsets layout.ChannelElemOff computes.
	c.arena.Alloc(len(filters) * layout.ChannelElemSize)

	callSizes := make([]int, len(filters))
	for i, f := range filters {
		data := c.arena.Alloc(f.ChannelDataSize())
		rec := layout.ChannelElemOff(i)
		c.arena.PutU32(rec, uint32(i))
		c.arena.PutU32(rec+4, uint32(data.Off))
		c.arena.PutU32(rec+8, uint32(data.Size))

		c.elems[i] = ChannelElement{
			filter: f,
			data:   c.arena.Bytes(data),
			idx:    i,
			stack:  c,
		}
		callSizes[i] = f.CallDataSize()

		logger.Debug("initializing channel element",
			zap.Int("index", i),
			zap.String("filter", f.Name()),
			zap.Int("channel_data_size", data.Size))
		f.InitChannelElem(&c.elems[i], cfg, meta, i == 0, i == len(filters)-1)
	}

	if got := c.arena.Offset(); got != want {
		panic(fmt.Sprintf("rpcstack: channel layout mismatch: consumed %d bytes, computed %d", got, want))
	}

	c.callStackSize = layout.CallTotal(callSizes)
	c.arena.PutU32(header.Off, uint32(len(filters)))
	c.arena.PutU32(header.Off+4, uint32(c.callStackSize))

	logger.Debug("channel stack initialized",
		zap.Int("filters", len(filters)),
		zap.Int("channel_stack_size", want),
		zap.Int("call_stack_size", c.callStackSize))
	return c
}

// Count returns the number of elements in the stack.
func (c *ChannelStack) Count() int { return len(c.elems) }

// CallStackSize returns the exact buffer size in bytes that each call
// created on this channel requires.
func (c *ChannelStack) CallStackSize() int { return c.callStackSize }

// Element returns the i'th element, counting from the application edge.
// It panics if i is out of range.
func (c *ChannelStack) Element(i int) *ChannelElement { return &c.elems[i] }

// LastElement returns the transport-edge element. It panics on an empty
// stack.
func (c *ChannelStack) LastElement() *ChannelElement { return &c.elems[len(c.elems)-1] }

// Destroy runs every filter's channel destroy hook in the same order init
// ran them. It releases no memory; the buffer belongs to the caller. The
// stack must not be used after Destroy returns.
func (c *ChannelStack) Destroy() {
	for i := range c.elems {
		c.logger.Debug("destroying channel element",
			zap.Int("index", i),
			zap.String("filter", c.elems[i].filter.Name()))
		c.elems[i].filter.DestroyChannelElem(&c.elems[i])
	}
	c.logger.Debug("channel stack destroyed", zap.Int("filters", len(c.elems)))
}

// ChannelElement is one filter's channel-scoped slot: the filter, its
// region of the channel buffer, and its position in the pipeline.
type ChannelElement struct {
	filter Filter
	data   []byte
	idx    int
	stack  *ChannelStack
}

// Filter returns the filter instantiated at this element.
func (e *ChannelElement) Filter() Filter { return e.filter }

// ChannelData returns the element's channel-scoped data region. The slice
// aliases the stack buffer; it is shared with every call element at the
// same position.
func (e *ChannelElement) ChannelData() []byte { return e.data }

// Index returns the element's position, 0 at the application edge.
func (e *ChannelElement) Index() int { return e.idx }

// Stack returns the channel stack that owns this element.
func (e *ChannelElement) Stack() *ChannelStack { return e.stack }

// NextOp forwards op to the adjacent element in the op's direction,
// recording this element as the origin. It panics if the op would run off
// either end of the stack; edge elements must consume what they cannot
// forward.
func (e *ChannelElement) NextOp(op *ChannelOp) {
	next := &e.stack.elems[e.idx+int(op.Dir)]
	e.stack.logger.Debug("forwarding channel op",
		zap.Stringer("type", op.Type),
		zap.Stringer("dir", op.Dir),
		zap.Int("from", e.idx),
		zap.Int("to", next.idx))
	next.filter.ChannelOp(next, e, op)
}
