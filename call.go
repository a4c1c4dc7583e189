package rpcstack

import (
	"fmt"

	"github.com/wippyai/rpc-stack/errors"
	"github.com/wippyai/rpc-stack/internal/arena"
	"github.com/wippyai/rpc-stack/internal/layout"
	"github.com/wippyai/rpc-stack/status"
	"go.uber.org/zap"
)

// CallStack is one call's instantiated filter pipeline, laid out in a
// caller-provided buffer and sharing the parent channel stack's
// channel-scoped state.
type CallStack struct {
	arena  arena.Arena
	parent *ChannelStack
	elems  []CallElement
	frame  *callFrame
}

// InitCallStack lays a call stack out in buf and runs every filter's call
// init hook in application-to-transport order. buf must be exactly
// parent.CallStackSize() bytes long; any other length panics. Call
// elements reuse the parent's filters and alias its channel data regions;
// nothing is recomputed from the filter list.
//
// NewCall is the pooled equivalent for callers that do not manage call
// buffers themselves.
func InitCallStack(buf []byte, parent *ChannelStack, transportData any, initialOp *CallOp) *CallStack {
	s := &CallStack{}
	initCallStack(s, make([]CallElement, parent.Count()), buf, parent, transportData, initialOp)
	return s
}

func initCallStack(s *CallStack, elems []CallElement, buf []byte, parent *ChannelStack, transportData any, initialOp *CallOp) {
	want := parent.callStackSize
	if len(buf) != want {
		panic(fmt.Sprintf("rpcstack: call buffer is %d bytes, channel computed %d", len(buf), want))
	}

	s.arena = arena.New(buf)
	s.parent = parent
	s.elems = elems
	s.frame = nil

	header := s.arena.Alloc(layout.CallHeaderSize)
	// Reserve the element record table, mirroring the channel layout.
	s.arena.Alloc(len(parent.elems) * layout.CallElemSize)
	s.arena.PutU32(header.Off, uint32(len(parent.elems)))

	for i := range parent.elems {
		ce := &parent.elems[i]
		data := s.arena.Alloc(ce.filter.CallDataSize())
		rec := layout.CallElemOff(i)
		s.arena.PutU32(rec, uint32(i))
		s.arena.PutU32(rec+4, uint32(data.Off))
		s.arena.PutU32(rec+8, uint32(data.Size))

		s.elems[i] = CallElement{
			filter:      ce.filter,
			channelData: ce.data,
			callData:    s.arena.Bytes(data),
			idx:         i,
			stack:       s,
		}
		ce.filter.InitCallElem(&s.elems[i], transportData, initialOp)
	}

	parent.logger.Debug("call stack initialized",
		zap.Int("filters", len(s.elems)),
		zap.Int("call_stack_size", want))
}

// Count returns the number of elements in the stack.
func (s *CallStack) Count() int { return len(s.elems) }

// Element returns the i'th element, counting from the application edge.
// It panics if i is out of range.
func (s *CallStack) Element(i int) *CallElement { return &s.elems[i] }

// Parent returns the channel stack this call was created on.
func (s *CallStack) Parent() *ChannelStack { return s.parent }

// StartOp hands op to the application-edge element, entering the stack.
func (s *CallStack) StartOp(op *CallOp) {
	e := &s.elems[0]
	e.filter.StartTransportOp(e, op)
}

// Destroy runs every filter's call destroy hook in the same order init
// ran them. Pooled stacks return their frame to the parent channel's
// pool. The stack and its elements must not be used after Destroy
// returns.
func (s *CallStack) Destroy() {
	for i := range s.elems {
		s.elems[i].filter.DestroyCallElem(&s.elems[i])
	}
	s.parent.logger.Debug("call stack destroyed", zap.Int("filters", len(s.elems)))
	if f := s.frame; f != nil {
		s.frame = nil
		s.parent.callPool.Put(f)
	}
}

// CallElement is one filter's call-scoped slot. It carries the filter,
// the call-scoped data region, and the channel data region shared with
// the parent stack's element at the same position.
type CallElement struct {
	filter      Filter
	channelData []byte
	callData    []byte
	idx         int
	stack       *CallStack
}

// Filter returns the filter instantiated at this element.
func (e *CallElement) Filter() Filter { return e.filter }

// CallData returns the element's call-scoped data region. The slice
// aliases the call buffer.
func (e *CallElement) CallData() []byte { return e.callData }

// ChannelData returns the channel-scoped data region shared with the
// parent channel element at the same position.
func (e *CallElement) ChannelData() []byte { return e.channelData }

// Index returns the element's position, 0 at the application edge.
func (e *CallElement) Index() int { return e.idx }

// Stack returns the call stack that owns this element.
func (e *CallElement) Stack() *CallStack { return e.stack }

// NextOp forwards op to the next element toward the transport. It panics
// past the transport edge; the final element must complete ops itself.
func (e *CallElement) NextOp(op *CallOp) {
	next := &e.stack.elems[e.idx+1]
	e.stack.parent.logger.Debug("forwarding call op",
		zap.Int("from", e.idx),
		zap.Int("to", next.idx),
		zap.Bool("cancel", op.CancelStatus != status.OK))
	next.filter.StartTransportOp(next, op)
}

// SendCancel forwards a fresh cancellation op from this element toward
// the transport. The op carries no work besides the cancel demand.
func (e *CallElement) SendCancel() {
	var op CallOp
	op.CancelStatus = status.Cancelled
	e.NextOp(&op)
}

// RecvStatus reports final status delivery, which this layer does not
// provide. It always returns an error; transports surface final status
// through their own completion callbacks.
func (e *CallElement) RecvStatus(code status.Code, message string) error {
	return errors.New(errors.PhaseStatus, errors.KindUnsupported).
		Filter(e.filter.Name()).
		Index(e.idx).
		Detail("cannot deliver status %s %q at the stack layer; transports surface final status through their own callbacks", code, message).
		Build()
}
