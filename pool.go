package rpcstack

// callFrame is a reusable call allocation: the buffer, the element slice,
// and the stack shell. Frames cycle through the owning channel stack's
// pool so steady-state calls allocate nothing.
type callFrame struct {
	buf   []byte
	elems []CallElement
	stack CallStack
}

// NewCall creates a call stack on a pooled frame sized for this channel
// and runs the filters' call init hooks, passing transportData and
// initialOp through. Destroy returns the frame to the pool.
//
// Frames are not zeroed between calls; filters must fully establish their
// call state in InitCallElem.
func (c *ChannelStack) NewCall(transportData any, initialOp *CallOp) *CallStack {
	f := c.callPool.Get().(*callFrame)
	initCallStack(&f.stack, f.elems, f.buf, c, transportData, initialOp)
	f.stack.frame = f
	return &f.stack
}
