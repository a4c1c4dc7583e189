package rpcstack

// Filter is one stage of a channel pipeline. A channel stack instantiates
// every filter in its list exactly once as a channel element; each call
// on that channel instantiates the same list again as call elements that
// share the channel-scoped state.
//
// Size methods must return the same value for the lifetime of the filter:
// the stack carves per-element regions out of a single caller buffer whose
// size is computed up front from these methods. Data regions are not
// zeroed; init hooks must fully establish their state before reading it.
//
// Hooks run on the caller's goroutine and the stack does no locking.
// Channel elements are shared by every call on the channel, so filters
// that mutate channel data after initialization must synchronize that
// access themselves. Call elements belong to a single call.
type Filter interface {
	// Name identifies the filter in logs, errors, and layout listings.
	Name() string

	// ChannelDataSize is the per-channel state size in bytes.
	ChannelDataSize() int

	// CallDataSize is the per-call state size in bytes.
	CallDataSize() int

	// InitChannelElem establishes channel-scoped state. The head element
	// is the application edge, the tail element the transport edge; a
	// single-filter stack is both.
	InitChannelElem(elem *ChannelElement, cfg *ChannelArgs, meta any, head, tail bool)

	// DestroyChannelElem releases channel-scoped state. The element's
	// data region remains valid during the hook.
	DestroyChannelElem(elem *ChannelElement)

	// InitCallElem establishes call-scoped state. transportData comes
	// from the transport for server-created calls and is nil otherwise.
	// initialOp, when non-nil, is the first op the call was created to
	// carry.
	InitCallElem(elem *CallElement, transportData any, initialOp *CallOp)

	// DestroyCallElem releases call-scoped state.
	DestroyCallElem(elem *CallElement)

	// ChannelOp handles a channel-scoped operation arriving at elem.
	// from is the element that forwarded the op, or nil when the op was
	// injected from outside the stack. Filters pass ops along with
	// elem.NextOp.
	ChannelOp(elem *ChannelElement, from *ChannelElement, op *ChannelOp)

	// StartTransportOp handles a call op arriving at elem on its way to
	// the transport. Filters pass ops along with elem.NextOp; the final
	// element completes them.
	StartTransportOp(elem *CallElement, op *CallOp)
}
