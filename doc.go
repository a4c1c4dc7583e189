// Package rpcstack provides composable filter pipelines for RPC channels
// and calls over single-allocation buffers.
//
// A channel stack instantiates an ordered list of filters once per
// channel; each call on that channel instantiates the same list again as
// a call stack that shares the channel-scoped state. All per-element
// state lives in one caller-provided buffer per stack, laid out at fixed
// offsets computed up front.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	rpcstack/            Root package with filters, stacks, elements, and ops
//	├── internal/layout/ Alignment math and stack buffer size computation
//	├── internal/arena/  Bounds-checked region carving over caller buffers
//	├── errors/          Structured error types for debugging
//	├── status/          RPC status codes
//	├── cmd/stackview/   Interactive stack layout inspector
//	├── examples/        Runnable usage demonstrations
//	└── testbed/         End-to-end integration tests
//
// # Quick Start
//
// Build a channel stack and run a call through it:
//
//	stack, err := rpcstack.NewBuilder().
//	    Append(authFilter, retryFilter, transportFilter).
//	    WithArgs(rpcstack.NewChannelArgs(
//	        rpcstack.ChannelArg{Key: "max-frame-bytes", Value: 16384},
//	    )).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stack.Destroy()
//
//	call := stack.NewCall(nil, nil)
//	call.StartOp(&rpcstack.CallOp{SendOps: payload})
//	call.Destroy()
//
// Callers that manage memory themselves can size and place stacks
// explicitly with ChannelStackSize, InitChannelStack, and InitCallStack.
//
// # Filters and Elements
//
// A Filter contributes two data regions and a set of hooks. Element 0 of
// every stack sits at the application edge and the last element at the
// transport edge. Ops travel between adjacent elements: call ops move
// only toward the transport, channel ops carry an explicit direction.
// Each element can recover its owning stack, so a filter holding only an
// element pointer can still reach its neighbors and the pipeline
// metadata.
//
// # Buffer Layout
//
// Each stack occupies exactly one buffer: a fixed header, a table of
// element records, then one data region per filter, every piece aligned
// to a 16 byte boundary. Layout sizes are computed once from the filter
// list; initialization asserts that carving the buffer lands exactly on
// the computed total. Layout on either stack type reports the resulting
// regions.
//
// # Thread Safety
//
// ChannelStack is safe for concurrent reads and concurrent call creation
// once initialized. CallStack is NOT thread-safe and should be used by a
// single goroutine, or access must be synchronized. The stack itself does
// no locking around filter hooks.
//
// # Memory Model
//
// Stacks never allocate behind the caller's back and never free: Destroy
// runs filter hooks and returns, leaving the buffer to its owner.
// NewCall draws call buffers from a per-channel pool; pooled frames are
// not zeroed between calls, so filters must fully establish their call
// state in InitCallElem.
package rpcstack
