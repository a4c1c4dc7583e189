package rpcstack

import "github.com/wippyai/rpc-stack/status"

// Direction orients a channel-scoped operation. Element indexes grow
// toward the transport, so propagation adds the direction to the current
// index.
type Direction int

const (
	TowardTransport   Direction = 1
	TowardApplication Direction = -1
)

func (d Direction) String() string {
	switch d {
	case TowardTransport:
		return "toward_transport"
	case TowardApplication:
		return "toward_application"
	default:
		return "invalid_direction"
	}
}

// ChannelOpType identifies a channel-scoped control operation.
type ChannelOpType uint8

const (
	AcceptCall ChannelOpType = iota
	GoAway
	Disconnect
	TransportClosed
)

func (t ChannelOpType) String() string {
	switch t {
	case AcceptCall:
		return "accept_call"
	case GoAway:
		return "goaway"
	case Disconnect:
		return "disconnect"
	case TransportClosed:
		return "transport_closed"
	default:
		return "unknown_op"
	}
}

// ChannelOp is a channel-scoped control operation traveling through the
// element sequence in the direction it carries. The payload is opaque to
// the stack; filters interpret it.
type ChannelOp struct {
	Type    ChannelOpType
	Dir     Direction
	Payload any
}

// CallOp is a batch of call work handed from one element to the next,
// toward the transport. The stack reads none of it except CancelStatus,
// which it sets when building cancellation ops; everything else belongs
// to filters and the transport.
//
// The zero value is an empty op carrying no work and no cancellation.
type CallOp struct {
	// SendOps and RecvOps are opaque operation payloads owned by whichever
	// filter or transport produced them.
	SendOps any
	RecvOps any

	// OnDone, if non-nil, is invoked with the outcome by the element that
	// completes the op.
	OnDone func(ok bool)

	// CancelStatus demands cancellation of the call when not status.OK.
	CancelStatus  status.Code
	CancelMessage string
}
