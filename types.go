package linkcore

// State identifies the stage of the session lifecycle.
type State uint8

const (
	// StateDown means no session is active; the link is idle or dead
	StateDown State = iota
	// StateHandshake means this side sent HELLO and awaits the accept
	StateHandshake
	// StateConnected means the handshake completed and data may flow
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDown:
		return "down"
	case StateHandshake:
		return "handshake"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Role records which side of the handshake this endpoint took.
type Role uint8

const (
	// RoleNone means no session has been established
	RoleNone Role = iota
	// RoleInitiator is the side that called Connect
	RoleInitiator
	// RoleResponder is the side that accepted a HELLO while listening
	RoleResponder
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "none"
	}
}

// MessageKind distinguishes how a received payload was carried.
type MessageKind uint8

const (
	// MessageReliable payloads arrive exactly once, in order
	MessageReliable MessageKind = 1
	// MessageUnreliable payloads arrive best-effort and may be dropped
	MessageUnreliable MessageKind = 2
)

// String returns a human-readable kind name.
func (k MessageKind) String() string {
	switch k {
	case MessageReliable:
		return "reliable"
	case MessageUnreliable:
		return "unreliable"
	default:
		return "unknown"
	}
}

// Session death reasons, reported by DeadReason and the disconnect
// callback.
const (
	// ReasonHandshakeTimeout: the peer never answered HELLO in time.
	ReasonHandshakeTimeout = "handshake_timeout"
	// ReasonMaxRetries: a reliable frame went unacknowledged through
	// every retransmission attempt.
	ReasonMaxRetries = "max_retries"
	// ReasonPeerTimeout: nothing was received for the liveness window.
	ReasonPeerTimeout = "peer_timeout"
	// ReasonResetPacket: the peer explicitly tore the session down.
	ReasonResetPacket = "reset_pkt"
	// ReasonQueueOverflow: a reliable payload arrived with no room left
	// in the receive queue.
	ReasonQueueOverflow = "rx_queue_overflow"
)

// ConnectCallback is invoked when a session reaches StateConnected, on
// both the initiating and the accepting side.
type ConnectCallback func(role Role)

// DisconnectCallback is invoked once when an established or pending
// session dies, with one of the Reason constants.
type DisconnectCallback func(reason string)

// MessageCallback is invoked for each inbound message. When registered it
// replaces the receive queue: payloads are handed to the callback instead
// of being queued for Receive.
type MessageCallback func(payload []byte, kind MessageKind)
