package linkcore

import (
	"errors"
	"time"

	"github.com/pocket-link/linkcore/transport"
	"github.com/pocket-link/linkcore/wire"
	"github.com/sirupsen/logrus"
)

// Link is one endpoint of a point-to-point session over a word transport.
// It owns the whole protocol: framing, the HELLO handshake, stop-and-wait
// reliable delivery, keepalives and liveness tracking.
//
// A Link is single-threaded by design. All protocol work happens inside
// Poll, which the application calls once per tick, and inside the send
// and close operations, which run the same poll phase before acting.
// Nothing blocks: every internal loop is budget-capped.
type Link struct {
	tr     transport.Transport
	opts   Options
	clock  TimeProvider
	parser *wire.Parser

	state           State
	role            Role
	dead            bool
	deadReason      string
	listening       bool
	incomingPending bool
	ctrlRole        transport.Ctrl

	txSeq   uint8
	rxSeq   uint8
	pending *pendingReliable

	recvQ     []receiveRecord
	recvBytes int

	handshakeStart time.Time
	connectWindow  time.Duration
	lastRX         time.Time
	lastTX         time.Time
	lastHello      time.Time

	polling bool
	sending bool

	retransmits uint64
	delivered   uint64
	dropped     uint64

	connectCallback    ConnectCallback
	disconnectCallback DisconnectCallback
	messageCallback    MessageCallback
}

// New wraps a transport in an idle Link. The transport is reset and
// brought to a clean enabled state; the Link stays Down until Connect
// starts a handshake or a HELLO is accepted while listening.
func New(tr transport.Transport, opts *Options) (*Link, error) {
	if tr == nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
		}).Error("transport is nil")
		return nil, ErrNilTransport
	}

	var o Options
	if opts != nil {
		o = opts.withDefaults()
	} else {
		o = *NewOptions()
	}

	l := &Link{
		tr:     tr,
		opts:   o,
		clock:  RealTimeProvider{},
		parser: wire.NewParser(),
	}

	// Bring the device to a clean enabled state.
	tr.Configure(transport.CtrlReset)
	l.applyCtrl(transport.CtrlClearErr | transport.CtrlFlushRx | transport.CtrlFlushTx)
	l.applyCtrl(transport.CtrlClearErr)

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"status":   l.tr.ReadStatus().String(),
	}).Info("link initialized")
	return l, nil
}

// SetTimeProvider replaces the clock driving all session timers. Call it
// before starting a session; tests use it to advance time synthetically.
func (l *Link) SetTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = RealTimeProvider{}
	}
	l.clock = tp
}

// applyCtrl performs a full control register write carrying the enable
// bit, the retained role bits and the given pulses.
func (l *Link) applyCtrl(pulse transport.Ctrl) {
	l.tr.Configure(transport.CtrlEnable | l.ctrlRole | pulse)
}

// setRole selects the device role for the coming session and flushes any
// stale words and error state left over from a previous one.
func (l *Link) setRole(master bool) {
	if master {
		l.ctrlRole = transport.CtrlMaster | transport.CtrlPoll
	} else {
		l.ctrlRole = 0
	}
	l.applyCtrl(transport.CtrlClearErr | transport.CtrlFlushRx | transport.CtrlFlushTx)
	l.applyCtrl(transport.CtrlClearErr)
}

// resetSession returns all session state to idle. The listening flag and
// the device role survive; everything else is cleared.
func (l *Link) resetSession() {
	l.state = StateDown
	l.role = RoleNone
	l.dead = false
	l.deadReason = ""
	l.incomingPending = false
	l.txSeq = 0
	l.rxSeq = 0
	l.pending = nil
	l.sending = false
	l.handshakeStart = time.Time{}
	l.connectWindow = 0
	l.lastRX = time.Time{}
	l.lastTX = time.Time{}
	l.lastHello = time.Time{}
	l.parser.Reset()
	l.clearReceiveQueue()
}

// Listen controls whether inbound HELLO frames may open a session. While
// an accepted session is pending, disabling listen also withdraws it.
func (l *Link) Listen(enable bool) {
	l.listening = enable
	if enable && l.state == StateDown {
		l.setRole(false)
	}
	if !enable && l.role == RoleResponder {
		l.incomingPending = false
	}
}

// Connect starts a handshake as the initiator and returns immediately.
// The session is established once a HELLO-ACK arrives during a subsequent
// Poll; watch for StateConnected or register a connect callback. A
// timeout of zero selects the configured default. If no accept arrives
// within the window the session dies with ReasonHandshakeTimeout.
func (l *Link) Connect(timeout time.Duration) error {
	if l.state != StateDown {
		logrus.WithFields(logrus.Fields{
			"function": "Connect",
			"state":    l.state.String(),
		}).Warn("session already active or pending")
		return ErrSessionActive
	}
	if timeout <= 0 {
		timeout = l.opts.ConnectTimeout
	}

	l.resetSession()
	l.role = RoleInitiator
	l.setRole(true)
	l.state = StateHandshake

	now := l.clock.Now()
	l.handshakeStart = now
	l.connectWindow = timeout
	l.lastRX = now
	l.lastTX = now

	if l.sendFrame(wire.FrameHello, 0, nil) {
		l.lastHello = now
	}

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"timeout":  timeout,
		"status":   l.tr.ReadStatus().String(),
	}).Info("handshake started")
	return nil
}

// AcceptPending reports whether a listening link accepted a new session
// since the last call, consuming the notification. It advances the
// protocol first, so a server loop may drive the link with AcceptPending
// alone.
func (l *Link) AcceptPending() bool {
	l.Poll()

	if !l.listening || l.dead || l.state != StateConnected {
		return false
	}
	if !l.incomingPending {
		return false
	}
	l.incomingPending = false
	return true
}

// Close ends the session, telling the peer with a best-effort RESET
// frame, and returns the link to idle. Close never fails locally; a dead
// or idle link is simply reset. The link remains usable for a new
// Connect or Listen session.
func (l *Link) Close() {
	l.Poll()

	if l.state == StateConnected {
		l.sendFrame(wire.FrameReset, 0, nil)
	}
	logrus.WithFields(logrus.Fields{
		"function": "Close",
		"state":    l.state.String(),
		"role":     l.role.String(),
	}).Info("link closed")

	l.resetSession()
	l.setRole(false)
}

// State returns the current session state.
func (l *Link) State() State {
	return l.state
}

// Role returns which side of the session this endpoint took, or RoleNone
// before any session.
func (l *Link) Role() Role {
	return l.role
}

// DeadReason returns why the last session died, or the empty string if
// the session is healthy or none existed.
func (l *Link) DeadReason() string {
	return l.deadReason
}

// OnConnect sets the callback invoked when a session is established.
func (l *Link) OnConnect(callback ConnectCallback) {
	l.connectCallback = callback
}

// OnDisconnect sets the callback invoked when a session dies.
func (l *Link) OnDisconnect(callback DisconnectCallback) {
	l.disconnectCallback = callback
}

// OnMessage sets the callback invoked for each inbound message. While
// set, payloads bypass the receive queue entirely.
func (l *Link) OnMessage(callback MessageCallback) {
	l.messageCallback = callback
}

// Poll advances the protocol: it drains inbound words within the word
// budget, dispatching completed frames, then runs the handshake, retry,
// keepalive and liveness timers. Call it once per application tick. Poll
// never blocks, and reentrant calls (from inside a callback) are no-ops.
func (l *Link) Poll() {
	if l.polling {
		return
	}
	l.polling = true
	defer func() { l.polling = false }()

	l.pumpReceive()
	l.pollTimers()
}

// pumpReceive drains up to the word budget from the transport through the
// parser, dispatching each completed frame.
func (l *Link) pumpReceive() {
	for i := 0; i < l.opts.PollWordBudget; i++ {
		if l.tr.ReadStatus().Has(transport.StatusRxEmpty) {
			return
		}

		frame, err := l.parser.Consume(l.tr.PopWord())
		if err != nil {
			if errors.Is(err, wire.ErrChecksumMismatch) && l.tr.ReadStatus().Has(transport.StatusLinkUp) {
				l.applyCtrl(transport.CtrlClearErr)
			}
			continue
		}
		if frame != nil {
			l.handleFrame(frame)
		}
	}
}

// handleFrame dispatches one validated frame. Any frame at all counts as
// proof of peer liveness.
func (l *Link) handleFrame(f *wire.Frame) {
	l.lastRX = l.clock.Now()

	switch f.Type {
	case wire.FrameHello:
		l.onHello()
	case wire.FrameHelloAck:
		l.onHelloAck()
	case wire.FrameReliable:
		l.onReliable(f.Seq, f.Payload)
	case wire.FrameReliableAck:
		l.onReliableAck(f.Seq)
	case wire.FrameUnreliable:
		l.onUnreliable(f.Payload)
	case wire.FrameKeepalive:
		// Liveness already refreshed above.
	case wire.FrameReset:
		l.markDead(ReasonResetPacket)
	default:
		// Unknown frame types are ignored for forward compatibility.
	}
}

// onHello handles an inbound session request while this side listens.
// A HELLO on an established session means the initiator missed our
// accept, so it is re-acknowledged without resetting anything.
func (l *Link) onHello() {
	logrus.WithFields(logrus.Fields{
		"function":  "onHello",
		"listening": l.listening,
		"state":     l.state.String(),
	}).Debug("hello received")

	if !l.listening {
		return
	}
	if l.state == StateConnected {
		l.sendFrame(wire.FrameHelloAck, 0, nil)
		return
	}

	now := l.clock.Now()
	l.role = RoleResponder
	l.setRole(false)
	l.state = StateConnected
	l.dead = false
	l.deadReason = ""
	l.incomingPending = true
	l.pending = nil
	l.txSeq = 0
	l.rxSeq = 0
	l.lastRX = now
	l.lastTX = now
	l.clearReceiveQueue()

	l.sendFrame(wire.FrameHelloAck, 0, nil)

	logrus.WithFields(logrus.Fields{
		"function": "onHello",
		"role":     l.role.String(),
	}).Info("session accepted")

	if l.connectCallback != nil {
		l.connectCallback(l.role)
	}
}

// onHelloAck completes the handshake on the initiating side. Accepts are
// only honored while a handshake is actually in progress.
func (l *Link) onHelloAck() {
	if l.role != RoleInitiator || l.state != StateHandshake {
		return
	}

	now := l.clock.Now()
	l.state = StateConnected
	l.dead = false
	l.deadReason = ""
	l.lastRX = now
	l.lastTX = now

	logrus.WithFields(logrus.Fields{
		"function": "onHelloAck",
		"role":     l.role.String(),
	}).Info("session established")

	if l.connectCallback != nil {
		l.connectCallback(l.role)
	}
}

// pollTimers runs the time-driven half of the protocol for the current
// state.
func (l *Link) pollTimers() {
	now := l.clock.Now()

	if l.state == StateHandshake {
		if now.Sub(l.lastHello) >= l.opts.HelloInterval {
			if l.sendFrame(wire.FrameHello, 0, nil) {
				l.lastHello = now
			}
		}
		if now.Sub(l.handshakeStart) >= l.connectWindow {
			l.markDead(ReasonHandshakeTimeout)
			return
		}
		if now.Sub(l.lastRX) >= l.opts.PeerTimeout {
			l.markDead(ReasonPeerTimeout)
		}
		return
	}

	if l.state != StateConnected {
		return
	}

	l.retryPending(now)
	if l.state != StateConnected {
		return
	}

	if now.Sub(l.lastTX) >= l.opts.KeepaliveInterval {
		l.sendFrame(wire.FrameKeepalive, 0, nil)
	}

	if now.Sub(l.lastRX) >= l.opts.PeerTimeout {
		stats := l.Stats()
		logrus.WithFields(logrus.Fields{
			"function":      "pollTimers",
			"silence":       l.clock.Since(l.lastRX),
			"words":         stats.WordsConsumed,
			"frames":        stats.FramesAccepted,
			"checksum_fail": stats.ChecksumFailures,
			"status":        l.tr.ReadStatus().String(),
		}).Warn("peer timeout")
		l.markDead(ReasonPeerTimeout)
	}
}

// markDead terminates the session, recording why. The link stays Down
// until the application starts a new session.
func (l *Link) markDead(reason string) {
	wasAlive := !l.dead

	l.dead = true
	l.deadReason = reason
	l.state = StateDown
	l.pending = nil

	if !wasAlive {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "markDead",
		"reason":   reason,
		"role":     l.role.String(),
	}).Warn("link transport dead")

	if l.disconnectCallback != nil {
		l.disconnectCallback(reason)
	}
}

// sendFrame encodes and transmits one frame, waiting within the spin
// budget for transmit queue space. A frame abandoned mid-write is
// recovered by the peer's parser resynchronizing on the next magic word.
//
// The sending flag serializes transmissions: if a callback fired during
// frame dispatch reaches a send operation while another frame is being
// written, the inner transmission is refused rather than interleaved, and
// the retry timer recovers the loss.
func (l *Link) sendFrame(typ wire.FrameType, seq uint8, payload []byte) bool {
	if l.sending {
		logrus.WithFields(logrus.Fields{
			"function":   "sendFrame",
			"frame_type": typ.String(),
		}).Debug("transmission in progress, frame dropped")
		return false
	}

	words, err := wire.EncodeFrame(typ, seq, payload)
	if err != nil {
		return false
	}

	l.sending = true
	defer func() { l.sending = false }()

	if !l.txWaitSpace(wire.HeaderWords) {
		return false
	}
	for i, w := range words {
		if i >= wire.HeaderWords && !l.txWaitSpace(1) {
			return false
		}
		l.tr.PushWord(w)
	}

	l.lastTX = l.clock.Now()
	return true
}

// txWaitSpace polls the transport until it can take the given number of
// words, bounded by the spin budget. It never processes inbound data;
// draining is Poll's job alone.
func (l *Link) txWaitSpace(words int) bool {
	for spin := 0; spin < l.opts.TxSpaceSpins; spin++ {
		if !l.tr.ReadStatus().Has(transport.StatusTxFull) && l.tr.TxFreeWords() >= words {
			return true
		}
	}
	return false
}
