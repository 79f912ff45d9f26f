package linkcore

import (
	"time"

	"github.com/pocket-link/linkcore/transport"
	"github.com/pocket-link/linkcore/wire"
	"github.com/sirupsen/logrus"
)

// pendingReliable tracks the single reliable message in flight. The
// stop-and-wait design keeps exactly one message outstanding, which is
// enough for the low-bandwidth, order-sensitive channel this protocol
// targets and avoids reordering buffers entirely.
type pendingReliable struct {
	seq     uint8
	payload []byte
	sentAt  time.Time
	retries int
}

// Send transmits data with guaranteed in-order, exactly-once delivery.
// Only one reliable message may be in flight: until the peer acknowledges
// it, further calls return ErrBusy. Send first advances the protocol the
// same way Poll does, so the error it returns reflects the current state
// of the session.
func (l *Link) Send(data []byte) error {
	if len(data) > wire.MaxPayload {
		return ErrPayloadTooLarge
	}

	l.Poll()

	if l.dead {
		return ErrDead
	}
	if l.state != StateConnected {
		return ErrNotConnected
	}
	if l.pending != nil {
		return ErrBusy
	}

	if !l.sendFrame(wire.FrameReliable, l.txSeq, data) {
		logrus.WithFields(logrus.Fields{
			"function":    "Send",
			"seq":         l.txSeq,
			"payload_len": len(data),
		}).Warn("reliable frame transmission failed")
		return ErrTransmitFailed
	}

	l.pending = &pendingReliable{
		seq:     l.txSeq,
		payload: append([]byte(nil), data...),
		sentAt:  l.clock.Now(),
	}
	return nil
}

// SendUnreliable transmits data best-effort: no retransmission, no
// ordering guarantee beyond the transport's own, and silent loss when the
// peer's queue is full.
func (l *Link) SendUnreliable(data []byte) error {
	if len(data) > wire.MaxPayload {
		return ErrPayloadTooLarge
	}

	l.Poll()

	if l.dead {
		return ErrDead
	}
	if l.state != StateConnected {
		return ErrNotConnected
	}
	if !l.sendFrame(wire.FrameUnreliable, 0, data) {
		return ErrTransmitFailed
	}
	return nil
}

// CanSend reports whether a reliable message would be accepted right now.
func (l *Link) CanSend() bool {
	return l.state == StateConnected && !l.dead && l.pending == nil
}

// CanSendUnreliable reports whether the transmit path can take an
// unreliable message without waiting.
func (l *Link) CanSendUnreliable() bool {
	if l.dead || l.state != StateConnected {
		return false
	}
	return !l.tr.ReadStatus().Has(transport.StatusTxFull)
}

// onReliable handles an inbound reliable payload.
//
// The expected sequence number delivers and acknowledges. The previous
// sequence number means the peer missed our acknowledgment, so it is
// acknowledged again without re-delivering. Anything else is answered
// with an acknowledgment of the last accepted sequence number as a
// resynchronization hint.
func (l *Link) onReliable(seq uint8, payload []byte) {
	if l.state != StateConnected {
		return
	}

	if seq == l.rxSeq {
		if !l.deliver(MessageReliable, payload) {
			logrus.WithFields(logrus.Fields{
				"function":    "onReliable",
				"seq":         seq,
				"payload_len": len(payload),
				"queue_bytes": l.recvBytes,
			}).Error("reliable receive queue overflow")
			l.markDead(ReasonQueueOverflow)
			return
		}
		l.rxSeq++
		l.sendFrame(wire.FrameReliableAck, seq, nil)
		return
	}

	lastGood := l.rxSeq - 1
	if seq == lastGood {
		// Duplicate: our acknowledgment was lost, repeat it.
		l.sendFrame(wire.FrameReliableAck, seq, nil)
		return
	}

	// Unexpected sequence: tell the peer what we last accepted.
	l.sendFrame(wire.FrameReliableAck, lastGood, nil)
}

// onReliableAck handles an inbound acknowledgment. Stale and duplicate
// acknowledgments are ignored.
func (l *Link) onReliableAck(seq uint8) {
	if l.pending == nil {
		return
	}
	if seq != l.pending.seq {
		return
	}
	l.pending = nil
	l.txSeq++
	logrus.WithFields(logrus.Fields{
		"function": "onReliableAck",
		"seq":      seq,
	}).Debug("reliable message acknowledged")
}

// retryPending retransmits the in-flight reliable frame once its retry
// interval elapses, and kills the session when the retry budget is spent.
// Only successful retransmissions count against the budget, so a
// temporarily unwritable transport does not burn attempts.
func (l *Link) retryPending(now time.Time) {
	if l.pending == nil || now.Sub(l.pending.sentAt) < l.opts.RetryInterval {
		return
	}

	if l.pending.retries >= l.opts.MaxRetries {
		logrus.WithFields(logrus.Fields{
			"function":    "retryPending",
			"seq":         l.pending.seq,
			"payload_len": len(l.pending.payload),
			"retries":     l.pending.retries,
		}).Warn("reliable message exhausted retries")
		l.markDead(ReasonMaxRetries)
		return
	}

	if l.sendFrame(wire.FrameReliable, l.pending.seq, l.pending.payload) {
		l.pending.sentAt = now
		l.pending.retries++
		l.retransmits++
	}
}
