package linkcore

import "github.com/sirupsen/logrus"

// receiveRecord is one inbound message waiting to be consumed.
type receiveRecord struct {
	kind    MessageKind
	payload []byte
}

// recordCost is the queue budget charged for a payload of n bytes: the
// payload plus four bytes of record overhead, rounded up to a word
// boundary.
func recordCost(n int) int {
	return (n + 4 + 3) &^ 3
}

// deliver hands an inbound payload to the application, either through the
// message callback or by appending it to the bounded receive queue. It
// reports false when the queue cannot take the message.
func (l *Link) deliver(kind MessageKind, payload []byte) bool {
	data := append([]byte(nil), payload...)

	if l.messageCallback != nil {
		l.delivered++
		l.messageCallback(data, kind)
		return true
	}

	cost := recordCost(len(data))
	if l.recvBytes+cost > l.opts.RecvQueueBytes {
		return false
	}
	l.recvQ = append(l.recvQ, receiveRecord{kind: kind, payload: data})
	l.recvBytes += cost
	l.delivered++
	return true
}

// Receive dequeues the next inbound message in arrival order. It returns
// ok == false when nothing is queued. The returned payload is owned by
// the caller. Receive does not advance the protocol; keep calling Poll
// each tick.
func (l *Link) Receive() (payload []byte, kind MessageKind, ok bool) {
	if len(l.recvQ) == 0 {
		return nil, 0, false
	}
	rec := l.recvQ[0]
	l.recvQ[0] = receiveRecord{}
	l.recvQ = l.recvQ[1:]
	l.recvBytes -= recordCost(len(rec.payload))
	if len(l.recvQ) == 0 {
		l.recvQ = nil
	}
	return rec.payload, rec.kind, true
}

// clearReceiveQueue discards all queued inbound messages.
func (l *Link) clearReceiveQueue() {
	l.recvQ = nil
	l.recvBytes = 0
}

// onUnreliable handles an inbound best-effort payload. A full queue drops
// the message without affecting the session.
func (l *Link) onUnreliable(payload []byte) {
	if l.state != StateConnected {
		return
	}
	if !l.deliver(MessageUnreliable, payload) {
		l.dropped++
		logrus.WithFields(logrus.Fields{
			"function":    "onUnreliable",
			"payload_len": len(payload),
		}).Debug("receive queue full, unreliable payload dropped")
	}
}
