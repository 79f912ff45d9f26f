// Package transport defines the word-level interface between the link
// protocol and whatever carries its frames.
//
// The contract mirrors a small FIFO-based serial device: a status register,
// a control register, and word-granular push/pop queues. Two
// implementations ship with the package: an in-memory loopback pair for
// tests and local sessions, and a WebSocket bridge that tunnels the word
// stream between two processes.
package transport

import "strings"

// Status is the read-only condition register of a link device.
type Status uint32

const (
	// StatusLinkUp indicates the physical or emulated link is up
	StatusLinkUp Status = 1 << iota
	// StatusPeerPresent indicates a device is attached on the far side
	StatusPeerPresent
	// StatusTxFull indicates the transmit queue cannot take another word
	StatusTxFull
	// StatusRxEmpty indicates the receive queue has no words to pop
	StatusRxEmpty
	// StatusRxCRCErr is a sticky low-level receive integrity flag
	StatusRxCRCErr
	// StatusRxOverflow is a sticky flag recording dropped inbound words
	StatusRxOverflow
	// StatusTxOverflow is a sticky flag recording dropped outbound words
	StatusTxOverflow
	// StatusDesync is a sticky flag recording word-boundary corruption
	StatusDesync
)

// Has reports whether every bit of flag is set in s.
func (s Status) Has(flag Status) bool {
	return s&flag == flag
}

// String lists the set status bits for diagnostics.
func (s Status) String() string {
	if s == 0 {
		return "none"
	}
	names := []struct {
		bit  Status
		name string
	}{
		{StatusLinkUp, "link_up"},
		{StatusPeerPresent, "peer_present"},
		{StatusTxFull, "tx_full"},
		{StatusRxEmpty, "rx_empty"},
		{StatusRxCRCErr, "rx_crc_err"},
		{StatusRxOverflow, "rx_overflow"},
		{StatusTxOverflow, "tx_overflow"},
		{StatusDesync, "desync"},
	}
	var set []string
	for _, n := range names {
		if s.Has(n.bit) {
			set = append(set, n.name)
		}
	}
	return strings.Join(set, "|")
}

// Ctrl is the write-only control register of a link device. Every
// Configure call is a full register write: the enable and role bits are
// level-sensitive and persist, while reset, clear and flush bits are
// pulses that act once and self-clear.
type Ctrl uint32

const (
	// CtrlEnable keeps the device operational; a write without it
	// disables the device
	CtrlEnable Ctrl = 1 << iota
	// CtrlReset returns the device to power-on state
	CtrlReset
	// CtrlClearErr clears the sticky error status bits
	CtrlClearErr
	// CtrlFlushRx discards all queued inbound words
	CtrlFlushRx
	// CtrlFlushTx discards all queued outbound words
	CtrlFlushTx
	// CtrlMaster selects the clock-master role on the physical link
	CtrlMaster
	// CtrlPoll enables active polling of the far side
	CtrlPoll
)

// Transport carries 32-bit words between two link endpoints in order.
//
// Implementations must be safe for use from a single goroutine at a time;
// they do not need to be safe for concurrent callers. PushWord and PopWord
// never block: pushing to a full queue drops the word and raises the
// tx_overflow status bit, popping an empty queue returns zero. Callers are
// expected to gate on ReadStatus and the queue depth accessors.
type Transport interface {
	// ReadStatus samples the device condition register.
	ReadStatus() Status

	// Configure performs a full control register write.
	Configure(ctrl Ctrl)

	// PushWord appends one word to the transmit queue.
	PushWord(w uint32)

	// PopWord removes and returns the next received word, or zero when
	// the receive queue is empty.
	PopWord() uint32

	// TxFreeWords reports how many words the transmit queue can accept.
	TxFreeWords() int

	// RxQueuedWords reports how many received words are waiting.
	RxQueuedWords() int
}
