package transport

import "sync"

// DefaultFIFOWords is the per-direction queue capacity of a loopback pair.
// It comfortably holds the largest possible frame so a whole message can be
// staged before the peer drains it.
const DefaultFIFOWords = 4096

// pairCore serializes all queue motion for both endpoints of a pair.
type pairCore struct {
	mu sync.Mutex
}

// Endpoint is one side of an in-memory loopback link. Words pushed on one
// endpoint become poppable on the other, subject to queue capacity and any
// installed fault hooks. A pair behaves like two devices joined by a
// perfect cable, which makes it the reference transport for tests and for
// same-process sessions.
type Endpoint struct {
	core     *pairCore
	peer     *Endpoint
	capacity int

	txq []uint32
	rxq []uint32

	enabled bool
	role    Ctrl
	sticky  Status
	down    bool
	stall   bool
	txHook  func(word uint32) (uint32, bool)
}

// Pair returns two connected loopback endpoints. A capacity of zero or
// less selects DefaultFIFOWords per queue.
func Pair(capacity int) (*Endpoint, *Endpoint) {
	if capacity <= 0 {
		capacity = DefaultFIFOWords
	}
	core := &pairCore{}
	a := &Endpoint{core: core, capacity: capacity}
	b := &Endpoint{core: core, capacity: capacity}
	a.peer = b
	b.peer = a
	return a, b
}

// SetTxHook installs fn on the transmit path. Each word crossing to the
// peer passes through fn, which may rewrite it or drop it by returning
// false. A nil fn removes the hook. Tests use this to inject corruption
// and loss.
func (e *Endpoint) SetTxHook(fn func(word uint32) (uint32, bool)) {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()
	e.txHook = fn
}

// SetTxStall forces the endpoint to report a full transmit queue and halts
// delivery to the peer until released.
func (e *Endpoint) SetTxStall(stall bool) {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()
	e.stall = stall
}

// SetLinkDown simulates unplugging this side of the cable. Both endpoints
// observe the link as down until it is restored.
func (e *Endpoint) SetLinkDown(down bool) {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()
	e.down = down
}

// deliver moves words from e's transmit queue into the peer's receive
// queue while the cable is healthy and the peer has room. Caller holds the
// pair lock.
func (e *Endpoint) deliver() {
	if e.peer == nil {
		return
	}
	for len(e.txq) > 0 && e.enabled && e.peer.enabled && !e.stall && !e.down && !e.peer.down {
		if len(e.peer.rxq) >= e.peer.capacity {
			return
		}
		w := e.txq[0]
		e.txq = e.txq[1:]
		if e.txHook != nil {
			rewritten, keep := e.txHook(w)
			if !keep {
				continue
			}
			w = rewritten
		}
		e.peer.rxq = append(e.peer.rxq, w)
	}
}

// sync advances delivery in both directions. Caller holds the pair lock.
func (e *Endpoint) sync() {
	e.deliver()
	if e.peer != nil {
		e.peer.deliver()
	}
}

// ReadStatus samples the emulated condition register.
func (e *Endpoint) ReadStatus() Status {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()
	e.sync()

	var s Status
	up := e.enabled && !e.down && e.peer != nil && !e.peer.down
	if up {
		s |= StatusLinkUp
	}
	if e.peer != nil && e.peer.enabled && !e.peer.down {
		s |= StatusPeerPresent
	}
	if e.txFull() {
		s |= StatusTxFull
	}
	if len(e.rxq) == 0 {
		s |= StatusRxEmpty
	}
	return s | e.sticky
}

// txFull reports whether another word would be refused. Caller holds the
// pair lock.
func (e *Endpoint) txFull() bool {
	return e.stall || len(e.txq) >= e.capacity
}

// Configure performs a full control register write.
func (e *Endpoint) Configure(ctrl Ctrl) {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()

	if ctrl&CtrlReset != 0 {
		e.txq = nil
		e.rxq = nil
		e.sticky = 0
		e.role = 0
	}
	e.enabled = ctrl&CtrlEnable != 0
	e.role = ctrl & (CtrlMaster | CtrlPoll)
	if ctrl&CtrlClearErr != 0 {
		e.sticky = 0
	}
	if ctrl&CtrlFlushRx != 0 {
		e.rxq = e.rxq[:0]
	}
	if ctrl&CtrlFlushTx != 0 {
		e.txq = e.txq[:0]
	}
}

// PushWord appends one word to the transmit queue. Words pushed while the
// endpoint is disabled or the queue is full are dropped; the latter raises
// the sticky tx_overflow bit.
func (e *Endpoint) PushWord(w uint32) {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()

	if !e.enabled || e.down {
		return
	}
	if len(e.txq) >= e.capacity {
		e.sticky |= StatusTxOverflow
		return
	}
	e.txq = append(e.txq, w)
	e.sync()
}

// PopWord removes and returns the next received word, or zero when none
// is queued.
func (e *Endpoint) PopWord() uint32 {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()
	e.sync()

	if len(e.rxq) == 0 {
		return 0
	}
	w := e.rxq[0]
	e.rxq = e.rxq[1:]
	e.sync()
	return w
}

// TxFreeWords reports remaining transmit queue capacity.
func (e *Endpoint) TxFreeWords() int {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()
	e.sync()

	if e.stall {
		return 0
	}
	return e.capacity - len(e.txq)
}

// RxQueuedWords reports how many received words are waiting.
func (e *Endpoint) RxQueuedWords() int {
	e.core.mu.Lock()
	defer e.core.mu.Unlock()
	e.sync()
	return len(e.rxq)
}
