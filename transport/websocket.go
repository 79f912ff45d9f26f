package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
)

const (
	// wsQueueWords bounds each direction of the bridge's word buffering.
	wsQueueWords = 16384
	// wsBatchWords caps how many words one WebSocket message carries.
	wsBatchWords = 512
)

// WebSocketBridge tunnels the link word stream over a WebSocket
// connection, so two processes on different machines can run a session.
// Words are batched into binary messages, four little-endian bytes per
// word. Unlike the loopback pair there is no backpressure across the
// wire: inbound words beyond the queue bound are dropped and recorded in
// the sticky rx_overflow status bit, after which the protocol's checksum
// and retry layers recover.
type WebSocketBridge struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	rxq     []uint32
	txq     []uint32
	enabled bool
	role    Ctrl
	sticky  Status
	down    bool

	kick      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketBridge wraps an established WebSocket connection and starts
// its pump goroutines. The bridge owns the connection from this point on.
func NewWebSocketBridge(conn *websocket.Conn) *WebSocketBridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &WebSocketBridge{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		kick:   make(chan struct{}, 1),
	}
	go b.readLoop()
	go b.writeLoop()
	return b
}

// DialWebSocket connects to a listening bridge at url and returns the
// wrapped transport.
func DialWebSocket(ctx context.Context, url string) (*WebSocketBridge, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing link bridge: %w", err)
	}
	return NewWebSocketBridge(conn), nil
}

// AcceptWebSocket upgrades an incoming HTTP request to a bridge. It is
// intended to be called from an http.Handler.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocketBridge, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil, fmt.Errorf("accepting link bridge: %w", err)
	}
	return NewWebSocketBridge(conn), nil
}

// Close tears the bridge down and closes the underlying connection.
func (b *WebSocketBridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		err = b.conn.Close(websocket.StatusNormalClosure, "link closed")
		b.mu.Lock()
		b.down = true
		b.mu.Unlock()
	})
	return err
}

// readLoop decodes inbound binary messages into the receive queue.
func (b *WebSocketBridge) readLoop() {
	for {
		typ, data, err := b.conn.Read(b.ctx)
		if err != nil {
			b.markDown(err)
			return
		}
		if typ != websocket.MessageBinary || len(data)%4 != 0 {
			b.mu.Lock()
			b.sticky |= StatusDesync
			b.mu.Unlock()
			continue
		}
		b.mu.Lock()
		for i := 0; i+4 <= len(data); i += 4 {
			if len(b.rxq) >= wsQueueWords {
				b.sticky |= StatusRxOverflow
				break
			}
			b.rxq = append(b.rxq, binary.LittleEndian.Uint32(data[i:]))
		}
		b.mu.Unlock()
	}
}

// writeLoop drains the transmit queue into batched binary messages.
func (b *WebSocketBridge) writeLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.kick:
		}

		for {
			b.mu.Lock()
			n := len(b.txq)
			if n == 0 {
				b.mu.Unlock()
				break
			}
			if n > wsBatchWords {
				n = wsBatchWords
			}
			batch := make([]byte, n*4)
			for i := 0; i < n; i++ {
				binary.LittleEndian.PutUint32(batch[i*4:], b.txq[i])
			}
			b.txq = b.txq[n:]
			b.mu.Unlock()

			if err := b.conn.Write(b.ctx, websocket.MessageBinary, batch); err != nil {
				b.markDown(err)
				return
			}
		}
	}
}

// markDown records connection loss and stops both pump loops.
func (b *WebSocketBridge) markDown(err error) {
	b.mu.Lock()
	alreadyDown := b.down
	b.down = true
	master := b.role&CtrlMaster != 0
	b.mu.Unlock()
	localClose := b.ctx.Err() != nil
	b.cancel()

	if alreadyDown {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || localClose {
		logrus.WithFields(logrus.Fields{
			"function": "markDown",
			"master":   master,
		}).Debug("link bridge closed cleanly")
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "markDown",
		"master":   master,
		"error":    err,
	}).Warn("link bridge connection lost")
}

// ReadStatus samples the bridge condition register.
func (b *WebSocketBridge) ReadStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	var s Status
	if b.enabled && !b.down {
		s |= StatusLinkUp | StatusPeerPresent
	}
	if len(b.txq) >= wsQueueWords {
		s |= StatusTxFull
	}
	if len(b.rxq) == 0 {
		s |= StatusRxEmpty
	}
	return s | b.sticky
}

// Configure performs a full control register write. Reset clears both
// queues and the sticky error bits but keeps the connection open, so a
// session can be re-established over the same bridge.
func (b *WebSocketBridge) Configure(ctrl Ctrl) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ctrl&CtrlReset != 0 {
		b.txq = nil
		b.rxq = nil
		b.sticky = 0
		b.role = 0
	}
	b.enabled = ctrl&CtrlEnable != 0
	b.role = ctrl & (CtrlMaster | CtrlPoll)
	if ctrl&CtrlClearErr != 0 {
		b.sticky = 0
	}
	if ctrl&CtrlFlushRx != 0 {
		b.rxq = b.rxq[:0]
	}
	if ctrl&CtrlFlushTx != 0 {
		b.txq = b.txq[:0]
	}
}

// PushWord queues one word for transmission and wakes the write loop.
func (b *WebSocketBridge) PushWord(w uint32) {
	b.mu.Lock()
	if !b.enabled || b.down {
		b.mu.Unlock()
		return
	}
	if len(b.txq) >= wsQueueWords {
		b.sticky |= StatusTxOverflow
		b.mu.Unlock()
		return
	}
	b.txq = append(b.txq, w)
	b.mu.Unlock()

	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// PopWord removes and returns the next received word, or zero when none
// is queued.
func (b *WebSocketBridge) PopWord() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.rxq) == 0 {
		return 0
	}
	w := b.rxq[0]
	b.rxq = b.rxq[1:]
	return w
}

// TxFreeWords reports remaining transmit queue capacity.
func (b *WebSocketBridge) TxFreeWords() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return wsQueueWords - len(b.txq)
}

// RxQueuedWords reports how many received words are waiting.
func (b *WebSocketBridge) RxQueuedWords() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rxq)
}
