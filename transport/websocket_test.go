package transport

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// bridgePair creates a connected client/server bridge pair over an
// in-process HTTP test server, with both sides enabled.
func bridgePair(t *testing.T) (*WebSocketBridge, *WebSocketBridge) {
	t.Helper()

	serverCh := make(chan *WebSocketBridge, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bridge, err := AcceptWebSocket(w, r)
		if err != nil {
			t.Errorf("server accept failed: %v", err)
			return
		}
		serverCh <- bridge
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := DialWebSocket(context.Background(), wsURL)
	require.NoError(t, err)

	var server *WebSocketBridge
	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of bridge")
	}

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	client.Configure(CtrlEnable)
	server.Configure(CtrlEnable)
	return client, server
}

// rawBridgePair connects a bare WebSocket client to a served bridge so
// tests can poke at the wire format directly.
func rawBridgePair(t *testing.T) (*websocket.Conn, *WebSocketBridge) {
	t.Helper()

	serverCh := make(chan *WebSocketBridge, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bridge, err := AcceptWebSocket(w, r)
		if err != nil {
			t.Errorf("server accept failed: %v", err)
			return
		}
		serverCh <- bridge
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	raw, _, err := websocket.Dial(context.Background(), wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		raw.Close(websocket.StatusNormalClosure, "test over")
	})

	var server *WebSocketBridge
	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server side of bridge")
	}
	t.Cleanup(func() { server.Close() })

	server.Configure(CtrlEnable)
	return raw, server
}

func TestBridgeWordRoundTrip(t *testing.T) {
	client, server := bridgePair(t)

	words := []uint32{0x51464D45, 0x06000000, 0x0000B1A4, 0xFFFFFFFF}
	for _, w := range words {
		client.PushWord(w)
	}

	require.Eventually(t, func() bool {
		return server.RxQueuedWords() == len(words)
	}, 2*time.Second, 10*time.Millisecond)

	for i, want := range words {
		assert.Equal(t, want, server.PopWord(), "word %d", i)
	}
	assert.True(t, server.ReadStatus().Has(StatusRxEmpty))
}

func TestBridgeBothDirections(t *testing.T) {
	client, server := bridgePair(t)

	client.PushWord(0x11111111)
	server.PushWord(0x22222222)

	require.Eventually(t, func() bool {
		return server.RxQueuedWords() == 1 && client.RxQueuedWords() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint32(0x11111111), server.PopWord())
	assert.Equal(t, uint32(0x22222222), client.PopWord())
}

// A foreign client must be able to speak to a bridge knowing only the
// wire contract: binary messages carrying four little-endian bytes per
// word.
func TestBridgeSpeaksLittleEndianBinaryFrames(t *testing.T) {
	raw, server := rawBridgePair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	words := []uint32{0x51464D45, 0x01000000, 0x0000AAAA}
	want := make([]byte, 0, len(words)*4)
	for _, w := range words {
		want = binary.LittleEndian.AppendUint32(want, w)
	}

	// Bridge to raw peer. Words may arrive split across messages
	// depending on how the write loop batches them.
	for _, w := range words {
		server.PushWord(w)
	}
	got := make([]byte, 0, len(want))
	for len(got) < len(want) {
		typ, data, err := raw.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, websocket.MessageBinary, typ)
		got = append(got, data...)
	}
	assert.Equal(t, want, got)

	// Raw peer to bridge.
	require.NoError(t, raw.Write(ctx, websocket.MessageBinary, want))
	require.Eventually(t, func() bool {
		return server.RxQueuedWords() == len(words)
	}, 2*time.Second, 10*time.Millisecond)
	for i, w := range words {
		assert.Equal(t, w, server.PopWord(), "word %d", i)
	}
}

// Frames that cannot carry whole words raise the sticky desync bit but
// leave the connection usable.
func TestBridgeFlagsMalformedFrames(t *testing.T) {
	raw, server := rawBridgePair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, raw.Write(ctx, websocket.MessageText, []byte("not words")))
	require.Eventually(t, func() bool {
		return server.ReadStatus().Has(StatusDesync)
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, server.ReadStatus().Has(StatusLinkUp))

	server.Configure(CtrlEnable | CtrlClearErr)
	require.False(t, server.ReadStatus().Has(StatusDesync))

	// A torn word is flagged the same way.
	require.NoError(t, raw.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))
	require.Eventually(t, func() bool {
		return server.ReadStatus().Has(StatusDesync)
	}, 2*time.Second, 10*time.Millisecond)

	// Well-formed traffic still flows.
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], 0x7)
	require.NoError(t, raw.Write(ctx, websocket.MessageBinary, word[:]))
	require.Eventually(t, func() bool {
		return server.RxQueuedWords() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint32(0x7), server.PopWord())
}

func TestBridgeBatchesLargeBursts(t *testing.T) {
	client, server := bridgePair(t)

	const n = 3 * wsBatchWords
	for w := uint32(0); w < n; w++ {
		client.PushWord(w)
	}

	require.Eventually(t, func() bool {
		return server.RxQueuedWords() == n
	}, 5*time.Second, 10*time.Millisecond)

	for want := uint32(0); want < n; want++ {
		require.Equal(t, want, server.PopWord())
	}
}

func TestBridgeDisabledDropsWords(t *testing.T) {
	client, server := bridgePair(t)

	client.Configure(0) // disable
	client.PushWord(0xABAD1DEA)

	assert.Never(t, func() bool {
		return server.RxQueuedWords() > 0
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestBridgeCloseDropsLink(t *testing.T) {
	client, server := bridgePair(t)

	require.True(t, client.ReadStatus().Has(StatusLinkUp))
	require.NoError(t, client.Close())

	assert.False(t, client.ReadStatus().Has(StatusLinkUp))
	require.Eventually(t, func() bool {
		return !server.ReadStatus().Has(StatusLinkUp)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBridgeResetKeepsConnection(t *testing.T) {
	client, server := bridgePair(t)

	client.PushWord(0x1)
	require.Eventually(t, func() bool {
		return server.RxQueuedWords() == 1
	}, 2*time.Second, 10*time.Millisecond)

	server.Configure(CtrlReset)
	assert.Equal(t, 0, server.RxQueuedWords())

	// The connection survives a reset; traffic flows again once enabled.
	server.Configure(CtrlEnable)
	client.PushWord(0x2)
	require.Eventually(t, func() bool {
		return server.RxQueuedWords() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint32(0x2), server.PopWord())
}

func TestBridgeRoleBitsRetained(t *testing.T) {
	client, _ := bridgePair(t)

	client.Configure(CtrlEnable | CtrlMaster | CtrlPoll | CtrlClearErr)
	client.mu.Lock()
	role := client.role
	client.mu.Unlock()
	assert.Equal(t, CtrlMaster|CtrlPoll, role)

	client.Configure(CtrlEnable)
	client.mu.Lock()
	role = client.role
	client.mu.Unlock()
	assert.Equal(t, Ctrl(0), role)
}
