// Package linkcore implements a reliable peer-to-peer messaging session
// over a word-oriented serial link.
//
// The protocol targets a two-endpoint cable: each side pushes and pops
// 32-bit words through a small FIFO device, and linkcore layers framing,
// a HELLO handshake, stop-and-wait reliable delivery, keepalives and
// liveness tracking on top. Everything is single-threaded and
// non-blocking: the application calls Poll once per tick and the protocol
// never runs anywhere else.
//
// # Getting Started
//
// Create a Link around a transport and drive it from your loop:
//
//	a, b := transport.Pair(0)
//
//	server, err := linkcore.New(a, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	server.Listen(true)
//
//	client, err := linkcore.New(b, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Connect(0); err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    client.Poll()
//	    server.Poll()
//	    if client.State() == linkcore.StateConnected {
//	        break
//	    }
//	    time.Sleep(time.Millisecond)
//	}
//
//	client.Send([]byte("ready"))
//
// Inbound messages are consumed with Receive, or through a callback:
//
//	server.OnMessage(func(payload []byte, kind linkcore.MessageKind) {
//	    fmt.Printf("peer says: %s\n", payload)
//	})
//
// # Core Types
//
//   - [Link]: one endpoint of a session, owning all protocol state
//   - [Options]: timing and sizing configuration, loadable from TOML
//   - [TimeProvider]: interface for injectable time (testing support)
//
// # Delivery Semantics
//
// Send carries a payload exactly once, in order: the message is
// retransmitted until acknowledged, and at most one reliable message is
// in flight at a time. Send returns ErrBusy until the previous message is
// acknowledged; poll CanSend to know when the link is ready again.
// SendUnreliable is fire-and-forget. Sessions die rather than degrade:
// after too many retries, peer silence, or an explicit peer reset, the
// link reports StateDown and DeadReason explains why.
//
// Transports live in the transport subpackage: an in-memory loopback pair
// for tests and same-process sessions, and a WebSocket bridge for linking
// two processes. Any implementation of transport.Transport works.
package linkcore
