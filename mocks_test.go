package linkcore

import (
	"testing"
	"time"

	"github.com/pocket-link/linkcore/transport"
	"github.com/pocket-link/linkcore/wire"
	"github.com/stretchr/testify/require"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	currentTime time.Time
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{
		currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockTimeProvider) Now() time.Time {
	return m.currentTime
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.currentTime.Sub(t)
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.currentTime = m.currentTime.Add(d)
}

// mustNewLink wraps New with the error check every test needs.
func mustNewLink(t *testing.T, tr transport.Transport) *Link {
	t.Helper()
	l, err := New(tr, nil)
	require.NoError(t, err)
	return l
}

// pump runs both links' poll loops for a number of rounds, enough for a
// frame and its response to cross an in-memory pair.
func pump(a, b *Link, rounds int) {
	for i := 0; i < rounds; i++ {
		a.Poll()
		b.Poll()
	}
}

// linkPair returns two links joined by a loopback pair, sharing a mock
// clock, with the handshake already completed.
func linkPair(t *testing.T) (initiator, responder *Link, clk *mockTimeProvider) {
	t.Helper()

	clk = newMockTimeProvider()
	a, b := transport.Pair(0)

	initiator = mustNewLink(t, a)
	initiator.SetTimeProvider(clk)
	responder = mustNewLink(t, b)
	responder.SetTimeProvider(clk)

	responder.Listen(true)
	require.NoError(t, initiator.Connect(0))
	pump(initiator, responder, 4)

	require.Equal(t, StateConnected, initiator.State())
	require.Equal(t, StateConnected, responder.State())
	return initiator, responder, clk
}

// scriptedPeer plays the far side of a link from a test, speaking the raw
// word protocol through a bare endpoint so every frame and sequence
// number is under the test's control.
type scriptedPeer struct {
	t      *testing.T
	ep     *transport.Endpoint
	parser *wire.Parser
}

func newScriptedPeer(t *testing.T, ep *transport.Endpoint) *scriptedPeer {
	t.Helper()
	ep.Configure(transport.CtrlEnable)
	return &scriptedPeer{t: t, ep: ep, parser: wire.NewParser()}
}

// send encodes one frame and pushes its words toward the link under test.
func (s *scriptedPeer) send(typ wire.FrameType, seq uint8, payload []byte) {
	s.t.Helper()
	words, err := wire.EncodeFrame(typ, seq, payload)
	require.NoError(s.t, err)
	for _, w := range words {
		s.ep.PushWord(w)
	}
}

// frames drains and decodes everything the link under test transmitted.
func (s *scriptedPeer) frames() []wire.Frame {
	var out []wire.Frame
	for s.ep.RxQueuedWords() > 0 {
		frame, err := s.parser.Consume(s.ep.PopWord())
		if err != nil || frame == nil {
			continue
		}
		out = append(out, wire.Frame{
			Type:    frame.Type,
			Seq:     frame.Seq,
			Payload: append([]byte(nil), frame.Payload...),
		})
	}
	return out
}

// countType tallies frames of one type.
func countType(frames []wire.Frame, typ wire.FrameType) int {
	n := 0
	for _, f := range frames {
		if f.Type == typ {
			n++
		}
	}
	return n
}

// scriptedInitiator returns a connected link in the initiator role with a
// scripted peer acting as the responder.
func scriptedInitiator(t *testing.T) (*Link, *scriptedPeer, *mockTimeProvider) {
	t.Helper()

	clk := newMockTimeProvider()
	a, b := transport.Pair(0)
	l := mustNewLink(t, a)
	l.SetTimeProvider(clk)
	peer := newScriptedPeer(t, b)

	require.NoError(t, l.Connect(0))
	hellos := peer.frames()
	require.NotEmpty(t, hellos)
	require.Equal(t, wire.FrameHello, hellos[0].Type)

	peer.send(wire.FrameHelloAck, 0, nil)
	l.Poll()
	require.Equal(t, StateConnected, l.State())
	return l, peer, clk
}

// scriptedResponder returns a connected link in the responder role with a
// scripted peer acting as the initiator.
func scriptedResponder(t *testing.T) (*Link, *scriptedPeer, *mockTimeProvider) {
	t.Helper()

	clk := newMockTimeProvider()
	a, b := transport.Pair(0)
	l := mustNewLink(t, a)
	l.SetTimeProvider(clk)
	peer := newScriptedPeer(t, b)

	l.Listen(true)
	peer.send(wire.FrameHello, 0, nil)
	l.Poll()
	require.Equal(t, StateConnected, l.State())
	require.Equal(t, RoleResponder, l.Role())

	acks := peer.frames()
	require.Equal(t, 1, countType(acks, wire.FrameHelloAck))
	return l, peer, clk
}
