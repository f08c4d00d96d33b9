package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Pad/internal/protocol"
)

type fakeTransport struct {
	in  chan []byte
	out chan []byte

	once   sync.Once
	closed chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) read() ([]byte, error) {
	select {
	case b := <-f.in:
		return b, nil
	case <-f.closed:
		return nil, errTransportClosed
	}
}

func (f *fakeTransport) write(b []byte) error {
	select {
	case f.out <- b:
		return nil
	case <-f.closed:
		return errTransportClosed
	}
}

func (f *fakeTransport) close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func push(t *testing.T, tr *fakeTransport, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	tr.in <- b
}

func expectWrite(t *testing.T, tr *fakeTransport, want protocol.Kind) []byte {
	t.Helper()
	select {
	case b := <-tr.out:
		kind, err := protocol.KindOf(b)
		require.NoError(t, err)
		require.Equal(t, want, kind, "unexpected outbound frame: %s", b)
		return b
	case <-time.After(2 * time.Second):
		t.Fatalf("no outbound %s frame", want)
		return nil
	}
}

func waitEvent(t *testing.T, s *Session, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-s.Events():
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("no event of kind %d", kind)
		}
	}
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-s.Events():
			if e.Kind == EventState && e.State == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %s never reached", want)
		}
	}
}

func newTestSession(t *testing.T, trs ...*fakeTransport) *Session {
	t.Helper()
	s, err := New(Config{
		ServerURL:     "http://test.invalid",
		RoomID:        "r1",
		DisplayName:   "A",
		DialTimeout:   time.Second,
		RetryInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	q := make(chan *fakeTransport, len(trs))
	for _, tr := range trs {
		q <- tr
	}
	s.dial = func(ctx context.Context) (transport, error) {
		select {
		case tr := <-q:
			return tr, nil
		default:
			return nil, ErrTransportUnavailable
		}
	}
	return s
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(Config{ServerURL: "http://x", RoomID: "r1"})
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestSessionJoinsOnConnect(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(t, tr)
	s.Start(context.Background())
	defer s.Close()

	data := expectWrite(t, tr, protocol.KindJoin)
	var join protocol.Join
	require.NoError(t, json.Unmarshal(data, &join))
	assert.Equal(t, "r1", join.RoomID)
	assert.Equal(t, "A", join.DisplayName)

	push(t, tr, protocol.Welcome{Type: protocol.KindWelcome, ConnectionID: "me"})
	require.Eventually(t, func() bool { return s.ConnectionID() == "me" }, 2*time.Second, 10*time.Millisecond)

	push(t, tr, protocol.Joined{
		Type:         protocol.KindJoined,
		Members:      []protocol.Member{{ConnectionID: "me", DisplayName: "A"}},
		DisplayName:  "A",
		ConnectionID: "me",
	})
	ev := waitEvent(t, s, EventRoster)
	require.Len(t, ev.Members, 1)
	assert.Equal(t, "me", ev.Members[0].ConnectionID)
}

func TestSessionSendsBufferToNewPeer(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(t, tr)
	s.Start(context.Background())
	defer s.Close()

	expectWrite(t, tr, protocol.KindJoin)
	push(t, tr, protocol.Welcome{Type: protocol.KindWelcome, ConnectionID: "me"})
	require.Eventually(t, func() bool { return s.ConnectionID() == "me" }, 2*time.Second, 10*time.Millisecond)

	s.SetBuffer("print(1)")
	expectWrite(t, tr, protocol.KindEditRelay)

	push(t, tr, protocol.Joined{
		Type: protocol.KindJoined,
		Members: []protocol.Member{
			{ConnectionID: "me", DisplayName: "A"},
			{ConnectionID: "peer", DisplayName: "B"},
		},
		DisplayName:  "B",
		ConnectionID: "peer",
	})

	ev := waitEvent(t, s, EventPeerJoined)
	assert.Equal(t, "peer", ev.ConnectionID)

	data := expectWrite(t, tr, protocol.KindStateTransfer)
	var st protocol.StateTransfer
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "peer", st.TargetConnectionID)
	assert.Equal(t, "print(1)", st.Payload)
}

func TestSessionIgnoresItsOwnJoined(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(t, tr)
	s.Start(context.Background())
	defer s.Close()

	expectWrite(t, tr, protocol.KindJoin)
	push(t, tr, protocol.Welcome{Type: protocol.KindWelcome, ConnectionID: "me"})
	require.Eventually(t, func() bool { return s.ConnectionID() == "me" }, 2*time.Second, 10*time.Millisecond)

	push(t, tr, protocol.Joined{
		Type:         protocol.KindJoined,
		Members:      []protocol.Member{{ConnectionID: "me", DisplayName: "A"}},
		DisplayName:  "A",
		ConnectionID: "me",
	})
	waitEvent(t, s, EventRoster)

	// joining an empty room must not trigger any state transfer
	assert.Empty(t, tr.out)
}

func TestApplyIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(t, tr)
	s.Start(context.Background())
	defer s.Close()

	expectWrite(t, tr, protocol.KindJoin)

	push(t, tr, protocol.EditRelay{Type: protocol.KindEditRelay, RoomID: "r1", Payload: "print(1)"})
	ev := waitEvent(t, s, EventBuffer)
	assert.Equal(t, "print(1)", ev.Payload)
	assert.Equal(t, "print(1)", s.Buffer())

	// the same payload again: no event, no outbound echo
	push(t, tr, protocol.EditRelay{Type: protocol.KindEditRelay, RoomID: "r1", Payload: "print(1)"})
	push(t, tr, protocol.StateTransfer{Type: protocol.KindStateTransfer, Payload: "print(1)"})
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, tr.out)
	for {
		select {
		case e := <-s.Events():
			require.NotEqual(t, EventBuffer, e.Kind)
			continue
		default:
		}
		break
	}
	assert.Equal(t, "print(1)", s.Buffer())
}

func TestSetBufferSkipsUnchangedValue(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(t, tr)
	s.Start(context.Background())
	defer s.Close()

	expectWrite(t, tr, protocol.KindJoin)

	s.SetBuffer("x")
	expectWrite(t, tr, protocol.KindEditRelay)

	s.SetBuffer("x")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, tr.out)
}

func TestPeerLeftShrinksRoster(t *testing.T) {
	tr := newFakeTransport()
	s := newTestSession(t, tr)
	s.Start(context.Background())
	defer s.Close()

	expectWrite(t, tr, protocol.KindJoin)
	push(t, tr, protocol.Welcome{Type: protocol.KindWelcome, ConnectionID: "me"})
	push(t, tr, protocol.Joined{
		Type: protocol.KindJoined,
		Members: []protocol.Member{
			{ConnectionID: "me", DisplayName: "A"},
			{ConnectionID: "peer", DisplayName: "B"},
		},
		DisplayName:  "A",
		ConnectionID: "me",
	})
	waitEvent(t, s, EventRoster)

	push(t, tr, protocol.Disconnected{Type: protocol.KindDisconnected, ConnectionID: "peer", DisplayName: "B"})
	ev := waitEvent(t, s, EventPeerLeft)
	assert.Equal(t, "peer", ev.ConnectionID)

	require.Eventually(t, func() bool { return len(s.Members()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "me", s.Members()[0].ConnectionID)
}

func TestSessionReconnectsAndRejoins(t *testing.T) {
	tr1 := newFakeTransport()
	tr2 := newFakeTransport()
	s := newTestSession(t, tr1, tr2)
	s.Start(context.Background())
	defer s.Close()

	expectWrite(t, tr1, protocol.KindJoin)
	waitState(t, s, StateConnected)

	// transport dies; the session must come back and join again
	tr1.close()
	waitState(t, s, StateReconnecting)
	expectWrite(t, tr2, protocol.KindJoin)
	waitState(t, s, StateConnected)
}

func TestCloseStopsRetrying(t *testing.T) {
	s := newTestSession(t) // dial always fails
	s.Start(context.Background())

	waitState(t, s, StateConnecting)
	s.Close()
	assert.Equal(t, StateClosed, s.State())
}
