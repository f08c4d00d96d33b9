// Package client owns the participant side of a room: it establishes the
// connection, retries forever when it drops, re-joins after every reconnect
// and applies incoming document state idempotently.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/protocol"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventState EventKind = iota
	EventRoster
	EventBuffer
	EventPeerJoined
	EventPeerLeft
)

// Event is what the embedding UI consumes: connectivity changes, roster
// changes and buffer updates, all on one channel.
type Event struct {
	Kind         EventKind
	State        State
	Members      []protocol.Member
	DisplayName  string
	ConnectionID string
	Payload      string
}

type Config struct {
	ServerURL   string
	RoomID      string
	DisplayName string

	// DialTimeout bounds one connection attempt; RetryInterval spaces them.
	// There is no attempt cap: callers needing bounded retry wrap the session.
	DialTimeout   time.Duration
	RetryInterval time.Duration
}

var ErrBadConfig = errors.New("server url, room and display name are required")

const (
	defaultDialTimeout   = 10 * time.Second
	defaultRetryInterval = 2 * time.Second
)

type dialFunc func(ctx context.Context) (transport, error)

type Session struct {
	cfg    Config
	buf    *Buffer
	events chan Event

	dial dialFunc

	mu     sync.Mutex
	state  State
	sid    string
	tr     transport
	roster []protocol.Member

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config) (*Session, error) {
	if cfg.ServerURL == "" || cfg.RoomID == "" || cfg.DisplayName == "" {
		return nil, ErrBadConfig
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	s := &Session{
		cfg:    cfg,
		buf:    NewBuffer(),
		events: make(chan Event, 64),
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}
	s.dial = s.dialAny
	return s, nil
}

func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Buffer() string { return s.buf.Value() }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionID is the identity of the current connection; it changes on every
// reconnect and is empty until the server's welcome arrives.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sid
}

func (s *Session) Members() []protocol.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Member, len(s.roster))
	copy(out, s.roster)
	return out
}

func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(ctx)
}

// Close tears the session down and stops the retry loop. It is the only way
// to stop retrying short of process exit.
func (s *Session) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.mu.Lock()
	if s.tr != nil {
		_ = s.tr.close()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateClosed)

	first := true
	for {
		if ctx.Err() != nil {
			return
		}
		if first {
			s.setState(StateConnecting)
			first = false
		} else {
			s.setState(StateReconnecting)
		}

		tr, err := s.connect(ctx)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.tr = tr
		s.sid = ""
		s.mu.Unlock()
		s.setState(StateConnected)

		// Entering Connected re-establishes the subscription: the join is
		// re-sent every time, and the server treats duplicates as no-ops.
		if err := s.join(tr); err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("join send failed")
			_ = tr.close()
			continue
		}

		s.readLoop(ctx, tr)

		_ = tr.close()
		s.mu.Lock()
		s.tr = nil
		s.mu.Unlock()
	}
}

// connect retries until a transport comes up or the context dies.
func (s *Session) connect(ctx context.Context) (transport, error) {
	var tr transport
	op := func() error {
		t, err := s.dial(ctx)
		if err != nil {
			log.Debug().Err(err).Str("module", "client").Msg("dial failed, will retry")
			return err
		}
		tr = t
		return nil
	}
	bo := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.RetryInterval), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return tr, nil
}

// dialAny prefers the streaming transport and falls back to polling.
func (s *Session) dialAny(ctx context.Context) (transport, error) {
	tr, wsErr := dialWS(ctx, s.cfg.ServerURL, s.cfg.DialTimeout)
	if wsErr == nil {
		return tr, nil
	}
	log.Debug().Err(wsErr).Str("module", "client").Msg("websocket dial failed, trying polling")
	tr, pollErr := dialPoll(ctx, s.cfg.ServerURL, s.cfg.DialTimeout)
	if pollErr == nil {
		return tr, nil
	}
	return nil, fmt.Errorf("%w: ws: %v; poll: %v", ErrTransportUnavailable, wsErr, pollErr)
}

func (s *Session) join(tr transport) error {
	b, err := json.Marshal(protocol.Join{
		Type:        protocol.KindJoin,
		RoomID:      s.cfg.RoomID,
		DisplayName: s.cfg.DisplayName,
	})
	if err != nil {
		return err
	}
	return tr.write(b)
}

func (s *Session) readLoop(ctx context.Context, tr transport) {
	for {
		data, err := tr.read()
		if err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Str("module", "client").Msg("connection lost")
			}
			return
		}
		s.handle(data)
	}
}

func (s *Session) handle(data []byte) {
	kind, err := protocol.KindOf(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad frame")
		return
	}

	switch kind {
	case protocol.KindWelcome:
		var ev protocol.Welcome
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.mu.Lock()
		s.sid = ev.ConnectionID
		s.mu.Unlock()

	case protocol.KindJoined:
		var ev protocol.Joined
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.mu.Lock()
		s.roster = ev.Members
		mySID := s.sid
		s.mu.Unlock()
		s.emit(Event{Kind: EventRoster, Members: ev.Members})
		if ev.ConnectionID != mySID {
			s.emit(Event{Kind: EventPeerJoined, DisplayName: ev.DisplayName, ConnectionID: ev.ConnectionID})
			// Hand the newcomer our buffer. Several peers may race to do
			// this; the receiver applies whatever arrives idempotently.
			s.sendStateTo(ev.ConnectionID)
		}

	case protocol.KindDisconnected:
		var ev protocol.Disconnected
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.mu.Lock()
		kept := s.roster[:0]
		for _, m := range s.roster {
			if m.ConnectionID != ev.ConnectionID {
				kept = append(kept, m)
			}
		}
		s.roster = kept
		members := make([]protocol.Member, len(s.roster))
		copy(members, s.roster)
		s.mu.Unlock()
		s.emit(Event{Kind: EventPeerLeft, DisplayName: ev.DisplayName, ConnectionID: ev.ConnectionID})
		s.emit(Event{Kind: EventRoster, Members: members})

	case protocol.KindEditRelay:
		var ev protocol.EditRelay
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.applyRemote(ev.Payload)

	case protocol.KindStateTransfer:
		var ev protocol.StateTransfer
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.applyRemote(ev.Payload)

	case protocol.KindPong:
		// keepalive, nothing to do

	case protocol.KindError:
		var ev protocol.Error
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		log.Warn().Str("module", "client").Str("error", ev.Error).Msg("server rejected request")
	}
}

// applyRemote is idempotent: an equal payload changes nothing and emits
// nothing, so redundant transfers and echoes die here.
func (s *Session) applyRemote(payload string) {
	if !s.buf.Set(payload) {
		return
	}
	s.emit(Event{Kind: EventBuffer, Payload: payload})
}

// SetBuffer records a local edit and relays it to the other room members.
// Setting the current value again sends nothing.
func (s *Session) SetBuffer(payload string) {
	if !s.buf.Set(payload) {
		return
	}
	b, err := json.Marshal(protocol.EditRelay{
		Type:    protocol.KindEditRelay,
		RoomID:  s.cfg.RoomID,
		Payload: payload,
	})
	if err != nil {
		return
	}
	s.send(b)
}

func (s *Session) sendStateTo(target string) {
	b, err := json.Marshal(protocol.StateTransfer{
		Type:               protocol.KindStateTransfer,
		TargetConnectionID: target,
		Payload:            s.buf.Value(),
	})
	if err != nil {
		return
	}
	s.send(b)
}

// send is best-effort: offline means the frame is dropped, and the peers
// resynchronize us through a state transfer after the next join.
func (s *Session) send(b []byte) {
	s.mu.Lock()
	tr := s.tr
	s.mu.Unlock()
	if tr == nil {
		return
	}
	if err := tr.write(b); err != nil {
		log.Debug().Err(err).Str("module", "client").Msg("send dropped")
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: st})
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		log.Debug().Str("module", "client").Msg("event dropped, slow consumer")
	}
}
