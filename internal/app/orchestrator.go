package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/core"
	"github.com/dkeye/Pad/internal/domain"
	"github.com/dkeye/Pad/internal/protocol"
)

var (
	// ErrInvalidRoomState rejects a join before any table is touched.
	ErrInvalidRoomState = errors.New("join requires roomId and displayName")
	ErrUnknownSession   = errors.New("unknown session")
)

// Orchestrator wires the registry, the room table and presence fan-out.
// Its mutex serializes every membership mutation, so joins, leaves and the
// notifications they produce always observe a consistent snapshot. Relays and
// transfers only read and go through the structures' own read locks.
type Orchestrator struct {
	mu       sync.Mutex
	Registry *Registry
	Rooms    core.RoomManager
	Presence Presence
}

func NewOrchestrator(registry *Registry, rooms core.RoomManager) *Orchestrator {
	return &Orchestrator{Registry: registry, Rooms: rooms}
}

// Join puts the session into the room and announces it to every member,
// the entrant included. Joining the same room twice is a no-op re-add.
// A session sits in at most one room; joining another room leaves the
// previous one first.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID, displayName string) error {
	if roomID == "" || displayName == "" {
		return ErrInvalidRoomState
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return ErrUnknownSession
	}
	if err := o.Registry.SetDisplayName(sid, displayName); err != nil {
		return err
	}
	if prev, ok := o.Registry.RoomOf(sid); ok && prev != roomID {
		o.leaveLocked(sid)
	}

	room := o.Rooms.GetOrCreate(roomID)
	room.AddMember(sid, sess)
	o.Registry.SetRoom(sid, roomID)

	o.Presence.AnnounceJoin(room, core.MemberDTO{SID: sid, DisplayName: displayName})
	return nil
}

// Relay fans an edit out to the other members of the room, sender excluded.
// Fire-and-forget: drops to closed or slow peers are a normal race, not a
// fault, so nothing propagates back.
func (o *Orchestrator) Relay(sid core.SessionID, roomID domain.RoomID, payload string) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	frame, ok := encode(protocol.EditRelay{
		Type:    protocol.KindEditRelay,
		RoomID:  string(roomID),
		Payload: payload,
	})
	if !ok {
		return
	}
	room.BroadcastExcept(sid, frame)
}

// StateTransfer hands a buffer snapshot to exactly one session, routed by
// identity. An unknown or closed target means the peer disconnected since
// the sender looked at the roster; the transfer is dropped silently.
func (o *Orchestrator) StateTransfer(target core.SessionID, payload string) {
	sess, ok := o.Registry.GetSession(target)
	if !ok {
		log.Debug().Str("module", "app.orchestrator").Str("target", string(target)).Msg("state transfer target gone")
		return
	}
	frame, ok := encode(protocol.StateTransfer{
		Type:    protocol.KindStateTransfer,
		Payload: payload,
	})
	if !ok {
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "app.orchestrator").Str("target", string(target)).Msg("state transfer dropped")
	}
}

// OnDisconnect removes the session from its room and the membership table in
// one serialized step and notifies the remaining members once. Firing the
// stored cancel tears down whatever the adapter parked on it, the write pump
// for websockets and the queued-frame channel for poll sessions.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.leaveLocked(sid)
	o.Registry.Cancel(sid)
	o.Registry.Unbind(sid)
}

func (o *Orchestrator) leaveLocked(sid core.SessionID) {
	for _, ref := range o.Registry.Leave(sid) {
		room, ok := o.Rooms.Get(ref.Room)
		if !ok {
			continue
		}
		room.RemoveMember(sid)
		o.Presence.AnnounceLeave(room, sid, ref.DisplayName)
		o.Rooms.RemoveIfEmpty(ref.Room)
	}
}

// MembersOf reports the current roster of a room; an absent room is empty.
// Snapshots read display names, whose writes happen under the orchestrator
// lock, so reads take it too.
func (o *Orchestrator) MembersOf(roomID domain.RoomID) []core.MemberDTO {
	o.mu.Lock()
	defer o.mu.Unlock()
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil
	}
	return room.MembersSnapshot()
}
