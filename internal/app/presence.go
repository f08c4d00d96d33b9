package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Pad/internal/core"
	"github.com/dkeye/Pad/internal/protocol"
)

// Presence turns membership changes into fan-out notifications. Each event is
// built from one member snapshot taken after the mutation, so no recipient
// ever sees a list from before the change.
type Presence struct{}

// AnnounceJoin tells every member of the room, the entrant included, who is
// in the room now and who just arrived.
func (Presence) AnnounceJoin(room core.RoomService, entrant core.MemberDTO) {
	snapshot := room.MembersSnapshot()
	frame, ok := encode(protocol.Joined{
		Type:         protocol.KindJoined,
		Members:      wireMembers(snapshot),
		DisplayName:  entrant.DisplayName,
		ConnectionID: string(entrant.SID),
	})
	if !ok {
		return
	}
	res := room.BroadcastAll(frame)
	log.Info().Str("module", "app.presence").Str("room", string(room.ID())).Str("sid", string(entrant.SID)).Int("notified", res.SentTo).Msg("announced join")
}

// AnnounceLeave tells the remaining members that a session is gone.
// The leaver has already been removed from the room at this point.
func (Presence) AnnounceLeave(room core.RoomService, sid core.SessionID, displayName string) {
	frame, ok := encode(protocol.Disconnected{
		Type:         protocol.KindDisconnected,
		ConnectionID: string(sid),
		DisplayName:  displayName,
	})
	if !ok {
		return
	}
	res := room.BroadcastAll(frame)
	log.Info().Str("module", "app.presence").Str("room", string(room.ID())).Str("sid", string(sid)).Int("notified", res.SentTo).Msg("announced leave")
}
