package core

import "github.com/dkeye/Pad/internal/domain"

// Frame is one wire message, already encoded.
type Frame []byte

// SessionID identifies one live connection. Minted fresh on every accept,
// never reused, gone when the transport closes.
type SessionID string

// SignalConnection abstracts a messaging transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to the orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []SessionID
}

// MemberDTO is a read-only view of a room member (no transport fields).
type MemberDTO struct {
	SID         SessionID
	DisplayName string
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	ID() domain.RoomID
	MemberCount() int
	MembersSnapshot() []MemberDTO

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID)
	BroadcastAll(data Frame) PublishResult
	BroadcastExcept(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}

// RoomManager owns the room table. Empty rooms are removed through
// RemoveIfEmpty rather than an explicit stop.
type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	RemoveIfEmpty(id domain.RoomID) bool
}
