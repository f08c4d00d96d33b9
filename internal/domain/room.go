package domain

// RoomID is the opaque key under which participants share a document.
// Rooms exist implicitly: the first join creates one, the last leave
// garbage-collects it.
type RoomID string

type Room struct {
	ID RoomID
}
