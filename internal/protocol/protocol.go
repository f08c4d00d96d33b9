// Package protocol defines the wire messages exchanged over a signal
// connection. Every message is a flat JSON object with a "type" discriminator;
// receivers sniff the type first and then decode the full payload.
package protocol

import "encoding/json"

type Kind string

const (
	// server -> client, once per connection, carries the fresh session ID.
	KindWelcome Kind = "welcome"

	// client -> server.
	KindJoin Kind = "join"
	KindPing Kind = "ping"

	// server -> client presence fan-out.
	KindJoined       Kind = "joined"
	KindDisconnected Kind = "disconnected"
	KindPong         Kind = "pong"
	KindError        Kind = "error"

	// both directions.
	KindEditRelay     Kind = "edit-relay"
	KindStateTransfer Kind = "state-transfer"
)

type Envelope struct {
	Type Kind `json:"type"`
}

// KindOf sniffs the discriminator without decoding the payload.
func KindOf(data []byte) (Kind, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

type Member struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

type Welcome struct {
	Type         Kind   `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type Join struct {
	Type        Kind   `json:"type"`
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

// Joined goes to every room member, the entrant included. Carrying the full
// member list lets each client decide locally whether the event is about
// itself or a peer.
type Joined struct {
	Type         Kind     `json:"type"`
	Members      []Member `json:"members"`
	DisplayName  string   `json:"displayName"`
	ConnectionID string   `json:"connectionId"`
}

type Disconnected struct {
	Type         Kind   `json:"type"`
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
}

// EditRelay is broadcast to the other members of the room, sender excluded.
// No ack, no ordering across senders, last relay wins at each recipient.
type EditRelay struct {
	Type    Kind   `json:"type"`
	RoomID  string `json:"roomId"`
	Payload string `json:"payload"`
}

// StateTransfer hands the current buffer to one peer, routed by session ID.
// Outbound from a client the target is set; inbound at the target it is not.
type StateTransfer struct {
	Type               Kind   `json:"type"`
	TargetConnectionID string `json:"targetConnectionId,omitempty"`
	Payload            string `json:"payload"`
}

type Error struct {
	Type  Kind   `json:"type"`
	Error string `json:"error"`
}
