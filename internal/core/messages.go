package core

import "github.com/openmeet/signaling/internal/domain"

// Envelope type tags. Every frame on the wire carries one in "type".
const (
	// caller -> relay
	TypeCreateRoom = "create_room"
	TypeJoin       = "join"
	TypeLeave      = "leave"
	TypeOffer      = "offer"
	TypeAnswer     = "answer"
	TypeCandidate  = "candidate"
	TypeCloseRoom  = "close_room"
	TypePing       = "ping"

	// relay -> caller(s)
	TypeRoomCreated  = "room_created"
	TypeRoomState    = "room_state"
	TypeMemberJoined = "member_joined"
	TypeMemberLeft   = "member_left"
	TypeRoomClosed   = "room_closed"
	TypeLeft         = "left"
	TypePong         = "pong"
	TypeError        = "error"
)

// Caller-only error codes carried in ErrorMessage.
const (
	CodeBadPayload        = "bad_payload"
	CodeRoomNotFound      = "room_not_found"
	CodeRoomClosed        = "room_closed"
	CodeRoomFull          = "room_full"
	CodeNotInRoom         = "not_in_room"
	CodeTargetUnavailable = "target_unavailable"
)

// Envelope is the minimal decode used to dispatch an inbound frame.
type Envelope struct {
	Type string `json:"type"`
}

type CreateRoomMessage struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	MaxParticipants int    `json:"max_participants,omitempty"`
}

type JoinMessage struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

type CloseRoomMessage struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

// SDPMessage carries an offer or an answer. "to" is set by the sender,
// "from" is stamped by the relay before point-to-point delivery.
type SDPMessage struct {
	Type string       `json:"type"`
	To   ConnectionID `json:"to,omitempty"`
	From ConnectionID `json:"from,omitempty"`
	SDP  string       `json:"sdp"`
}

// CandidateMessage carries one ICE candidate. Field names follow the
// browser's RTCIceCandidateInit so clients can pass it through untouched.
type CandidateMessage struct {
	Type          string       `json:"type"`
	To            ConnectionID `json:"to,omitempty"`
	From          ConnectionID `json:"from,omitempty"`
	Candidate     string       `json:"candidate"`
	SDPMid        string       `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16      `json:"sdpMLineIndex,omitempty"`
}

type RoomCreatedMessage struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

// RoomStateMessage is sent to the joining caller only: a room snapshot
// plus the full current participant list.
type RoomStateMessage struct {
	Type            string            `json:"type"`
	Room            domain.RoomID     `json:"room"`
	Name            string            `json:"name"`
	MaxParticipants int               `json:"max_participants"`
	Count           int               `json:"count"`
	Participants    []ParticipantInfo `json:"participants"`
}

type MemberJoinedMessage struct {
	Type        string          `json:"type"`
	Participant ParticipantInfo `json:"participant"`
}

type MemberLeftMessage struct {
	Type          string               `json:"type"`
	ConnectionID  ConnectionID         `json:"connection_id"`
	ParticipantID domain.ParticipantID `json:"participant_id"`
}

type RoomClosedMessage struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
