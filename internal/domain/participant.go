package domain

import "time"

// Participant is a member of exactly one room, identified by an external
// user identity. It survives transport reconnects: Disconnect clears the
// live connection without touching membership, only the room's explicit
// RemoveParticipant ends it.
type Participant struct {
	ID           ParticipantID
	RoomID       RoomID
	UserID       string
	DisplayName  string
	ConnectionID string // empty while disconnected
	IsConnected  bool
	JoinedAt     time.Time
	LeftAt       *time.Time
}

func newParticipant(roomID RoomID, userID, displayName string) *Participant {
	return &Participant{
		ID:          NewParticipantID(),
		RoomID:      roomID,
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    time.Now().UTC(),
	}
}

// Connect binds the participant to a live transport session.
func (p *Participant) Connect(connectionID string) {
	p.ConnectionID = connectionID
	p.IsConnected = true
	p.LeftAt = nil
}

// Disconnect marks the transport session gone. Membership stays intact so
// the same user can rejoin and pick up the same participant record.
func (p *Participant) Disconnect() {
	now := time.Now().UTC()
	p.ConnectionID = ""
	p.IsConnected = false
	p.LeftAt = &now
}
