// Package domain holds the room aggregate and its invariants. Nothing in
// here knows about transports or stores.
package domain

import (
	"errors"
	"time"
)

const MaxRoomNameLen = 64

var (
	ErrRoomNameEmpty   = errors.New("room name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
	ErrInvalidCapacity = errors.New("max participants must be positive")
	ErrRoomInactive    = errors.New("room is not active")
	ErrRoomFull        = errors.New("room is full")
)

// Room is the aggregate root. It exclusively owns its participants
// (insertion order = join order) and is the only place the capacity and
// active-state rules live.
type Room struct {
	ID              RoomID
	Name            string
	Description     string
	MaxParticipants int
	IsActive        bool
	CreatedAt       time.Time
	ModifiedAt      *time.Time

	participants []*Participant
	events       []Event
}

func NewRoom(name, description string, maxParticipants int) (*Room, error) {
	if name == "" {
		return nil, ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return nil, ErrRoomNameTooLong
	}
	if maxParticipants <= 0 {
		return nil, ErrInvalidCapacity
	}
	r := &Room{
		ID:              NewRoomID(),
		Name:            name,
		Description:     description,
		MaxParticipants: maxParticipants,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}
	r.raise(RoomCreated{eventBase: occurredNow(), RoomID: r.ID})
	return r, nil
}

// AddParticipant appends a new participant. The active check runs before
// the capacity check, so a closed room always reports ErrRoomInactive even
// when it is also full. The capacity rule is enforced only here: lowering
// MaxParticipants below the current count never evicts anyone.
func (r *Room) AddParticipant(userID, displayName string) (*Participant, error) {
	if !r.IsActive {
		return nil, ErrRoomInactive
	}
	if len(r.participants) >= r.MaxParticipants {
		return nil, ErrRoomFull
	}
	p := newParticipant(r.ID, userID, displayName)
	r.participants = append(r.participants, p)
	r.touch()
	r.raise(ParticipantJoined{eventBase: occurredNow(), RoomID: r.ID, ParticipantID: p.ID})
	return p, nil
}

// RemoveParticipant is idempotent: removing an unknown id changes nothing
// and raises no event.
func (r *Room) RemoveParticipant(id ParticipantID) {
	for i, p := range r.participants {
		if p.ID == id {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			r.touch()
			r.raise(ParticipantLeft{eventBase: occurredNow(), RoomID: r.ID, ParticipantID: id})
			return
		}
	}
}

// Close deactivates the room. Membership is kept so Reopen restores the
// room as it was. Close raises RoomClosed on every call; callers that care
// about duplicate notifications must check IsActive first.
func (r *Room) Close() {
	r.IsActive = false
	r.touch()
	r.raise(RoomClosed{eventBase: occurredNow(), RoomID: r.ID})
}

func (r *Room) Reopen() {
	r.IsActive = true
	r.touch()
}

func (r *Room) Count() int { return len(r.participants) }

// Participants returns the members in join order. The slice is a copy, the
// entries are the live entities.
func (r *Room) Participants() []*Participant {
	out := make([]*Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *Room) ParticipantByID(id ParticipantID) *Participant {
	for _, p := range r.participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) ParticipantByUser(userID string) *Participant {
	for _, p := range r.participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) ParticipantByConnection(connectionID string) *Participant {
	if connectionID == "" {
		return nil
	}
	for _, p := range r.participants {
		if p.ConnectionID == connectionID {
			return p
		}
	}
	return nil
}

// DrainEvents returns and clears the outbox.
func (r *Room) DrainEvents() []Event {
	evs := r.events
	r.events = nil
	return evs
}

func (r *Room) raise(e Event) { r.events = append(r.events, e) }

func (r *Room) touch() {
	now := time.Now().UTC()
	r.ModifiedAt = &now
}
