package domain

import "time"

// Event is something that happened inside an aggregate. Mutators append
// events to the aggregate's outbox; the store drains them after a
// successful commit and hands them to whoever publishes or logs them.
// Events are informational only, relay correctness never depends on them.
type Event interface {
	OccurredAt() time.Time
}

type eventBase struct {
	At time.Time
}

func (e eventBase) OccurredAt() time.Time { return e.At }

func occurredNow() eventBase { return eventBase{At: time.Now().UTC()} }

type RoomCreated struct {
	eventBase
	RoomID RoomID
}

type ParticipantJoined struct {
	eventBase
	RoomID        RoomID
	ParticipantID ParticipantID
}

type ParticipantLeft struct {
	eventBase
	RoomID        RoomID
	ParticipantID ParticipantID
}

type RoomClosed struct {
	eventBase
	RoomID RoomID
}
