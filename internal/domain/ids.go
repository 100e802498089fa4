package domain

import "github.com/google/uuid"

type (
	RoomID        string
	ParticipantID string
)

func NewRoomID() RoomID { return RoomID(uuid.NewString()) }

func NewParticipantID() ParticipantID { return ParticipantID(uuid.NewString()) }
