package core

import "github.com/openmeet/signaling/internal/domain"

// RoomInfo is a read-only room snapshot for callers and APIs.
type RoomInfo struct {
	ID              domain.RoomID `json:"room"`
	Name            string        `json:"name"`
	MaxParticipants int           `json:"max_participants"`
	Count           int           `json:"count"`
}

// ParticipantInfo is the public view of a participant (no domain internals).
type ParticipantInfo struct {
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	IsConnected  bool   `json:"is_connected"`
}

func RoomInfoOf(r *domain.Room) RoomInfo {
	return RoomInfo{
		ID:              r.ID,
		Name:            r.Name,
		MaxParticipants: r.MaxParticipants,
		Count:           r.Count(),
	}
}

func ParticipantInfoOf(p *domain.Participant) ParticipantInfo {
	return ParticipantInfo{
		ConnectionID: p.ConnectionID,
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		IsConnected:  p.IsConnected,
	}
}
