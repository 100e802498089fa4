// Package relay translates transport-session lifecycle and inbound
// signaling messages into room aggregate operations and outbound sends.
// It talks to the transport only through core.Bus and commits every room
// mutation before issuing the broadcasts that depend on it.
package relay

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/openmeet/signaling/internal/core"
	"github.com/openmeet/signaling/internal/domain"
	"github.com/openmeet/signaling/internal/store"
)

// Caller-only failures. Reported to the requester, never broadcast, and
// they leave room state unchanged.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomClosed        = errors.New("room is closed")
	ErrNotInRoom         = errors.New("you are not in a room")
	ErrTargetUnavailable = errors.New("target participant not found or not connected")
)

const DefaultMaxParticipants = 10

type Service struct {
	store      *store.Store
	bus        core.Bus
	defaultCap int
}

func NewService(st *store.Store, bus core.Bus, defaultCap int) *Service {
	if defaultCap <= 0 {
		defaultCap = DefaultMaxParticipants
	}
	return &Service{store: st, bus: bus, defaultCap: defaultCap}
}

// CreateRoom creates an empty active room. No membership side effect.
func (s *Service) CreateRoom(name, description string, maxParticipants int) (domain.RoomID, error) {
	if maxParticipants == 0 {
		maxParticipants = s.defaultCap
	}
	room, err := domain.NewRoom(name, description, maxParticipants)
	if err != nil {
		return "", err
	}
	s.store.Add(room)
	log.Info().Str("module", "relay").Str("room", string(room.ID)).Int("max", maxParticipants).Msg("room created")
	return room.ID, nil
}

// JoinRoom adds the caller to the room, or reconnects an existing
// membership when the same external identity is already present. The
// caller gets the room snapshot plus the participant list; everyone else
// gets member_joined.
func (s *Service) JoinRoom(roomID domain.RoomID, cid core.ConnectionID, userID, displayName string) error {
	var (
		state  core.RoomStateMessage
		joined core.ParticipantInfo
		oldCID core.ConnectionID
	)
	err := s.store.Update(roomID, func(r *domain.Room) error {
		if !r.IsActive {
			return ErrRoomClosed
		}
		p := r.ParticipantByUser(userID)
		if p != nil {
			// Reconnect: reuse the membership record, skip the
			// active/capacity rules.
			oldCID = core.ConnectionID(p.ConnectionID)
		} else {
			var err error
			p, err = r.AddParticipant(userID, displayName)
			if err != nil {
				return err
			}
		}
		p.Connect(string(cid))
		joined = core.ParticipantInfoOf(p)
		state = core.RoomStateMessage{
			Type:            core.TypeRoomState,
			Room:            r.ID,
			Name:            r.Name,
			MaxParticipants: r.MaxParticipants,
			Count:           r.Count(),
			Participants:    participantInfos(r),
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}

	gid := groupOf(roomID)
	if oldCID != "" && oldCID != cid {
		s.bus.RemoveFromGroup(gid, oldCID)
	}
	s.bus.AddToGroup(gid, cid)
	s.sendToOne(cid, state)
	s.broadcast(gid, core.MemberJoinedMessage{Type: core.TypeMemberJoined, Participant: joined}, cid)
	log.Info().Str("module", "relay").Str("room", string(roomID)).Str("cid", string(cid)).Str("user", userID).Msg("participant joined")
	return nil
}

// Leave removes the caller's membership and tells the remaining members.
// Silently a no-op when the connection is not in any room.
func (s *Service) Leave(cid core.ConnectionID) {
	var (
		roomID domain.RoomID
		left   *core.MemberLeftMessage
	)
	err := s.store.UpdateByConnection(string(cid), func(r *domain.Room) error {
		p := r.ParticipantByConnection(string(cid))
		left = &core.MemberLeftMessage{Type: core.TypeMemberLeft, ConnectionID: cid, ParticipantID: p.ID}
		p.Disconnect()
		r.RemoveParticipant(p.ID)
		roomID = r.ID
		return nil
	})
	if err != nil {
		return
	}
	gid := groupOf(roomID)
	s.bus.RemoveFromGroup(gid, cid)
	s.broadcast(gid, *left, cid)
	log.Info().Str("module", "relay").Str("room", string(roomID)).Str("cid", string(cid)).Msg("participant left")
}

// Disconnected handles abrupt transport termination. Same cleanup as a
// graceful leave, so membership never leaks.
func (s *Service) Disconnected(cid core.ConnectionID) {
	s.Leave(cid)
}

func (s *Service) SendOffer(from, to core.ConnectionID, sdp string) error {
	return s.relayToPeer(from, to, core.SDPMessage{Type: core.TypeOffer, From: from, SDP: sdp})
}

func (s *Service) SendAnswer(from, to core.ConnectionID, sdp string) error {
	return s.relayToPeer(from, to, core.SDPMessage{Type: core.TypeAnswer, From: from, SDP: sdp})
}

func (s *Service) SendCandidate(from, to core.ConnectionID, m core.CandidateMessage) error {
	m.Type = core.TypeCandidate
	m.From = from
	m.To = ""
	return s.relayToPeer(from, to, m)
}

// relayToPeer validates that the caller shares a room with a live target,
// then delivers directly to that one connection. Never broadcast.
func (s *Service) relayToPeer(from, to core.ConnectionID, msg any) error {
	err := s.store.UpdateByConnection(string(from), func(r *domain.Room) error {
		t := r.ParticipantByConnection(string(to))
		if t == nil || !t.IsConnected {
			return ErrTargetUnavailable
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotInRoom
	}
	if err != nil {
		return err
	}
	if err := s.sendToOne(to, msg); err != nil {
		log.Warn().Err(err).Str("module", "relay").Str("cid", string(to)).Msg("peer send failed, cleaning up")
		s.Leave(to)
		return ErrTargetUnavailable
	}
	return nil
}

// CloseRoom deactivates the room and notifies every member, caller
// included. Closing an already closed room is a silent no-op so repeated
// calls never duplicate the notification.
func (s *Service) CloseRoom(roomID domain.RoomID) error {
	already := false
	err := s.store.Update(roomID, func(r *domain.Room) error {
		if !r.IsActive {
			already = true
			return nil
		}
		r.Close()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	s.broadcast(groupOf(roomID), core.RoomClosedMessage{Type: core.TypeRoomClosed, Room: roomID})
	log.Info().Str("module", "relay").Str("room", string(roomID)).Msg("room closed")
	return nil
}

// ListRooms snapshots every active room for the read API.
func (s *Service) ListRooms() []core.RoomInfo {
	return s.store.ListActive()
}

func (s *Service) sendToOne(cid core.ConnectionID, v any) error {
	f, err := encode(v)
	if err != nil {
		return err
	}
	return s.bus.SendToOne(cid, f)
}

// broadcast sends to the whole group after the mutation it reports has
// been committed. Connections that cannot keep up are treated like
// transport faults and cleaned up the same way a disconnect is.
func (s *Service) broadcast(gid core.GroupID, v any, except ...core.ConnectionID) {
	f, err := encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("broadcast encode")
		return
	}
	for _, dropped := range s.bus.SendToGroup(gid, f, except...) {
		log.Warn().Str("module", "relay").Str("cid", string(dropped)).Msg("dropped slow member")
		s.Leave(dropped)
	}
}

func encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

func participantInfos(r *domain.Room) []core.ParticipantInfo {
	ps := r.Participants()
	out := make([]core.ParticipantInfo, 0, len(ps))
	for _, p := range ps {
		out = append(out, core.ParticipantInfoOf(p))
	}
	return out
}

func groupOf(id domain.RoomID) core.GroupID {
	return core.GroupID("room:" + string(id))
}
