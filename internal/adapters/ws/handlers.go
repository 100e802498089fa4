package ws

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/openmeet/signaling/internal/core"
	"github.com/openmeet/signaling/internal/domain"
	"github.com/openmeet/signaling/internal/relay"
)

func (ctl *Controller) handleCreateRoom(sess *session, c *Conn, data []byte) {
	var p core.CreateRoomMessage
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, core.CodeBadPayload)
		return
	}
	if p.Name == "" {
		p.Name = "room"
	}
	roomID, err := ctl.Relay.CreateRoom(p.Name, p.Description, p.MaxParticipants)
	if err != nil {
		ctl.sendError(c, errorCode(err))
		return
	}
	ctl.sendJSON(c, core.RoomCreatedMessage{Type: core.TypeRoomCreated, Room: roomID})
}

func (ctl *Controller) handleJoin(sess *session, c *Conn, data []byte) {
	var p core.JoinMessage
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, core.CodeBadPayload)
		return
	}
	if err := ctl.Relay.JoinRoom(p.Room, sess.cid, sess.userID, sess.displayName); err != nil {
		ctl.sendError(c, errorCode(err))
	}
}

// handleLeave exits the current room; the websocket itself stays open.
func (ctl *Controller) handleLeave(sess *session, c *Conn) {
	ctl.Relay.Leave(sess.cid)
	ctl.sendJSON(c, core.Envelope{Type: core.TypeLeft})
}

func (ctl *Controller) handleSDP(sess *session, c *Conn, data []byte) {
	var p core.SDPMessage
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" || p.SDP == "" {
		ctl.sendError(c, core.CodeBadPayload)
		return
	}
	var err error
	switch p.Type {
	case core.TypeOffer:
		err = ctl.Relay.SendOffer(sess.cid, p.To, p.SDP)
	case core.TypeAnswer:
		err = ctl.Relay.SendAnswer(sess.cid, p.To, p.SDP)
	}
	if err != nil {
		ctl.sendError(c, errorCode(err))
	}
}

func (ctl *Controller) handleCandidate(sess *session, c *Conn, data []byte) {
	var p core.CandidateMessage
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		ctl.sendError(c, core.CodeBadPayload)
		return
	}
	if err := ctl.Relay.SendCandidate(sess.cid, p.To, p); err != nil {
		ctl.sendError(c, errorCode(err))
	}
}

func (ctl *Controller) handleCloseRoom(sess *session, c *Conn, data []byte) {
	var p core.CloseRoomMessage
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, core.CodeBadPayload)
		return
	}
	if err := ctl.Relay.CloseRoom(p.Room); err != nil {
		ctl.sendError(c, errorCode(err))
	}
}

func (ctl *Controller) sendError(c *Conn, code string) {
	ctl.sendJSON(c, core.ErrorMessage{Type: core.TypeError, Error: code})
}

// errorCode maps caller-only failures onto wire error codes. Anything
// unexpected is logged and reported as a bad payload rather than leaking
// internals.
func errorCode(err error) string {
	switch {
	case errors.Is(err, relay.ErrRoomNotFound):
		return core.CodeRoomNotFound
	case errors.Is(err, relay.ErrRoomClosed), errors.Is(err, domain.ErrRoomInactive):
		return core.CodeRoomClosed
	case errors.Is(err, domain.ErrRoomFull):
		return core.CodeRoomFull
	case errors.Is(err, relay.ErrNotInRoom):
		return core.CodeNotInRoom
	case errors.Is(err, relay.ErrTargetUnavailable):
		return core.CodeTargetUnavailable
	default:
		log.Warn().Err(err).Str("module", "ws").Msg("unmapped relay error")
		return core.CodeBadPayload
	}
}
