// Package client runs the participant side of signaling: one session per
// transport connection, one negotiation state machine per remote peer.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/signaling/internal/adapters/rtc"
	"github.com/openmeet/signaling/internal/core"
	"github.com/openmeet/signaling/internal/domain"
	"github.com/openmeet/signaling/internal/peer"
)

var ErrNotConnected = errors.New("transport not connected")

// LinkFactory builds the local peer-connection resource for one remote
// peer. onCandidate receives locally discovered ICE candidates.
type LinkFactory func(onCandidate func(webrtc.ICECandidateInit)) (peer.Link, error)

// PionLinks is the production factory: a pion peer connection per remote
// peer, configured from the given webrtc.Configuration.
func PionLinks(ctx context.Context, cfg webrtc.Configuration) LinkFactory {
	return func(onCandidate func(webrtc.ICECandidateInit)) (peer.Link, error) {
		conn, err := rtc.NewConnection(cfg)
		if err != nil {
			return nil, err
		}
		conn.OnICECandidate(onCandidate)
		if err := conn.Start(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// Session drives signaling for one local participant. Frames arrive from
// the transport in order and are dispatched one at a time; negotiators for
// different remote peers are independent.
type Session struct {
	transport Transport
	newLink   LinkFactory
	userID    string

	mu    sync.Mutex
	peers map[string]*peer.Negotiator // keyed by remote connection id
	users map[string]string           // remote connection id -> user id
	room  domain.RoomID

	events chan any
}

func NewSession(t Transport, links LinkFactory, userID string) *Session {
	return &Session{
		transport: t,
		newLink:   links,
		userID:    userID,
		peers:     make(map[string]*peer.Negotiator),
		users:     make(map[string]string),
		events:    make(chan any, 32),
	}
}

// Events surfaces decoded non-negotiation messages (room state, errors,
// room closed) to application code. Slow consumers lose events rather
// than stalling signaling.
func (s *Session) Events() <-chan any { return s.events }

// Run connects and processes frames until the transport drops or ctx
// ends. All peer machines are torn down on the way out.
func (s *Session) Run(ctx context.Context) error {
	if err := s.transport.Connect(ctx); err != nil {
		return err
	}
	defer s.teardownPeers()

	frames := s.transport.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			s.handleFrame(f)
		}
	}
}

func (s *Session) CreateRoom(name, description string, maxParticipants int) error {
	return s.transport.Send(core.CreateRoomMessage{
		Type:            core.TypeCreateRoom,
		Name:            name,
		Description:     description,
		MaxParticipants: maxParticipants,
	})
}

func (s *Session) JoinRoom(roomID domain.RoomID) error {
	return s.transport.Send(core.JoinMessage{Type: core.TypeJoin, Room: roomID})
}

// Leave exits the room and ends every peer negotiation. The transport
// stays open so the session can join another room.
func (s *Session) Leave() error {
	s.teardownPeers()
	return s.transport.Send(core.Envelope{Type: core.TypeLeave})
}

func (s *Session) Close() error {
	s.teardownPeers()
	return s.transport.Close()
}

func (s *Session) handleFrame(f core.Frame) {
	var env core.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		log.Error().Err(err).Str("module", "client").Msg("bad frame")
		return
	}

	switch env.Type {
	case core.TypeRoomState:
		s.handleRoomState(f)
	case core.TypeMemberJoined:
		s.handleMemberJoined(f)
	case core.TypeMemberLeft:
		s.handleMemberLeft(f)
	case core.TypeOffer:
		s.handleOffer(f)
	case core.TypeAnswer:
		s.handleAnswer(f)
	case core.TypeCandidate:
		s.handleRemoteCandidate(f)
	case core.TypeRoomClosed:
		s.teardownPeers()
		s.emitRaw(f, &core.RoomClosedMessage{})
	case core.TypeRoomCreated:
		s.emitRaw(f, &core.RoomCreatedMessage{})
	case core.TypeError:
		s.emitRaw(f, &core.ErrorMessage{})
	case core.TypeLeft, core.TypePong:
		// acknowledgements, nothing to do
	default:
		log.Warn().Str("module", "client").Str("type", env.Type).Msg("unknown message")
	}
}

// handleRoomState records who is in the room. The newcomer does not
// initiate: each existing member offers toward us on their member_joined.
func (s *Session) handleRoomState(f core.Frame) {
	var m core.RoomStateMessage
	if err := json.Unmarshal(f, &m); err != nil {
		return
	}
	s.mu.Lock()
	s.room = m.Room
	for _, p := range m.Participants {
		s.users[p.ConnectionID] = p.UserID
	}
	s.mu.Unlock()
	s.emit(m)
}

// handleMemberJoined is the local join trigger: a new remote member means
// this side begins an offer toward them.
func (s *Session) handleMemberJoined(f core.Frame) {
	var m core.MemberJoinedMessage
	if err := json.Unmarshal(f, &m); err != nil {
		return
	}
	cid := m.Participant.ConnectionID
	s.mu.Lock()
	s.users[cid] = m.Participant.UserID
	s.mu.Unlock()

	neg, err := s.ensurePeer(cid)
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", cid).Msg("peer setup failed")
		return
	}
	if err := neg.BeginOffer(); err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", cid).Msg("offer failed")
	}
	s.emit(m)
}

func (s *Session) handleMemberLeft(f core.Frame) {
	var m core.MemberLeftMessage
	if err := json.Unmarshal(f, &m); err != nil {
		return
	}
	cid := string(m.ConnectionID)
	s.mu.Lock()
	neg := s.peers[cid]
	delete(s.peers, cid)
	delete(s.users, cid)
	s.mu.Unlock()
	if neg != nil {
		neg.Close()
	}
	s.emit(m)
}

func (s *Session) handleOffer(f core.Frame) {
	var m core.SDPMessage
	if err := json.Unmarshal(f, &m); err != nil {
		return
	}
	neg, err := s.ensurePeer(string(m.From))
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(m.From)).Msg("peer setup failed")
		return
	}
	if err := neg.HandleOffer(m.SDP); err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(m.From)).Msg("offer handling failed")
	}
}

func (s *Session) handleAnswer(f core.Frame) {
	var m core.SDPMessage
	if err := json.Unmarshal(f, &m); err != nil {
		return
	}
	neg := s.peerFor(string(m.From))
	if neg == nil {
		log.Warn().Str("module", "client").Str("remote", string(m.From)).Msg("answer for unknown peer")
		return
	}
	if err := neg.HandleAnswer(m.SDP); err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(m.From)).Msg("answer handling failed")
	}
}

func (s *Session) handleRemoteCandidate(f core.Frame) {
	var m core.CandidateMessage
	if err := json.Unmarshal(f, &m); err != nil {
		return
	}
	neg, err := s.ensurePeer(string(m.From))
	if err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(m.From)).Msg("peer setup failed")
		return
	}
	cand := webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMLineIndex: m.SDPMLineIndex}
	if m.SDPMid != "" {
		mid := m.SDPMid
		cand.SDPMid = &mid
	}
	if err := neg.HandleCandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "client").Str("remote", string(m.From)).Msg("candidate apply failed")
	}
}

// ensurePeer returns the negotiator for a remote connection, creating it
// on first contact. Politeness is recomputed per remote peer from the two
// user identities.
func (s *Session) ensurePeer(cid string) (*peer.Negotiator, error) {
	s.mu.Lock()
	if neg, ok := s.peers[cid]; ok {
		s.mu.Unlock()
		return neg, nil
	}
	remoteUser := s.users[cid]
	s.mu.Unlock()

	link, err := s.newLink(func(cand webrtc.ICECandidateInit) {
		if neg := s.peerFor(cid); neg != nil {
			if err := neg.HandleLocalCandidate(cand); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("remote", cid).Msg("local candidate send failed")
			}
		}
	})
	if err != nil {
		return nil, err
	}

	neg := peer.NewNegotiator(link, s, cid, s.userID, remoteUser)

	s.mu.Lock()
	if existing, ok := s.peers[cid]; ok {
		s.mu.Unlock()
		link.Close()
		return existing, nil
	}
	s.peers[cid] = neg
	s.mu.Unlock()
	return neg, nil
}

func (s *Session) peerFor(cid string) *peer.Negotiator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[cid]
}

func (s *Session) teardownPeers() {
	s.mu.Lock()
	peers := s.peers
	s.peers = make(map[string]*peer.Negotiator)
	s.users = make(map[string]string)
	s.room = ""
	s.mu.Unlock()
	for _, neg := range peers {
		neg.Close()
	}
}

// SendOffer implements peer.Signaler.
func (s *Session) SendOffer(to string, sdp string) error {
	return s.transport.Send(core.SDPMessage{Type: core.TypeOffer, To: core.ConnectionID(to), SDP: sdp})
}

// SendAnswer implements peer.Signaler.
func (s *Session) SendAnswer(to string, sdp string) error {
	return s.transport.Send(core.SDPMessage{Type: core.TypeAnswer, To: core.ConnectionID(to), SDP: sdp})
}

// SendCandidate implements peer.Signaler.
func (s *Session) SendCandidate(to string, cand webrtc.ICECandidateInit) error {
	m := core.CandidateMessage{
		Type:          core.TypeCandidate,
		To:            core.ConnectionID(to),
		Candidate:     cand.Candidate,
		SDPMLineIndex: cand.SDPMLineIndex,
	}
	if cand.SDPMid != nil {
		m.SDPMid = *cand.SDPMid
	}
	return s.transport.Send(m)
}

func (s *Session) emit(v any) {
	select {
	case s.events <- v:
	default:
	}
}

func (s *Session) emitRaw(f core.Frame, into any) {
	if err := json.Unmarshal(f, into); err != nil {
		return
	}
	s.emit(into)
}
