// Package peer implements perfect negotiation: one state machine per
// remote peer that converges on a single agreed session description even
// when both sides offer at once, and buffers ICE candidates that arrive
// before the remote description.
package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateIdle State = iota
	StateMakingOffer
	StateHaveLocalOffer
	StateStable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMakingOffer:
		return "making-offer"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Polite reports whether the local side yields during offer glare. The
// side whose external identity sorts greater is polite. Pure function of
// the two identities, independent of connection order.
func Polite(localID, remoteID string) bool {
	return localID > remoteID
}

// Negotiator runs the offer/answer exchange with one remote peer. Event
// entry points are serialized by the internal mutex; events for a given
// peer are processed one at a time in arrival order. A closed negotiator
// is done for good: reconnecting to the same peer takes a new instance.
type Negotiator struct {
	mu sync.Mutex

	link     Link
	signaler Signaler
	remote   string // remote connection id, the point-to-point address
	polite   bool

	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// NewNegotiator derives politeness from the two external user identities,
// not from the transport-level connection ids.
func NewNegotiator(link Link, sig Signaler, remoteCID, localUserID, remoteUserID string) *Negotiator {
	return &Negotiator{
		link:     link,
		signaler: sig,
		remote:   remoteCID,
		polite:   Polite(localUserID, remoteUserID),
	}
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) Polite() bool { return n.polite }

// BeginOffer starts negotiation toward the remote peer. Only valid from
// idle; any other state means negotiation is already underway or over.
func (n *Negotiator) BeginOffer() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateIdle {
		return nil
	}
	n.state = StateMakingOffer
	offer, err := n.link.CreateOffer()
	if err != nil {
		n.state = StateIdle
		return err
	}
	n.state = StateHaveLocalOffer
	if err := n.signaler.SendOffer(n.remote, offer.SDP); err != nil {
		return err
	}
	log.Debug().Str("module", "peer").Str("remote", n.remote).Msg("offer sent")
	return nil
}

// HandleOffer applies an incoming offer and answers it, unless this is a
// glare collision and the local side is impolite, in which case the offer
// is ignored entirely: no reply, no state change. The polite side's
// colliding local offer is discarded by the link's rollback.
func (n *Negotiator) HandleOffer(sdp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return nil
	}
	collision := n.state == StateMakingOffer || n.state == StateHaveLocalOffer
	if collision && !n.polite {
		log.Debug().Str("module", "peer").Str("remote", n.remote).Msg("glare, ignoring incoming offer")
		return nil
	}
	if err := n.link.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return err
	}
	answer, err := n.link.CreateAnswer()
	if err != nil {
		return err
	}
	if err := n.signaler.SendAnswer(n.remote, answer.SDP); err != nil {
		return err
	}
	n.state = StateStable
	n.afterRemoteDescription()
	return nil
}

// HandleAnswer applies the remote answer. A late or duplicate answer
// arriving once the connection is already stable is dropped, not
// reapplied.
func (n *Negotiator) HandleAnswer(sdp string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return nil
	}
	if n.state == StateStable && n.remoteSet {
		return nil
	}
	if err := n.link.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return err
	}
	n.state = StateStable
	n.afterRemoteDescription()
	return nil
}

// HandleCandidate applies a remote ICE candidate, or buffers it in
// arrival order until the first remote description lands.
func (n *Negotiator) HandleCandidate(cand webrtc.ICECandidateInit) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return nil
	}
	if !n.remoteSet {
		n.pending = append(n.pending, cand)
		return nil
	}
	return n.link.AddICECandidate(cand)
}

// HandleLocalCandidate forwards a locally discovered candidate to the
// remote peer immediately, whatever the negotiation state.
func (n *Negotiator) HandleLocalCandidate(cand webrtc.ICECandidateInit) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return nil
	}
	return n.signaler.SendCandidate(n.remote, cand)
}

// Close tears down the peer connection and discards the candidate buffer.
func (n *Negotiator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return
	}
	n.state = StateClosed
	n.pending = nil
	n.link.Close()
}

// afterRemoteDescription runs the single buffered-candidate flush, right
// after the first remote description is applied. Callers hold the mutex.
func (n *Negotiator) afterRemoteDescription() {
	if n.remoteSet {
		return
	}
	n.remoteSet = true
	for _, cand := range n.pending {
		if err := n.link.AddICECandidate(cand); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", n.remote).Msg("buffered candidate apply failed")
		}
	}
	n.pending = nil
}
