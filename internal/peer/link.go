package peer

import "github.com/pion/webrtc/v4"

// Link is the local peer-connection resource a negotiator drives. The
// real implementation wraps pion's PeerConnection (internal/adapters/rtc);
// tests substitute a fake. CreateOffer and CreateAnswer both set the local
// description as a side effect, and SetRemoteDescription is expected to
// roll back a pending local offer when handed a colliding remote offer.
type Link interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	Close()
}

// Signaler delivers negotiation messages to one remote peer through the
// relay's point-to-point send.
type Signaler interface {
	SendOffer(to string, sdp string) error
	SendAnswer(to string, sdp string) error
	SendCandidate(to string, cand webrtc.ICECandidateInit) error
}
