package relay_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openmeet/signaling/internal/core"
	"github.com/openmeet/signaling/internal/domain"
	"github.com/openmeet/signaling/internal/relay"
	"github.com/openmeet/signaling/internal/store"
)

var errSendFailed = errors.New("send failed")

// fakeBus records every delivery per connection so tests can assert who
// saw what, and can be told to fail sends to simulate backpressure.
type fakeBus struct {
	mu     sync.Mutex
	groups map[core.GroupID]map[core.ConnectionID]struct{}
	inbox  map[core.ConnectionID][]core.Frame
	broken map[core.ConnectionID]bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		groups: make(map[core.GroupID]map[core.ConnectionID]struct{}),
		inbox:  make(map[core.ConnectionID][]core.Frame),
		broken: make(map[core.ConnectionID]bool),
	}
}

func (b *fakeBus) AddToGroup(gid core.GroupID, cid core.ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[gid] == nil {
		b.groups[gid] = make(map[core.ConnectionID]struct{})
	}
	b.groups[gid][cid] = struct{}{}
}

func (b *fakeBus) RemoveFromGroup(gid core.GroupID, cid core.ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.groups[gid], cid)
}

func (b *fakeBus) SendToOne(cid core.ConnectionID, f core.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken[cid] {
		return errSendFailed
	}
	b.inbox[cid] = append(b.inbox[cid], f)
	return nil
}

func (b *fakeBus) SendToGroup(gid core.GroupID, f core.Frame, except ...core.ConnectionID) []core.ConnectionID {
	skip := make(map[core.ConnectionID]struct{})
	for _, cid := range except {
		skip[cid] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var dropped []core.ConnectionID
	for cid := range b.groups[gid] {
		if _, ok := skip[cid]; ok {
			continue
		}
		if b.broken[cid] {
			dropped = append(dropped, cid)
			continue
		}
		b.inbox[cid] = append(b.inbox[cid], f)
	}
	return dropped
}

// messages decodes the envelope types a connection has received.
func (b *fakeBus) messages(t *testing.T, cid core.ConnectionID) []string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.inbox[cid]))
	for _, f := range b.inbox[cid] {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env.Type)
	}
	return out
}

func (b *fakeBus) last(t *testing.T, cid core.ConnectionID, into any) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	frames := b.inbox[cid]
	require.NotEmpty(t, frames)
	require.NoError(t, json.Unmarshal(frames[len(frames)-1], into))
}

func countOf(types []string, want string) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}

func newService(t *testing.T) (*relay.Service, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	return relay.NewService(store.New(nil), bus, 10), bus
}

func createRoom(t *testing.T, svc *relay.Service, max int) domain.RoomID {
	t.Helper()
	id, err := svc.CreateRoom("room", "", max)
	require.NoError(t, err)
	return id
}

func TestCreateRoomHasNoMembershipSideEffect(t *testing.T) {
	svc, bus := newService(t)
	id := createRoom(t, svc, 2)

	require.NotEmpty(t, id)
	infos := svc.ListRooms()
	require.Len(t, infos, 1)
	require.Equal(t, 0, infos[0].Count)
	require.Empty(t, bus.inbox)
}

func TestCreateRoomDefaultCapacity(t *testing.T) {
	svc, _ := newService(t)
	id := createRoom(t, svc, 0)

	infos := svc.ListRooms()
	require.Len(t, infos, 1)
	require.Equal(t, id, infos[0].ID)
	require.Equal(t, 10, infos[0].MaxParticipants)
}

func TestJoinScenarioTwoSeatRoom(t *testing.T) {
	svc, bus := newService(t)
	id := createRoom(t, svc, 2)

	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))
	var s1 core.RoomStateMessage
	bus.last(t, "c1", &s1)
	require.Equal(t, core.TypeRoomState, s1.Type)
	require.Equal(t, 1, s1.Count)
	require.Len(t, s1.Participants, 1)

	require.NoError(t, svc.JoinRoom(id, "c2", "u2", "bob"))
	var s2 core.RoomStateMessage
	bus.last(t, "c2", &s2)
	require.Equal(t, 2, s2.Count)
	require.Len(t, s2.Participants, 2)

	// P1 observed P2's arrival, P2 did not get its own join broadcast.
	var joined core.MemberJoinedMessage
	bus.last(t, "c1", &joined)
	require.Equal(t, core.TypeMemberJoined, joined.Type)
	require.Equal(t, "u2", joined.Participant.UserID)
	require.Equal(t, "c2", joined.Participant.ConnectionID)
	require.Zero(t, countOf(bus.messages(t, "c2"), core.TypeMemberJoined))

	// Third seat does not exist.
	err := svc.JoinRoom(id, "c3", "u3", "carol")
	require.ErrorIs(t, err, domain.ErrRoomFull)
	infos := svc.ListRooms()
	require.Equal(t, 2, infos[0].Count, "failed join must not mutate")
	require.Empty(t, bus.messages(t, "c3"), "errors are reported, not sent as frames")
}

func TestJoinRoomNotFound(t *testing.T) {
	svc, _ := newService(t)
	err := svc.JoinRoom("missing", "c1", "u1", "alice")
	require.ErrorIs(t, err, relay.ErrRoomNotFound)
}

func TestJoinClosedRoom(t *testing.T) {
	svc, _ := newService(t)
	id := createRoom(t, svc, 2)
	require.NoError(t, svc.CloseRoom(id))

	err := svc.JoinRoom(id, "c1", "u1", "alice")
	require.ErrorIs(t, err, relay.ErrRoomClosed)
}

func TestRejoinSameUserReconnects(t *testing.T) {
	svc, bus := newService(t)
	id := createRoom(t, svc, 2)

	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))
	require.NoError(t, svc.JoinRoom(id, "c1b", "u1", "alice"))

	infos := svc.ListRooms()
	require.Equal(t, 1, infos[0].Count, "same identity must reuse the participant")

	var state core.RoomStateMessage
	bus.last(t, "c1b", &state)
	require.Len(t, state.Participants, 1)
	require.Equal(t, "c1b", state.Participants[0].ConnectionID)
}

func TestReconnectBypassesCapacityCheck(t *testing.T) {
	svc, _ := newService(t)
	id := createRoom(t, svc, 2)

	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))
	require.NoError(t, svc.JoinRoom(id, "c2", "u2", "bob"))
	// Room is full, but u1 coming back is a reconnect, not a new seat.
	require.NoError(t, svc.JoinRoom(id, "c1b", "u1", "alice"))
}

func TestPointToPointIsolation(t *testing.T) {
	svc, bus := newService(t)
	id := createRoom(t, svc, 3)
	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))
	require.NoError(t, svc.JoinRoom(id, "c2", "u2", "bob"))
	require.NoError(t, svc.JoinRoom(id, "c3", "u3", "carol"))

	require.NoError(t, svc.SendOffer("c1", "c2", "sdp-offer"))
	require.NoError(t, svc.SendAnswer("c2", "c1", "sdp-answer"))
	require.NoError(t, svc.SendCandidate("c1", "c2", core.CandidateMessage{Candidate: "cand"}))

	var offer core.SDPMessage
	frames := bus.messages(t, "c2")
	require.Equal(t, 1, countOf(frames, core.TypeOffer))
	require.Equal(t, 1, countOf(frames, core.TypeCandidate))

	bus.mu.Lock()
	for _, f := range bus.inbox["c2"] {
		var env core.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		if env.Type == core.TypeOffer {
			require.NoError(t, json.Unmarshal(f, &offer))
		}
	}
	bus.mu.Unlock()
	require.Equal(t, core.ConnectionID("c1"), offer.From, "relay stamps the sender")
	require.Empty(t, offer.To, "target address is not echoed to the recipient")

	c3 := bus.messages(t, "c3")
	require.Zero(t, countOf(c3, core.TypeOffer), "third parties never observe peer messages")
	require.Zero(t, countOf(c3, core.TypeAnswer))
	require.Zero(t, countOf(c3, core.TypeCandidate))
}

func TestSendOfferWhenNotInRoom(t *testing.T) {
	svc, _ := newService(t)
	err := svc.SendOffer("loner", "c2", "sdp")
	require.ErrorIs(t, err, relay.ErrNotInRoom)
}

func TestSendOfferToUnknownTarget(t *testing.T) {
	svc, _ := newService(t)
	id := createRoom(t, svc, 2)
	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))

	err := svc.SendOffer("c1", "ghost", "sdp")
	require.ErrorIs(t, err, relay.ErrTargetUnavailable)
}

func TestAbruptDisconnectActsAsLeave(t *testing.T) {
	svc, bus := newService(t)
	id := createRoom(t, svc, 2)
	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))
	require.NoError(t, svc.JoinRoom(id, "c2", "u2", "bob"))

	svc.Disconnected("c1")

	msgs := bus.messages(t, "c2")
	require.Equal(t, 1, countOf(msgs, core.TypeMemberLeft), "exactly one member_left")
	var left core.MemberLeftMessage
	bus.last(t, "c2", &left)
	require.Equal(t, core.ConnectionID("c1"), left.ConnectionID)

	// Membership must not leak.
	require.Equal(t, 1, svc.ListRooms()[0].Count)

	// A second disconnect for the same session is a silent no-op.
	svc.Disconnected("c1")
	require.Equal(t, 1, countOf(bus.messages(t, "c2"), core.TypeMemberLeft))
}

func TestLeaveThenSendOfferFails(t *testing.T) {
	svc, _ := newService(t)
	id := createRoom(t, svc, 2)
	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))
	require.NoError(t, svc.JoinRoom(id, "c2", "u2", "bob"))

	svc.Leave("c1")

	err := svc.SendOffer("c1", "c2", "sdp")
	require.ErrorIs(t, err, relay.ErrNotInRoom)
}

func TestCloseRoomNotifiesEveryMemberOnce(t *testing.T) {
	svc, bus := newService(t)
	id := createRoom(t, svc, 2)
	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))
	require.NoError(t, svc.JoinRoom(id, "c2", "u2", "bob"))

	require.NoError(t, svc.CloseRoom(id))
	require.Equal(t, 1, countOf(bus.messages(t, "c1"), core.TypeRoomClosed))
	require.Equal(t, 1, countOf(bus.messages(t, "c2"), core.TypeRoomClosed))

	// Closing again must not re-notify.
	require.NoError(t, svc.CloseRoom(id))
	require.Equal(t, 1, countOf(bus.messages(t, "c1"), core.TypeRoomClosed))

	require.ErrorIs(t, svc.CloseRoom("missing"), relay.ErrRoomNotFound)
}

func TestSlowMemberIsKickedOnBroadcast(t *testing.T) {
	svc, bus := newService(t)
	id := createRoom(t, svc, 3)
	require.NoError(t, svc.JoinRoom(id, "c1", "u1", "alice"))
	require.NoError(t, svc.JoinRoom(id, "c2", "u2", "bob"))

	bus.mu.Lock()
	bus.broken["c2"] = true
	bus.mu.Unlock()

	// c2 drops the member_joined broadcast and gets cleaned up.
	require.NoError(t, svc.JoinRoom(id, "c3", "u3", "carol"))
	require.Equal(t, 2, svc.ListRooms()[0].Count)
}
