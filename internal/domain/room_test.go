package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openmeet/signaling/internal/domain"
)

func newRoom(t *testing.T, max int) *domain.Room {
	t.Helper()
	r, err := domain.NewRoom("standup", "", max)
	require.NoError(t, err)
	r.DrainEvents()
	return r
}

func TestNewRoomValidation(t *testing.T) {
	_, err := domain.NewRoom("", "", 2)
	require.ErrorIs(t, err, domain.ErrRoomNameEmpty)

	long := make([]byte, domain.MaxRoomNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = domain.NewRoom(string(long), "", 2)
	require.ErrorIs(t, err, domain.ErrRoomNameTooLong)

	_, err = domain.NewRoom("ok", "", 0)
	require.ErrorIs(t, err, domain.ErrInvalidCapacity)

	_, err = domain.NewRoom("ok", "", -3)
	require.ErrorIs(t, err, domain.ErrInvalidCapacity)
}

func TestNewRoomRaisesCreatedEvent(t *testing.T) {
	r, err := domain.NewRoom("standup", "daily", 5)
	require.NoError(t, err)
	require.True(t, r.IsActive)

	evs := r.DrainEvents()
	require.Len(t, evs, 1)
	created, ok := evs[0].(domain.RoomCreated)
	require.True(t, ok)
	require.Equal(t, r.ID, created.RoomID)
	require.False(t, created.OccurredAt().IsZero())

	require.Empty(t, r.DrainEvents(), "outbox must be cleared by drain")
}

func TestAddParticipantCapacity(t *testing.T) {
	r := newRoom(t, 2)

	_, err := r.AddParticipant("u1", "alice")
	require.NoError(t, err)
	_, err = r.AddParticipant("u2", "bob")
	require.NoError(t, err)

	_, err = r.AddParticipant("u3", "carol")
	require.ErrorIs(t, err, domain.ErrRoomFull)
	require.Equal(t, 2, r.Count(), "failed add must not mutate")
}

func TestInactiveCheckedBeforeFull(t *testing.T) {
	r := newRoom(t, 1)
	_, err := r.AddParticipant("u1", "alice")
	require.NoError(t, err)

	r.Close()

	// Room is both inactive and full; inactive must win.
	_, err = r.AddParticipant("u2", "bob")
	require.ErrorIs(t, err, domain.ErrRoomInactive)
	require.NotErrorIs(t, err, domain.ErrRoomFull)
}

func TestLoweredCapacityDoesNotEvict(t *testing.T) {
	r := newRoom(t, 3)
	_, err := r.AddParticipant("u1", "alice")
	require.NoError(t, err)
	_, err = r.AddParticipant("u2", "bob")
	require.NoError(t, err)

	r.MaxParticipants = 1

	require.Equal(t, 2, r.Count(), "existing members stay above a lowered cap")
	_, err = r.AddParticipant("u3", "carol")
	require.ErrorIs(t, err, domain.ErrRoomFull)
}

func TestRemoveParticipantIdempotent(t *testing.T) {
	r := newRoom(t, 2)
	p, err := r.AddParticipant("u1", "alice")
	require.NoError(t, err)
	r.DrainEvents()

	r.RemoveParticipant("no-such-id")
	require.Equal(t, 1, r.Count())
	require.Empty(t, r.DrainEvents(), "unknown id raises nothing")

	r.RemoveParticipant(p.ID)
	require.Equal(t, 0, r.Count())
	evs := r.DrainEvents()
	require.Len(t, evs, 1)
	left, ok := evs[0].(domain.ParticipantLeft)
	require.True(t, ok)
	require.Equal(t, p.ID, left.ParticipantID)
}

func TestCloseKeepsMembershipAndReopenRestores(t *testing.T) {
	r := newRoom(t, 2)
	_, err := r.AddParticipant("u1", "alice")
	require.NoError(t, err)
	r.DrainEvents()

	r.Close()
	require.False(t, r.IsActive)
	require.Equal(t, 1, r.Count())
	evs := r.DrainEvents()
	require.Len(t, evs, 1)
	require.IsType(t, domain.RoomClosed{}, evs[0])

	r.Reopen()
	require.True(t, r.IsActive)
	require.Equal(t, 1, r.Count())

	_, err = r.AddParticipant("u2", "bob")
	require.NoError(t, err)
}

func TestParticipantsKeepJoinOrder(t *testing.T) {
	r := newRoom(t, 5)
	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := r.AddParticipant(u, u)
		require.NoError(t, err)
	}
	ps := r.Participants()
	require.Len(t, ps, 3)
	require.Equal(t, "u1", ps[0].UserID)
	require.Equal(t, "u2", ps[1].UserID)
	require.Equal(t, "u3", ps[2].UserID)
}

func TestParticipantConnectDisconnect(t *testing.T) {
	r := newRoom(t, 2)
	p, err := r.AddParticipant("u1", "alice")
	require.NoError(t, err)
	require.False(t, p.IsConnected)

	p.Connect("conn-1")
	require.True(t, p.IsConnected)
	require.Equal(t, "conn-1", p.ConnectionID)
	require.Nil(t, p.LeftAt)
	require.Same(t, p, r.ParticipantByConnection("conn-1"))

	p.Disconnect()
	require.False(t, p.IsConnected)
	require.Empty(t, p.ConnectionID)
	require.NotNil(t, p.LeftAt)
	require.Nil(t, r.ParticipantByConnection("conn-1"))
	require.Equal(t, 1, r.Count(), "disconnect keeps membership")

	p.Connect("conn-2")
	require.True(t, p.IsConnected)
	require.Nil(t, p.LeftAt)
}

func TestLookupsByUserAndID(t *testing.T) {
	r := newRoom(t, 2)
	p, err := r.AddParticipant("u1", "alice")
	require.NoError(t, err)

	require.Same(t, p, r.ParticipantByUser("u1"))
	require.Same(t, p, r.ParticipantByID(p.ID))
	require.Nil(t, r.ParticipantByUser("nobody"))
	require.Nil(t, r.ParticipantByConnection(""))
}
