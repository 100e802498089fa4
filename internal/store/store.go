// Package store keeps room aggregates in memory with one exclusion domain
// per room id. A relay operation's read-modify-write runs as a closure
// under that room's lock, so concurrent joins and leaves on the same room
// can never lose an update. Operations on different rooms never contend.
package store

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openmeet/signaling/internal/core"
	"github.com/openmeet/signaling/internal/domain"
)

var ErrNotFound = errors.New("room not found")

// EventSink receives the events drained from a room after a successful
// commit. May be nil.
type EventSink func(id domain.RoomID, events []domain.Event)

type entry struct {
	mu   sync.Mutex
	room *domain.Room
}

type Store struct {
	mu    sync.RWMutex // guards the map only, never held during a mutation
	rooms map[domain.RoomID]*entry
	sink  EventSink
}

func New(sink EventSink) *Store {
	return &Store{rooms: make(map[domain.RoomID]*entry), sink: sink}
}

// Add registers a freshly created room and drains its creation events.
func (s *Store) Add(room *domain.Room) {
	s.mu.Lock()
	s.rooms[room.ID] = &entry{room: room}
	s.mu.Unlock()
	s.drain(room.ID, room.DrainEvents())
	log.Debug().Str("module", "store").Str("room", string(room.ID)).Msg("room added")
}

// Update runs fn against the room under its entry lock. Events raised by
// fn are drained to the sink only when fn returns nil; on error the outbox
// is discarded so a failed operation never leaks notifications.
func (s *Store) Update(id domain.RoomID, fn func(*domain.Room) error) error {
	e, ok := s.entry(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	err := fn(e.room)
	var evs []domain.Event
	if err == nil {
		evs = e.room.DrainEvents()
	} else {
		e.room.DrainEvents()
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	s.drain(id, evs)
	return nil
}

// UpdateByConnection resolves the room owning a live connection and runs
// fn under that room's lock. Returns ErrNotFound when no room holds the
// connection.
func (s *Store) UpdateByConnection(connectionID string, fn func(*domain.Room) error) error {
	for _, e := range s.entries() {
		e.mu.Lock()
		if e.room.ParticipantByConnection(connectionID) == nil {
			e.mu.Unlock()
			continue
		}
		id := e.room.ID
		err := fn(e.room)
		var evs []domain.Event
		if err == nil {
			evs = e.room.DrainEvents()
		} else {
			e.room.DrainEvents()
		}
		e.mu.Unlock()
		if err != nil {
			return err
		}
		s.drain(id, evs)
		return nil
	}
	return ErrNotFound
}

// View runs a read-only fn under the room's entry lock.
func (s *Store) View(id domain.RoomID, fn func(*domain.Room)) error {
	e, ok := s.entry(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	fn(e.room)
	e.mu.Unlock()
	return nil
}

// Remove deletes the room. Deletion is a store operation, not an entity
// behavior: closing a room keeps it resident until removed here.
func (s *Store) Remove(id domain.RoomID) {
	s.mu.Lock()
	delete(s.rooms, id)
	s.mu.Unlock()
}

// ListActive snapshots every active room.
func (s *Store) ListActive() []core.RoomInfo {
	out := make([]core.RoomInfo, 0)
	for _, e := range s.entries() {
		e.mu.Lock()
		if e.room.IsActive {
			out = append(out, core.RoomInfoOf(e.room))
		}
		e.mu.Unlock()
	}
	return out
}

func (s *Store) entry(id domain.RoomID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	return e, ok
}

func (s *Store) entries() []*entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.rooms))
	for _, e := range s.rooms {
		out = append(out, e)
	}
	return out
}

func (s *Store) drain(id domain.RoomID, evs []domain.Event) {
	if s.sink == nil || len(evs) == 0 {
		return
	}
	s.sink(id, evs)
}
