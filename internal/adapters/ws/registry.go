package ws

import (
	"sync"

	"github.com/openmeet/signaling/internal/core"
)

// Registry tracks live connections and their broadcast groups. It is the
// websocket implementation of core.Bus; the relay never sees anything
// more concrete than that.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnectionID]core.SignalConnection
	groups map[core.GroupID]map[core.ConnectionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnectionID]core.SignalConnection),
		groups: make(map[core.GroupID]map[core.ConnectionID]struct{}),
	}
}

func (r *Registry) Bind(cid core.ConnectionID, c core.SignalConnection) {
	r.mu.Lock()
	r.conns[cid] = c
	r.mu.Unlock()
}

// Unbind drops the connection from the registry and every group.
func (r *Registry) Unbind(cid core.ConnectionID) {
	r.mu.Lock()
	delete(r.conns, cid)
	for gid, members := range r.groups {
		delete(members, cid)
		if len(members) == 0 {
			delete(r.groups, gid)
		}
	}
	r.mu.Unlock()
}

func (r *Registry) Get(cid core.ConnectionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[cid]
	return c, ok
}

func (r *Registry) AddToGroup(gid core.GroupID, cid core.ConnectionID) {
	r.mu.Lock()
	if r.groups[gid] == nil {
		r.groups[gid] = make(map[core.ConnectionID]struct{})
	}
	r.groups[gid][cid] = struct{}{}
	r.mu.Unlock()
}

func (r *Registry) RemoveFromGroup(gid core.GroupID, cid core.ConnectionID) {
	r.mu.Lock()
	if members, ok := r.groups[gid]; ok {
		delete(members, cid)
		if len(members) == 0 {
			delete(r.groups, gid)
		}
	}
	r.mu.Unlock()
}

func (r *Registry) SendToOne(cid core.ConnectionID, f core.Frame) error {
	c, ok := r.Get(cid)
	if !ok {
		return ErrConnClosed
	}
	return c.TrySend(f)
}

func (r *Registry) SendToGroup(gid core.GroupID, f core.Frame, except ...core.ConnectionID) []core.ConnectionID {
	skip := make(map[core.ConnectionID]struct{}, len(except))
	for _, cid := range except {
		skip[cid] = struct{}{}
	}

	r.mu.RLock()
	targets := make(map[core.ConnectionID]core.SignalConnection)
	for cid := range r.groups[gid] {
		if _, ok := skip[cid]; ok {
			continue
		}
		if c, ok := r.conns[cid]; ok {
			targets[cid] = c
		}
	}
	r.mu.RUnlock()

	var dropped []core.ConnectionID
	for cid, c := range targets {
		if err := c.TrySend(f); err != nil {
			dropped = append(dropped, cid)
		}
	}
	return dropped
}
