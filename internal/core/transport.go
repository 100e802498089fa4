// Package core holds the interfaces and DTOs shared between the relay,
// the transport adapters and the client. It never references a concrete
// transport type.
package core

// Frame is one encoded signaling message.
type Frame []byte

// ConnectionID identifies one live transport session.
type ConnectionID string

// GroupID names a broadcast group. The relay uses one group per room.
type GroupID string

// SignalConnection abstracts a single outbound messaging endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Bus is the narrow transport capability the relay depends on: group
// membership, point-to-point delivery and group broadcast. SendToGroup
// reports connections whose send failed or backed up, so the relay can
// treat them like transport faults.
type Bus interface {
	AddToGroup(gid GroupID, cid ConnectionID)
	RemoveFromGroup(gid GroupID, cid ConnectionID)
	SendToOne(cid ConnectionID, f Frame) error
	SendToGroup(gid GroupID, f Frame, except ...ConnectionID) (dropped []ConnectionID)
}
