package domain

import "context"

// Server-to-client board events.
const (
	EventTaskCreated     = "tasks:created"
	EventTaskUpdated     = "tasks:updated"
	EventTaskBulkUpdated = "tasks:bulkUpdated"
	EventTaskDeleted     = "tasks:deleted"
	EventTaskReordered   = "tasks:reordered"
	EventTaskPositions   = "tasks:positions"
)

// StaffRoom is the broadcast scope for a tenant's internal users.
func StaffRoom(tenantID string) string {
	return "tenant:" + tenantID
}

// ClientRoom is the broadcast scope for one customer's portal users.
func ClientRoom(tenantID, customerID string) string {
	return "tenant-client:" + tenantID + ":" + customerID
}

// Envelope is one realtime message. Origin carries the sender's own tag
// on relayed position events so the originating client can recognize and
// ignore its echo. TS is stamped with server epoch millis at publish.
type Envelope struct {
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
	Origin string `json:"origin,omitempty"`
	TS     int64  `json:"ts"`
}

// Broadcaster delivers envelopes to every connection in a room. Fire and
// forget: delivery failures never surface to the mutation path.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, ev Envelope)
}
