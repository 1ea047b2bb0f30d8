package realtime

import "sync"

const subscriberBuffer = 16

// Hub tracks this instance's live connections per room and fans frames
// out to them. Membership is local to the process; cross-instance
// delivery goes through the Backplane.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[chan []byte]struct{})}
}

// Subscribe joins a room and returns the member's frame channel.
func (h *Hub) Subscribe(room string) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[chan []byte]struct{})
		h.rooms[room] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe drops the member; a disconnect leaves the room
// immediately.
func (h *Hub) Unsubscribe(room string, ch chan []byte) {
	h.mu.Lock()
	if subs, ok := h.rooms[room]; ok {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

// Publish delivers a frame to every member of the room. Sends are
// non-blocking; a member that cannot keep up misses the frame rather
// than stalling the rest of the room.
func (h *Hub) Publish(room string, frame []byte) {
	h.mu.Lock()
	for ch := range h.rooms[room] {
		select {
		case ch <- frame:
		default:
		}
	}
	h.mu.Unlock()
}

// Subscribers reports the current member count of a room.
func (h *Hub) Subscribers(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}
