package ws

import (
	"io"
	"sync"
)

// Visit is one registered room visit. Closing it tears down the engine and
// the connection behind it.
type Visit struct {
	Info   ConnInfo
	closer io.Closer
	once   sync.Once
	err    error
}

func NewVisit(info ConnInfo, closer io.Closer) *Visit {
	return &Visit{Info: info, closer: closer}
}

// Close is idempotent.
func (v *Visit) Close() error {
	v.once.Do(func() {
		if v.closer != nil {
			v.err = v.closer.Close()
		}
	})
	return v.err
}

// Hub tracks the active room visits. A client session holds at most one
// visit per room.
type Hub struct {
	visits map[visitKey]*Visit
	mu     sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{visits: make(map[visitKey]*Visit)}
}

// Register adds v and returns the visit it displaced, if any. The caller
// closes the displaced visit.
func (h *Hub) Register(v *Visit) *Visit {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := v.Info.key()
	prior := h.visits[key]
	h.visits[key] = v
	if prior == v {
		return nil
	}
	return prior
}

// Remove drops v unless a newer visit already took its place.
func (h *Hub) Remove(v *Visit) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := v.Info.key()
	if h.visits[key] != v {
		return false
	}
	delete(h.visits, key)
	return true
}

// RoomVisits returns the connections currently visiting roomID.
func (h *Hub) RoomVisits(roomID string) []ConnInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var infos []ConnInfo
	for key, v := range h.visits {
		if key.roomID == roomID {
			infos = append(infos, v.Info)
		}
	}
	return infos
}

// Len reports the number of active visits.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.visits)
}

// CloseAll closes every visit, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	visits := make([]*Visit, 0, len(h.visits))
	for key, v := range h.visits {
		visits = append(visits, v)
		delete(h.visits, key)
	}
	h.mu.Unlock()

	for _, v := range visits {
		_ = v.Close()
	}
}
